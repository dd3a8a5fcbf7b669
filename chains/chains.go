/*
 * Copyright 2019 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package chains holds the supported chains with their validator endpoints
// and registry contract addresses.
package chains

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/CovenantSQL/tablebridge/types"
)

// Class is the network class a chain belongs to.
type Class string

// Network classes, reads may not span classes.
const (
	Mainnet Class = "mainnet"
	Testnet Class = "testnet"
	Local   Class = "local"
)

// Validator base urls per class.
const (
	MainnetBaseURL = "https://tableland.network/api/v1"
	TestnetBaseURL = "https://testnets.tableland.network/api/v1"
	LocalBaseURL   = "http://localhost:8080/api/v1"
)

// Chain describes a supported chain.
type Chain struct {
	ID           int64          `yaml:"ChainID" validate:"required,gt=0"`
	Name         string         `yaml:"Name"`
	Class        Class          `yaml:"Class" validate:"omitempty,oneof=mainnet testnet local"`
	Contract     common.Address `yaml:"-"`
	ContractAddr string         `yaml:"Contract" validate:"omitempty,eth_addr"`
	BaseURL      string         `yaml:"BaseURL" validate:"omitempty,url"`
}

var builtin = []Chain{
	{ID: 1, Name: "mainnet", Class: Mainnet, Contract: common.HexToAddress("0x012969f7e3439a9B04025b5a049EB9BAD82A8C12")},
	{ID: 10, Name: "optimism", Class: Mainnet, Contract: common.HexToAddress("0xfad44BF5B843dE943a09D4f3E84949A11d3aa3e6")},
	{ID: 42161, Name: "arbitrum", Class: Mainnet, Contract: common.HexToAddress("0x9aBd75E8640871A5a20d3B4eE6330a04c962aFfd")},
	{ID: 42170, Name: "arbitrum-nova", Class: Mainnet, Contract: common.HexToAddress("0x1A22854c5b1642760a827f20137a67930AE108d2")},
	{ID: 137, Name: "matic", Class: Mainnet, Contract: common.HexToAddress("0x5c4e6A9e5C1e1BF445A062006faF19EA6c49aFeA")},
	{ID: 314, Name: "filecoin", Class: Mainnet, Contract: common.HexToAddress("0x59EF8Bf2d6c102B4c42AEf9189e1a9F0ABfD652d")},
	{ID: 11155111, Name: "sepolia", Class: Testnet, Contract: common.HexToAddress("0xc50C62498448ACc8dBdE43DA77f8D5D2E2c7597D")},
	{ID: 11155420, Name: "optimism-sepolia", Class: Testnet, Contract: common.HexToAddress("0x68A2f4423ad3bf5139Db563CF3bC80aA09ed7079")},
	{ID: 421614, Name: "arbitrum-sepolia", Class: Testnet, Contract: common.HexToAddress("0x223A74B8323914afDC3ff1e5005564dC17231d6e")},
	{ID: 80002, Name: "maticamoy", Class: Testnet, Contract: common.HexToAddress("0x170fb206132b693e38adFc8727dCfa303546Cec1")},
	{ID: 314159, Name: "filecoin-calibration", Class: Testnet, Contract: common.HexToAddress("0x030BCf3D50cad04c2e57391B12740982A9308621")},
	{ID: 31337, Name: "local-tableland", Class: Local, Contract: common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")},
}

// URL returns the validator base url of c.
func (c Chain) URL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	switch c.Class {
	case Mainnet:
		return MainnetBaseURL
	case Testnet:
		return TestnetBaseURL
	default:
		return LocalBaseURL
	}
}

// Registry is a chain table: the builtin chains plus per instance overrides.
type Registry struct {
	mu     sync.RWMutex
	byID   map[int64]Chain
	byName map[string]int64
}

// NewRegistry returns a registry seeded with the builtin chains.
func NewRegistry() *Registry {
	r := &Registry{
		byID:   make(map[int64]Chain, len(builtin)),
		byName: make(map[string]int64, len(builtin)),
	}
	for _, c := range builtin {
		r.set(c)
	}
	// homestead is the ethers name of mainnet
	r.byName["homestead"] = 1
	return r
}

func (r *Registry) set(c Chain) {
	r.byID[c.ID] = c
	if c.Name != "" {
		r.byName[strings.ToLower(c.Name)] = c.ID
	}
}

// Override adds or replaces a chain. A non-empty ContractAddr takes
// precedence over Contract.
func (r *Registry) Override(c Chain) error {
	if c.ID <= 0 {
		return errors.Errorf("invalid chain id %d", c.ID)
	}
	if c.ContractAddr != "" {
		if !common.IsHexAddress(c.ContractAddr) {
			return errors.Errorf("invalid contract address %q for chain %d", c.ContractAddr, c.ID)
		}
		c.Contract = common.HexToAddress(c.ContractAddr)
	}
	if c.Class == "" {
		c.Class = Local
	}
	if c.Name == "" {
		if prev, ok := r.Get(c.ID); ok {
			c.Name = prev.Name
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.set(c)
	return nil
}

// Get returns the chain with id.
func (r *Registry) Get(id int64) (c Chain, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok = r.byID[id]
	return
}

// ByName returns the chain with name, case insensitive.
func (r *Registry) ByName(name string) (c Chain, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return
	}
	c, ok = r.byID[id]
	return
}

// Lookup returns the chain with id or types.ErrUnknownChain.
func (r *Registry) Lookup(id int64) (Chain, error) {
	c, ok := r.Get(id)
	if !ok {
		return c, errors.Wrapf(types.ErrUnknownChain, "chain %d", id)
	}
	return c, nil
}

// BaseURL returns the validator base url serving chain id.
func (r *Registry) BaseURL(id int64) (string, error) {
	c, err := r.Lookup(id)
	if err != nil {
		return "", err
	}
	return c.URL(), nil
}

// Class returns the network class of chain id.
func (r *Registry) Class(id int64) (Class, error) {
	c, err := r.Lookup(id)
	if err != nil {
		return "", err
	}
	return c.Class, nil
}

// IsTestnet reports whether id is a testnet or local chain.
func (r *Registry) IsTestnet(id int64) bool {
	c, ok := r.Get(id)
	return ok && c.Class != Mainnet
}

// List returns every known chain.
func (r *Registry) List() (out []Chain) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byID {
		out = append(out, c)
	}
	return
}

var defaultRegistry = NewRegistry()

// Get returns a builtin chain.
func Get(id int64) (Chain, bool) { return defaultRegistry.Get(id) }

// ByName returns a builtin chain by name.
func ByName(name string) (Chain, bool) { return defaultRegistry.ByName(name) }

// BaseURL returns the validator base url of a builtin chain.
func BaseURL(id int64) (string, error) { return defaultRegistry.BaseURL(id) }

// IsTestnet reports whether a builtin chain is not mainnet class.
func IsTestnet(id int64) bool { return defaultRegistry.IsTestnet(id) }
