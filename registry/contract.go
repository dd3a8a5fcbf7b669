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

package registry

import (
	"context"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/CovenantSQL/tablebridge/utils/log"
)

const (
	createABI = `[{"type":"function","name":"create","stateMutability":"payable","inputs":[
		{"name":"owner","type":"address"},{"name":"statement","type":"string"}],
		"outputs":[{"name":"tableId","type":"uint256"}]}]`
	createManyABI = `[{"type":"function","name":"create","stateMutability":"payable","inputs":[
		{"name":"owner","type":"address"},{"name":"statements","type":"string[]"}],
		"outputs":[{"name":"tableIds","type":"uint256[]"}]}]`
	runSQLABI = `[{"type":"function","name":"runSQL","stateMutability":"payable","inputs":[
		{"name":"caller","type":"address"},{"name":"tableId","type":"uint256"},{"name":"statement","type":"string"}],
		"outputs":[]}]`
	mutateABI = `[{"type":"function","name":"mutate","stateMutability":"payable","inputs":[
		{"name":"caller","type":"address"},{"name":"runnables","type":"tuple[]","components":[
			{"name":"tableId","type":"uint256"},{"name":"statement","type":"string"}]}],
		"outputs":[]}]`
)

var (
	// ErrReverted is returned when a submitted transaction is mined with a
	// failed status.
	ErrReverted = errors.New("transaction reverted")
	// ErrNothingToSubmit is returned for empty create or mutate calls.
	ErrNothingToSubmit = errors.New("nothing to submit")
)

// Runnable is one grouped sql payload targeting one table.
type Runnable struct {
	TableID   *big.Int
	Statement string
}

// runnableArg mirrors the contract tuple, field names follow the abi.
type runnableArg struct {
	TableId   *big.Int
	Statement string
}

// Transaction is a mined registry transaction.
type Transaction struct {
	Hash common.Hash
	// ChainID is the chain id echoed by the signed transaction, zero when
	// the signer did not embed one.
	ChainID     int64
	BlockNumber int64
	Logs        []*types.Log
}

// Submitter submits table transactions and waits for them to be mined.
type Submitter interface {
	Create(ctx context.Context, statements []string) (*Transaction, error)
	Mutate(ctx context.Context, runnables []Runnable) (*Transaction, error)
}

// Backend is the chain connection a Contract needs, ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Contract is a Submitter bound to a deployed registry contract.
type Contract struct {
	Address common.Address
	backend Backend
	opts    bind.TransactOpts

	create     *bind.BoundContract
	createMany *bind.BoundContract
	runSQL     *bind.BoundContract
	mutate     *bind.BoundContract
}

// NewContract binds the registry at address. opts carries the sender and
// signer, its Context is replaced per call.
func NewContract(address common.Address, backend Backend, opts *bind.TransactOpts) (c *Contract, err error) {
	if opts == nil || opts.Signer == nil {
		return nil, errors.New("transact opts with a signer are required")
	}
	c = &Contract{Address: address, backend: backend, opts: *opts}
	for _, b := range []struct {
		def string
		dst **bind.BoundContract
	}{
		{createABI, &c.create},
		{createManyABI, &c.createMany},
		{runSQLABI, &c.runSQL},
		{mutateABI, &c.mutate},
	} {
		parsed, err := abi.JSON(strings.NewReader(b.def))
		if err != nil {
			return nil, errors.Wrap(err, "parse registry abi")
		}
		*b.dst = bind.NewBoundContract(address, parsed, backend, backend, backend)
	}
	return
}

// Create submits one create call for all statements.
func (c *Contract) Create(ctx context.Context, statements []string) (*Transaction, error) {
	switch len(statements) {
	case 0:
		return nil, ErrNothingToSubmit
	case 1:
		return c.transact(ctx, c.create, "create", c.opts.From, statements[0])
	default:
		return c.transact(ctx, c.createMany, "create", c.opts.From, statements)
	}
}

// Mutate submits runnables in one transaction.
func (c *Contract) Mutate(ctx context.Context, runnables []Runnable) (*Transaction, error) {
	switch len(runnables) {
	case 0:
		return nil, ErrNothingToSubmit
	case 1:
		r := runnables[0]
		return c.transact(ctx, c.runSQL, "runSQL", c.opts.From, r.TableID, r.Statement)
	}
	args := make([]runnableArg, len(runnables))
	for i, r := range runnables {
		args[i] = runnableArg{TableId: r.TableID, Statement: r.Statement}
	}
	return c.transact(ctx, c.mutate, "mutate", c.opts.From, args)
}

func (c *Contract) transact(ctx context.Context, bound *bind.BoundContract, method string,
	params ...interface{}) (txn *Transaction, err error) {
	opts := c.opts
	opts.Context = ctx

	tx, err := bound.Transact(&opts, method, params...)
	if err != nil {
		return nil, errors.Wrapf(err, "submit %s", method)
	}
	log.WithFields(log.Fields{
		"method": method,
		"tx":     tx.Hash().Hex(),
	}).Debug("registry transaction submitted")

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, errors.Wrapf(err, "wait for %s", tx.Hash().Hex())
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, errors.Wrapf(ErrReverted, "%s %s", method, tx.Hash().Hex())
	}

	txn = &Transaction{
		Hash: tx.Hash(),
		Logs: receipt.Logs,
	}
	if id := tx.ChainId(); id != nil && id.IsInt64() {
		txn.ChainID = id.Int64()
	}
	if len(receipt.Logs) > 0 {
		txn.BlockNumber = int64(receipt.Logs[0].BlockNumber)
	}
	return
}

// Watch subscribes sink to the registry events of kinds emitted by address.
func Watch(ctx context.Context, filterer ethereum.LogFilterer, address common.Address,
	sink chan<- types.Log, kinds ...EventKind) (ethereum.Subscription, error) {
	q := ethereum.FilterQuery{
		Addresses: []common.Address{address},
		Topics:    Topics(kinds...),
	}
	sub, err := filterer.SubscribeFilterLogs(ctx, q, sink)
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe registry events at %s", address.Hex())
	}
	return sub, nil
}
