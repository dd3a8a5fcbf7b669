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

// Package registry talks to the on-chain table registry contract: it
// submits create and mutate calls and decodes the table events they emit.
package registry

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// EventKind is a registry contract event carrying a table id.
type EventKind string

// Registry events.
const (
	CreateTable   EventKind = "CreateTable"
	RunSQL        EventKind = "RunSQL"
	TransferTable EventKind = "TransferTable"
	SetController EventKind = "SetController"
)

type eventSpec struct {
	signature string
	// position of the tableId word in the non-indexed data head
	tableIDPos int
	topic      common.Hash
}

var (
	// ErrShortLog is returned when a log is too short to carry its table id.
	ErrShortLog = errors.New("log data too short")
	// ErrUnknownEvent is returned for logs which are not registry table events.
	ErrUnknownEvent = errors.New("unknown registry event")

	specs = map[EventKind]*eventSpec{
		CreateTable:   {signature: "CreateTable(address,uint256,string)", tableIDPos: 1},
		RunSQL:        {signature: "RunSQL(address,bool,uint256,string,(bool,bool,bool,string,string,string[]))", tableIDPos: 2},
		TransferTable: {signature: "TransferTable(address,address,uint256)", tableIDPos: 2},
		SetController: {signature: "SetController(uint256,address)", tableIDPos: 0},
	}
	byTopic = map[common.Hash]EventKind{}
)

func init() {
	for kind, spec := range specs {
		spec.topic = crypto.Keccak256Hash([]byte(spec.signature))
		byTopic[spec.topic] = kind
	}
}

// Topic returns the log topic of kind.
func (k EventKind) Topic() common.Hash {
	if spec, ok := specs[k]; ok {
		return spec.topic
	}
	return common.Hash{}
}

// Signature returns the canonical event signature of kind.
func (k EventKind) Signature() string {
	if spec, ok := specs[k]; ok {
		return spec.signature
	}
	return ""
}

// TableIDPosition returns the argument position of the table id of kind.
func (k EventKind) TableIDPosition() int {
	if spec, ok := specs[k]; ok {
		return spec.tableIDPos
	}
	return -1
}

// KindOf returns the event kind of l.
func KindOf(l *types.Log) (EventKind, bool) {
	if l == nil || len(l.Topics) == 0 {
		return "", false
	}
	kind, ok := byTopic[l.Topics[0]]
	return kind, ok
}

// TableIDFromLog decodes the table id carried by l.
func TableIDFromLog(l *types.Log) (kind EventKind, id *big.Int, err error) {
	kind, ok := KindOf(l)
	if !ok {
		err = ErrUnknownEvent
		return
	}
	pos := specs[kind].tableIDPos
	if len(l.Data) < 32*(pos+1) {
		err = errors.Wrapf(ErrShortLog, "%s log of %d bytes", kind, len(l.Data))
		return
	}
	id = new(big.Int).SetBytes(l.Data[32*pos : 32*(pos+1)])
	return
}

// Topics returns the filter topics matching any of kinds.
func Topics(kinds ...EventKind) [][]common.Hash {
	first := make([]common.Hash, 0, len(kinds))
	for _, k := range kinds {
		first = append(first, k.Topic())
	}
	return [][]common.Hash{first}
}
