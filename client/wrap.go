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

package client

import (
	"github.com/CovenantSQL/tablebridge/naming"
	"github.com/CovenantSQL/tablebridge/registry"
	"github.com/CovenantSQL/tablebridge/types"
	"github.com/CovenantSQL/tablebridge/utils/log"
)

// wrappedEvents are the registry events that name the tables a transaction touched.
var wrappedEvents = map[registry.EventKind]bool{
	registry.CreateTable:   true,
	registry.RunSQL:        true,
	registry.TransferTable: true,
}

// Source describes where the names of a wrapped transaction come from: a
// single prefix, or the statements that were submitted in log order.
type Source struct {
	Prefix     string
	Statements []*types.NormalizedStatement
}

// SinglePrefix returns a Source naming every table with prefix.
func SinglePrefix(prefix string) Source {
	return Source{Prefix: prefix}
}

// FromStatements returns a Source naming the i-th table after the i-th statement.
func FromStatements(stmts ...*types.NormalizedStatement) Source {
	return Source{Statements: stmts}
}

// WrapTransaction turns a mined registry transaction into a WaitableReceipt.
// chainID is used when the transaction does not carry one.
func WrapTransaction(tx *registry.Transaction, chainID int64, src Source) (r *WaitableReceipt, err error) {
	var tableIDs []string
	for _, l := range tx.Logs {
		kind, id, err := registry.TableIDFromLog(l)
		if err != nil || !wrappedEvents[kind] {
			continue
		}
		tableIDs = append(tableIDs, id.String())
	}
	if len(tableIDs) == 0 {
		return nil, types.NewError(types.KindNoEvents,
			"transaction %s emitted no table events", tx.Hash.Hex())
	}

	if tx.ChainID != 0 {
		chainID = tx.ChainID
	}

	r = &WaitableReceipt{
		ChainID:         chainID,
		TransactionHash: tx.Hash.Hex(),
		BlockNumber:     tx.BlockNumber,
		TableIDs:        tableIDs,
	}
	for i, id := range tableIDs {
		prefix := src.prefixAt(i, chainID, id)
		r.Prefixes = append(r.Prefixes, prefix)
		r.Names = append(r.Names, naming.UniversalName(prefix, chainID, id))
	}

	log.WithFields(log.Fields{
		"tx":     r.TransactionHash,
		"chain":  chainID,
		"tables": r.Names,
	}).Debug("transaction wrapped")
	return
}

func (s Source) prefixAt(i int, chainID int64, tableID string) string {
	if len(s.Statements) == 0 {
		return s.Prefix
	}
	if i >= len(s.Statements) {
		i = len(s.Statements) - 1
	}
	st := s.Statements[i]
	if st == nil || len(st.Tables) == 0 {
		return s.Prefix
	}
	if st.Type == types.CreateStatement {
		return st.Tables[0]
	}
	return naming.StripSuffix(st.Tables[0], chainID, tableID)
}

// isCreate reports whether every statement of s is a create.
func (s Source) isCreate() bool {
	if len(s.Statements) == 0 {
		return false
	}
	for _, st := range s.Statements {
		if st == nil || st.Type != types.CreateStatement {
			return false
		}
	}
	return true
}
