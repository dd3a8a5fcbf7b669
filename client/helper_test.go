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
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/CovenantSQL/tablebridge/chains"
	"github.com/CovenantSQL/tablebridge/naming"
	"github.com/CovenantSQL/tablebridge/registry"
	"github.com/CovenantSQL/tablebridge/types"
	"github.com/CovenantSQL/tablebridge/validator"
	"github.com/CovenantSQL/tablebridge/validator/validatortest"
)

const testChainID = 31337

func word(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

// tableLog returns a log of kind carrying id at its table id position.
func tableLog(kind registry.EventKind, id *big.Int) *ethtypes.Log {
	l := &ethtypes.Log{Topics: []common.Hash{kind.Topic()}}
	for i := 0; i < kind.TableIDPosition(); i++ {
		l.Data = append(l.Data, word(big.NewInt(0))...)
	}
	l.Data = append(l.Data, word(id)...)
	return l
}

// fakeSubmitter mints table ids and registers receipts on a fake validator.
type fakeSubmitter struct {
	mu  sync.Mutex
	srv *validatortest.Server

	// echo is the chain id reported by transactions, zero for none.
	echo    int64
	misses  int
	failure string
	err     error
	noLogs  bool

	nonce     int64
	nextTable int64
	creates   [][]string
	mutates   [][]registry.Runnable
}

func newFakeSubmitter(srv *validatortest.Server) *fakeSubmitter {
	return &fakeSubmitter{srv: srv, echo: testChainID, nextTable: 1}
}

func (f *fakeSubmitter) Create(ctx context.Context, statements []string) (*registry.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.creates = append(f.creates, statements)

	var logs []*ethtypes.Log
	for range statements {
		logs = append(logs, tableLog(registry.CreateTable, big.NewInt(f.nextTable)))
		f.nextTable++
	}
	return f.mine(logs), nil
}

func (f *fakeSubmitter) Mutate(ctx context.Context, runnables []registry.Runnable) (*registry.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.mutates = append(f.mutates, runnables)

	var logs []*ethtypes.Log
	for _, r := range runnables {
		logs = append(logs, tableLog(registry.RunSQL, r.TableID))
	}
	return f.mine(logs), nil
}

func (f *fakeSubmitter) mine(logs []*ethtypes.Log) *registry.Transaction {
	f.nonce++
	tx := &registry.Transaction{
		Hash:        common.BigToHash(big.NewInt(f.nonce)),
		ChainID:     f.echo,
		BlockNumber: f.nonce,
	}
	if !f.noLogs {
		tx.Logs = logs
	}

	var ids []string
	for _, l := range tx.Logs {
		_, id, _ := registry.TableIDFromLog(l)
		ids = append(ids, id.String())
	}
	receipt := &types.TransactionReceipt{
		TransactionHash: tx.Hash.Hex(),
		ChainID:         testChainID,
		TableIDs:        ids,
		BlockNumber:     tx.BlockNumber,
		Error:           f.failure,
	}
	if len(ids) > 0 {
		receipt.TableID = ids[0]
	}
	f.srv.SetReceipt(receipt, f.misses)
	return tx
}

func (f *fakeSubmitter) mutated() [][]registry.Runnable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]registry.Runnable(nil), f.mutates...)
}

func (f *fakeSubmitter) created() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.creates...)
}

// testChains points the local chain at srv.
func testChains(srv *validatortest.Server) *chains.Registry {
	r := chains.NewRegistry()
	if err := r.Override(chains.Chain{ID: testChainID, Class: chains.Local, BaseURL: srv.BaseURL()}); err != nil {
		panic(err)
	}
	return r
}

type testEnv struct {
	srv     *validatortest.Server
	sub     *fakeSubmitter
	aliases *naming.MemoryStore
	cfg     *Config
	db      *Database
}

func newTestEnv(autoWait bool) *testEnv {
	srv := validatortest.NewServer()
	env := &testEnv{
		srv:     srv,
		sub:     newFakeSubmitter(srv),
		aliases: naming.NewMemoryStore(nil),
	}
	env.cfg = &Config{
		ChainID:      testChainID,
		Submitter:    env.sub,
		Aliases:      env.aliases,
		Chains:       testChains(srv),
		AutoWait:     autoWait,
		PollTimeout:  2 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}
	db, err := NewDatabase(env.cfg)
	if err != nil {
		panic(err)
	}
	env.db = db
	return env
}

func (e *testEnv) Close() {
	e.srv.Close()
}

// rowsQuery answers every query with rows, in the requested format.
func rowsQuery(columns []string, rows ...[]interface{}) validatortest.QueryFunc {
	return func(statement string, format validator.Format) (int, interface{}) {
		if format == validator.Table {
			t := &validator.TableResult{Rows: rows}
			for _, c := range columns {
				t.Columns = append(t.Columns, validator.Column{Name: c})
			}
			return 200, t
		}
		objects := make([]map[string]interface{}, 0, len(rows))
		for _, r := range rows {
			o := map[string]interface{}{}
			for i, c := range columns {
				o[c] = r[i]
			}
			objects = append(objects, o)
		}
		return 200, objects
	}
}
