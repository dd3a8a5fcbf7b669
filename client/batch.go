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
	"sync"
	"time"

	"github.com/ivpusic/grpool"

	"github.com/CovenantSQL/tablebridge/types"
	"github.com/CovenantSQL/tablebridge/utils/log"
)

// maxReadWorkers bounds the concurrent validator queries of one batch read.
const maxReadWorkers = 8

// payload is one unit of a registry submission, either Raw or Prepared.
type payload interface {
	isPayload()
}

// Raw is a create statement submitted verbatim.
type Raw struct {
	Stmt *types.NormalizedStatement
}

// Prepared is sql targeting the single universal table Table.
type Prepared struct {
	Table string
	SQL   string
}

func (Raw) isPayload()      {}
func (Prepared) isPayload() {}

// Batch executes stmts together. Every statement must be of the same type.
// Reads run in parallel and fail fast, other types are submitted as one
// transaction and every result carries its receipt.
func (db *Database) Batch(ctx context.Context, stmts []*Statement) (results []*Result, err error) {
	if results, err = db.batch(ctx, stmts); err != nil {
		return nil, types.WrapError(types.KindBatch, err)
	}
	return
}

func (db *Database) batch(ctx context.Context, stmts []*Statement) (results []*Result, err error) {
	if len(stmts) == 0 {
		return nil, ErrEmptyBatch
	}

	start := time.Now()
	compiled := make([]*types.NormalizedStatement, len(stmts))
	for i, s := range stmts {
		var ns *types.NormalizedStatement
		if ns, err = s.compile(); err != nil {
			return
		}
		if i > 0 && ns.Type != compiled[0].Type {
			return nil, types.NewError(types.KindBatchTypeMismatch,
				"statement %d is a %s statement in a %s batch", i, ns.Type, compiled[0].Type)
		}
		compiled[i] = ns
	}

	typ := compiled[0].Type
	if typ == types.ReadStatement {
		return db.batchRead(ctx, compiled, start)
	}

	var payloads []payload
	for i, ns := range compiled {
		if len(compiled) > 1 && len(ns.Tables) > 1 {
			return nil, types.NewError(types.KindBatchMultiTable,
				"statement %d references %d tables, batched statements must reference one", i, len(ns.Tables))
		}
		var p []payload
		if p, err = db.payloads(ns); err != nil {
			return
		}
		payloads = append(payloads, p...)
	}

	r, err := db.write(ctx, typ, payloads)
	if err != nil {
		return
	}

	meta := Metadata{Duration: time.Since(start), Txn: r}
	for range compiled {
		results = append(results, &Result{
			Results: []map[string]interface{}{},
			Success: true,
			Meta:    meta,
		})
	}
	return
}

// batchRead queries every statement in parallel under one controller. The
// first failure aborts the others.
func (db *Database) batchRead(ctx context.Context, compiled []*types.NormalizedStatement, start time.Time) (
	results []*Result, err error) {
	// every statement of a batch is served by one network
	v, err := db.readValidator(compiled...)
	if err != nil {
		return
	}

	ctrl, release := db.controller(ctx)
	defer release()

	workers := len(compiled)
	if workers > maxReadWorkers {
		workers = maxReadWorkers
	}
	pool := grpool.NewPool(workers, len(compiled))
	defer pool.Release()

	var once sync.Once
	results = make([]*Result, len(compiled))
	pool.WaitCount(len(compiled))
	for i := range compiled {
		i := i
		pool.JobQueue <- func() {
			defer pool.JobDone()
			rows, qerr := v.QueryObjects(ctrl, compiled[i].Statements[0])
			if qerr != nil {
				once.Do(func() {
					err = qerr
					ctrl.Abort(qerr)
				})
				return
			}
			results[i] = &Result{
				Results: rows,
				Success: true,
				Meta:    Metadata{Duration: time.Since(start)},
			}
		}
	}
	pool.WaitAll()

	if err != nil {
		log.WithError(err).WithField("statements", len(compiled)).Debug("batch read failed")
		return nil, err
	}
	return
}
