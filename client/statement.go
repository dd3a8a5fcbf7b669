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
	"time"

	"github.com/CovenantSQL/tablebridge/normalizer"
	"github.com/CovenantSQL/tablebridge/types"
)

// Statement is a prepared sql string with its bound arguments.
type Statement struct {
	db   *Database
	sql  string
	args []interface{}
}

// Bind returns a copy of the statement bound to args. Arguments may be
// positional values, sql.NamedArg or a map[string]interface{} of named values.
func (s *Statement) Bind(args ...interface{}) *Statement {
	return &Statement{
		db:   s.db,
		sql:  s.sql,
		args: append([]interface{}(nil), args...),
	}
}

// ToSQL returns the statement with its arguments rendered as literals.
func (s *Statement) ToSQL() (string, error) {
	return normalizer.Bind(s.sql, s.args...)
}

// String returns the bound sql, or the raw sql when binding fails.
func (s *Statement) String() string {
	sql, err := s.ToSQL()
	if err != nil {
		return s.sql
	}
	return sql
}

// compile binds and classifies the statement.
func (s *Statement) compile() (*types.NormalizedStatement, error) {
	sql, err := s.ToSQL()
	if err != nil {
		return nil, err
	}
	return s.db.normalize(sql)
}

// All executes the statement and returns every row of a read.
func (s *Statement) All(ctx context.Context) (res *Result, err error) {
	if res, err = s.db.execute(ctx, s.compile, true); err != nil {
		return nil, types.WrapError(types.KindAll, err)
	}
	return
}

// First executes the statement and returns the first row of a read, or the
// value of column in it when column is set. Writes and empty reads return nil.
func (s *Statement) First(ctx context.Context, column string) (v interface{}, err error) {
	res, err := s.db.execute(ctx, s.compile, true)
	if err != nil {
		return nil, types.WrapError(types.KindFirst, err)
	}
	if len(res.Results) == 0 {
		return nil, nil
	}
	if column == "" {
		return res.Results[0], nil
	}
	return res.Results[0][column], nil
}

// Run executes the statement and returns its metadata only.
func (s *Statement) Run(ctx context.Context) (res *Result, err error) {
	if res, err = s.db.execute(ctx, s.compile, false); err != nil {
		return nil, types.WrapError(types.KindRun, err)
	}
	return
}

// Raw executes the statement and returns the rows of a read as value arrays.
func (s *Statement) Raw(ctx context.Context) (rows [][]interface{}, err error) {
	ns, err := s.compile()
	if err != nil {
		return nil, types.WrapError(types.KindRaw, err)
	}
	if ns.Type != types.ReadStatement {
		if _, err = s.db.dispatch(ctx, ns); err != nil {
			return nil, types.WrapError(types.KindRaw, err)
		}
		return [][]interface{}{}, nil
	}
	t, err := s.db.queryTable(ctx, ns)
	if err != nil {
		return nil, types.WrapError(types.KindRaw, err)
	}
	return t.Rows, nil
}

// Exec runs a statement string verbatim, without binding, as one transaction.
func (db *Database) Exec(ctx context.Context, sql string) (res *Result, err error) {
	res, err = db.execute(ctx, func() (*types.NormalizedStatement, error) {
		return db.normalize(sql)
	}, false)
	if err != nil {
		return nil, types.WrapError(types.KindExec, err)
	}
	return
}

// execute runs compiled sql, collecting the rows of a read when rows is set.
func (db *Database) execute(ctx context.Context, compile func() (*types.NormalizedStatement, error), rows bool) (
	res *Result, err error) {
	start := time.Now()
	ns, err := compile()
	if err != nil {
		return nil, err
	}

	res = &Result{Success: true}
	if ns.Type == types.ReadStatement {
		var objects []map[string]interface{}
		if objects, err = db.queryObjects(ctx, ns); err != nil {
			return nil, err
		}
		if rows {
			res.Results = objects
		}
	} else {
		if res.Meta.Txn, err = db.dispatch(ctx, ns); err != nil {
			return nil, err
		}
		if rows {
			res.Results = []map[string]interface{}{}
		}
	}
	res.Meta.Duration = time.Since(start)
	return
}

// dispatch submits a non read statement.
func (db *Database) dispatch(ctx context.Context, ns *types.NormalizedStatement) (*WaitableReceipt, error) {
	payloads, err := db.payloads(ns)
	if err != nil {
		return nil, err
	}
	return db.write(ctx, ns.Type, payloads)
}
