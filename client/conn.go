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
	"database/sql"
	"database/sql/driver"
	"sync/atomic"

	"github.com/CovenantSQL/tablebridge/types"
	"github.com/CovenantSQL/tablebridge/utils/log"
)

// conn implements an interface sql.Conn.
type conn struct {
	db *Database

	queries       []*Statement
	txCtx         context.Context
	inTransaction bool
	closed        int32
}

func newConn(cfg *Config) (c *conn, err error) {
	var db *Database
	if db, err = NewDatabase(cfg); err != nil {
		return
	}
	c = &conn{db: db}
	c.log("new conn on chain ", cfg.ChainID)
	return
}

func (c *conn) log(msg ...interface{}) {
	log.Debug(msg...)
}

// Prepare implements the driver.Conn.Prepare method.
func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// Close implements the driver.Conn.Close method.
func (c *conn) Close() error {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.log("closed connection")
	}
	return nil
}

// Begin implements the driver.Conn.Begin method.
func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements the driver.ConnBeginTx.BeginTx method.
func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if atomic.LoadInt32(&c.closed) != 0 {
		return nil, driver.ErrBadConn
	}
	if opts.ReadOnly {
		return nil, ErrQueryInTransaction
	}

	c.log("begin transaction tx=", c.inTransaction)
	if c.inTransaction {
		return nil, ErrTxDone
	}

	c.inTransaction = true
	c.txCtx = ctx
	c.queries = c.queries[:0]
	return c, nil
}

// PrepareContext implements the driver.ConnPrepareContext.ConnPrepareContext method.
func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if atomic.LoadInt32(&c.closed) != 0 {
		return nil, driver.ErrBadConn
	}
	return newStmt(c, query), nil
}

// ExecContext implements the driver.ExecerContext.ExecContext method.
func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (result driver.Result, err error) {
	if atomic.LoadInt32(&c.closed) != 0 {
		err = driver.ErrBadConn
		return
	}

	s := c.db.Prepare(query).Bind(convertArgs(args)...)
	if c.inTransaction {
		// writes are collected and submitted as one batch on commit
		var ns *types.NormalizedStatement
		if ns, err = s.compile(); err != nil {
			return
		}
		if ns.Type == types.ReadStatement {
			err = ErrQueryInTransaction
			return
		}
		c.queries = append(c.queries, s)
		result = driver.ResultNoRows
		return
	}

	var res *Result
	if res, err = s.Run(ctx); err != nil {
		return
	}
	result = &execResult{receipt: res.Meta.Txn}
	return
}

// QueryContext implements the driver.QueryerContext.QueryContext method.
func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (dr driver.Rows, err error) {
	if atomic.LoadInt32(&c.closed) != 0 {
		err = driver.ErrBadConn
		return
	}
	if c.inTransaction {
		err = ErrQueryInTransaction
		return
	}

	s := c.db.Prepare(query).Bind(convertArgs(args)...)
	ns, err := s.compile()
	if err != nil {
		return nil, types.WrapError(types.KindRaw, err)
	}
	if ns.Type != types.ReadStatement {
		if _, err = c.db.dispatch(ctx, ns); err != nil {
			return nil, types.WrapError(types.KindRaw, err)
		}
		return &rows{}, nil
	}
	t, err := c.db.queryTable(ctx, ns)
	if err != nil {
		return nil, types.WrapError(types.KindRaw, err)
	}
	return newRows(t), nil
}

// Commit implements the driver.Tx.Commit method.
func (c *conn) Commit() (err error) {
	if atomic.LoadInt32(&c.closed) != 0 {
		return driver.ErrBadConn
	}
	if !c.inTransaction {
		return ErrTxDone
	}

	defer func() {
		c.queries = c.queries[:0]
		c.txCtx = nil
		c.inTransaction = false
	}()

	if len(c.queries) > 0 {
		ctx := c.txCtx
		if ctx == nil {
			ctx = context.Background()
		}
		_, err = c.db.Batch(ctx, c.queries)
	}
	return
}

// Rollback implements the driver.Tx.Rollback method.
func (c *conn) Rollback() error {
	if atomic.LoadInt32(&c.closed) != 0 {
		return driver.ErrBadConn
	}
	if !c.inTransaction {
		return ErrTxDone
	}

	c.queries = c.queries[:0]
	c.txCtx = nil
	c.inTransaction = false
	return nil
}

// convertArgs maps driver arguments to Bind arguments, named values become sql.NamedArg.
func convertArgs(args []driver.NamedValue) (out []interface{}) {
	out = make([]interface{}, 0, len(args))
	for _, a := range args {
		if a.Name != "" {
			out = append(out, sql.Named(a.Name, a.Value))
		} else {
			out = append(out, a.Value)
		}
	}
	return
}
