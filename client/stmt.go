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
	"database/sql/driver"

	"github.com/CovenantSQL/tablebridge/normalizer"
)

// stmt is a statement prepared on a conn. Nothing is sent before execution,
// arguments are bound on every call.
type stmt struct {
	c      *conn
	query  string
	inputs int
}

func newStmt(c *conn, query string) *stmt {
	return &stmt{
		c:      c,
		query:  query,
		inputs: normalizer.CountPlaceholders(query),
	}
}

func (s *stmt) conn() (*conn, error) {
	if s.c == nil {
		return nil, driver.ErrBadConn
	}
	return s.c, nil
}

// Query implements driver.Stmt.
func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

// Exec implements driver.Stmt.
func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

// QueryContext implements driver.StmtQueryContext.
func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	c, err := s.conn()
	if err != nil {
		return nil, err
	}
	return c.QueryContext(ctx, s.query, args)
}

// ExecContext implements driver.StmtExecContext.
func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	c, err := s.conn()
	if err != nil {
		return nil, err
	}
	return c.ExecContext(ctx, s.query, args)
}

// Close detaches the statement from its conn.
func (s *stmt) Close() error {
	s.c = nil
	return nil
}

// NumInput returns the number of positional placeholders, or -1 when the
// statement uses named or numbered ones and the count is checked on bind.
func (s *stmt) NumInput() int {
	return s.inputs
}

func namedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}
