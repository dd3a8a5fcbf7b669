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
	"strings"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/tablebridge/chains"
	"github.com/CovenantSQL/tablebridge/metric"
	"github.com/CovenantSQL/tablebridge/naming"
	"github.com/CovenantSQL/tablebridge/normalizer"
	"github.com/CovenantSQL/tablebridge/poller"
	"github.com/CovenantSQL/tablebridge/registry"
	"github.com/CovenantSQL/tablebridge/types"
	"github.com/CovenantSQL/tablebridge/utils/log"
	"github.com/CovenantSQL/tablebridge/validator"
)

// Database executes sql against the registry contract and the validator.
type Database struct {
	cfg       Config
	norm      normalizer.Normalizer
	chains    *chains.Registry
	validator *validator.Client
}

// NewDatabase returns a database configured by cfg.
func NewDatabase(cfg *Config) (db *Database, err error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	db = &Database{cfg: *cfg}
	if db.norm = cfg.Normalizer; db.norm == nil {
		db.norm = normalizer.New()
	}
	if db.chains = cfg.Chains; db.chains == nil {
		db.chains = chains.NewRegistry()
	}

	base := cfg.BaseURL
	if base == "" && cfg.ChainID != 0 {
		if base, err = db.chains.BaseURL(cfg.ChainID); err != nil {
			return nil, err
		}
	}
	if db.validator = cfg.Validator; db.validator == nil {
		db.validator = validator.NewClient(base, cfg.HTTPClient)
	} else if base != "" {
		db.validator = db.validator.WithBaseURL(base)
	}

	return
}

// Config returns a copy of the database config.
func (db *Database) Config() Config {
	return db.cfg
}

// Prepare returns an unbound statement of sql.
func (db *Database) Prepare(sql string) *Statement {
	return &Statement{db: db, sql: sql}
}

// controller returns ctx as a controller, or a new controller owned by the caller.
func (db *Database) controller(ctx context.Context) (ctrl *poller.Controller, release func()) {
	if c, ok := ctx.(*poller.Controller); ok {
		return c, func() {}
	}
	ctrl = poller.NewController(ctx, db.cfg.PollTimeout, db.cfg.PollInterval)
	return ctrl, ctrl.Cancel
}

// normalize classifies literal sql. The created prefixes of a create are
// re-normalized without the alias mapping and checked against it, the
// submitted text keeps its resolved references.
func (db *Database) normalize(sql string) (ns *types.NormalizedStatement, err error) {
	var mapping naming.Mapping
	if db.cfg.Aliases != nil {
		if mapping, err = db.cfg.Aliases.Read(); err != nil {
			return nil, errors.Wrap(err, "read aliases")
		}
	}
	if ns, err = db.norm.Normalize(sql, mapping); err != nil {
		return
	}
	if ns.Type == types.CreateStatement && len(mapping) > 0 {
		var literal *types.NormalizedStatement
		if literal, err = db.norm.Normalize(sql, nil); err != nil {
			return nil, err
		}
		if err = naming.CheckCollision(literal.Tables, mapping); err != nil {
			return nil, err
		}
		ns.Tables = literal.Tables
	}
	return
}

// payloads splits ns into one submission payload per sql statement.
func (db *Database) payloads(ns *types.NormalizedStatement) (out []payload, err error) {
	items := []*types.NormalizedStatement{ns}
	if len(ns.Statements) > 1 {
		items = nil
		for _, stmt := range ns.Statements {
			var item *types.NormalizedStatement
			if item, err = db.norm.Normalize(stmt, nil); err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	for _, item := range items {
		if item.Type == types.CreateStatement {
			out = append(out, Raw{Stmt: item})
			continue
		}
		if len(item.Tables) == 0 {
			return nil, types.ErrNoTable
		}
		out = append(out, Prepared{Table: item.Tables[0], SQL: strings.Join(item.Statements, ";")})
	}
	return
}

// validatorFor returns the validator serving chainID.
func (db *Database) validatorFor(chainID int64) (*validator.Client, error) {
	if db.cfg.BaseURL != "" {
		return db.validator, nil
	}
	base, err := db.chains.BaseURL(chainID)
	if err != nil {
		return nil, err
	}
	return db.validator.WithBaseURL(base), nil
}

// readChain returns the chain shared by every universal table of stmts, nil
// when none is universal. Tables on chains of different networks fail with
// NETWORK_MISMATCH.
func (db *Database) readChain(stmts ...*types.NormalizedStatement) (*chains.Chain, error) {
	var first *chains.Chain
	for _, ns := range stmts {
		for _, t := range ns.Tables {
			parts, err := db.norm.ValidateTableName(t)
			if err != nil {
				// not a universal name, e.g. a cte or sqlite_master
				continue
			}
			c, err := db.chains.Lookup(parts.ChainID)
			if err != nil {
				return nil, err
			}
			if first == nil {
				first = &c
				continue
			}
			if c.Class != first.Class || c.URL() != first.URL() {
				return nil, types.NewError(types.KindNetworkMismatch,
					"tables on chain %d (%s) and chain %d (%s) cannot be read together",
					first.ID, first.Class, c.ID, c.Class)
			}
		}
	}
	return first, nil
}

// readValidator returns the validator serving every table of stmts.
func (db *Database) readValidator(stmts ...*types.NormalizedStatement) (*validator.Client, error) {
	first, err := db.readChain(stmts...)
	if err != nil {
		return nil, err
	}
	if db.cfg.BaseURL != "" {
		return db.validator, nil
	}
	if first != nil {
		return db.validator.WithBaseURL(first.URL()), nil
	}
	if db.cfg.ChainID != 0 {
		return db.validatorFor(db.cfg.ChainID)
	}
	if db.validator.BaseURL() == "" {
		return nil, errors.Wrap(types.ErrNoTable, "cannot route read")
	}
	return db.validator, nil
}

func (db *Database) queryObjects(ctx context.Context, ns *types.NormalizedStatement) (
	rows []map[string]interface{}, err error) {
	v, err := db.readValidator(ns)
	if err != nil {
		return
	}
	return v.QueryObjects(ctx, ns.Statements[0])
}

func (db *Database) queryTable(ctx context.Context, ns *types.NormalizedStatement) (
	t *validator.TableResult, err error) {
	v, err := db.readValidator(ns)
	if err != nil {
		return
	}
	return v.QueryTable(ctx, ns.Statements[0])
}

// write submits payloads as one transaction and waits for it when AutoWait is set.
func (db *Database) write(ctx context.Context, typ types.StatementType, payloads []payload) (
	r *WaitableReceipt, err error) {
	if r, err = db.submit(ctx, typ, payloads); err != nil {
		return
	}
	if db.cfg.AutoWait {
		if _, err = r.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return
}

func (db *Database) submit(ctx context.Context, typ types.StatementType, payloads []payload) (
	r *WaitableReceipt, err error) {
	if db.cfg.Submitter == nil {
		return nil, ErrNoSubmitter
	}
	if db.cfg.ChainID == 0 {
		return nil, ErrNoChain
	}

	var (
		tx  *registry.Transaction
		src Source
	)
	if typ == types.CreateStatement {
		var (
			stmts   []string
			sources []*types.NormalizedStatement
		)
		for _, p := range payloads {
			raw, ok := p.(Raw)
			if !ok {
				return nil, errors.Errorf("unexpected %T payload in a create transaction", p)
			}
			for _, stmt := range raw.Stmt.Statements {
				stmts = append(stmts, normalizer.QualifyCreate(stmt, db.cfg.ChainID))
			}
			sources = append(sources, raw.Stmt)
		}
		tx, err = db.cfg.Submitter.Create(ctx, stmts)
		src = FromStatements(sources...)
	} else {
		var (
			runnables []registry.Runnable
			sources   []*types.NormalizedStatement
		)
		if runnables, sources, err = db.group(typ, payloads); err != nil {
			return
		}
		tx, err = db.cfg.Submitter.Mutate(ctx, runnables)
		src = FromStatements(sources...)
	}
	metric.Submissions.WithLabelValues(string(typ), metric.Result(err)).Inc()
	if err != nil {
		return nil, errors.Wrapf(err, "submit %s transaction", typ)
	}

	if r, err = WrapTransaction(tx, db.cfg.ChainID, src); err != nil {
		return
	}
	fetcher, err := db.validatorFor(r.ChainID)
	if err != nil {
		return nil, err
	}
	var aliases naming.Store
	if typ == types.CreateStatement {
		aliases = db.cfg.Aliases
	}
	r.bind(fetcher, aliases, db.cfg.PollTimeout, db.cfg.PollInterval)

	log.WithFields(log.Fields{
		"type":   typ,
		"tx":     r.TransactionHash,
		"tables": r.Names,
	}).Info("transaction submitted")
	return
}

// group folds prepared payloads into one runnable per table, concatenating
// statements in order of first appearance.
func (db *Database) group(typ types.StatementType, payloads []payload) (
	runnables []registry.Runnable, sources []*types.NormalizedStatement, err error) {
	index := map[types.TableIdentifier]int{}
	for _, p := range payloads {
		prepared, ok := p.(Prepared)
		if !ok {
			return nil, nil, errors.Errorf("unexpected %T payload in a %s transaction", p, typ)
		}
		var parts naming.Parts
		if parts, err = db.norm.ValidateTableName(prepared.Table); err != nil {
			return
		}
		i, ok := index[parts.Identifier()]
		if !ok {
			if parts.ChainID != db.cfg.ChainID {
				return nil, nil, types.NewError(types.KindNetworkMismatch,
					"table %s is not on chain %d", prepared.Table, db.cfg.ChainID)
			}
			id, ok := new(big.Int).SetString(parts.TableID, 10)
			if !ok {
				return nil, nil, errors.Wrapf(naming.ErrInvalidName, "table id of %s", prepared.Table)
			}
			i = len(runnables)
			index[parts.Identifier()] = i
			runnables = append(runnables, registry.Runnable{TableID: id})
			sources = append(sources, &types.NormalizedStatement{Type: typ, Tables: []string{prepared.Table}})
		}
		sources[i].Statements = append(sources[i].Statements, prepared.SQL)
	}
	for i := range runnables {
		runnables[i].Statement = strings.Join(sources[i].Statements, ";")
	}
	return
}
