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

	"github.com/pkg/errors"

	"github.com/CovenantSQL/tablebridge/utils/log"
)

// ExecuteTx runs fn in a transaction of db. The writes fn issues are queued
// and submitted as one batch on commit, a failing fn discards them.
func ExecuteTx(ctx context.Context, db *sql.DB, txopts *sql.TxOptions, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, txopts)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	return ExecuteInTx(tx, func() error { return fn(tx) })
}

// ExecuteInTx commits tx when fn succeeds and rolls it back otherwise.
func ExecuteInTx(tx driver.Tx, fn func() error) error {
	if err := fn(); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithError(rbErr).Warning("rollback transaction failed")
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}
