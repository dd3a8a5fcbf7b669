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
	"time"

	"github.com/pkg/errors"
)

// Result is the outcome of executing a statement.
type Result struct {
	Results []map[string]interface{}
	Success bool
	Meta    Metadata
}

// Metadata describes an execution.
type Metadata struct {
	Duration time.Duration
	// Txn is the receipt of a write, nil for reads.
	Txn *WaitableReceipt
}

// execResult is the driver result of a write, the registry reports neither
// affected rows nor insert ids.
type execResult struct {
	receipt *WaitableReceipt
}

// LastInsertId is not supported.
func (r *execResult) LastInsertId() (int64, error) {
	return 0, errors.New("LastInsertId is not supported")
}

// RowsAffected is not supported.
func (r *execResult) RowsAffected() (int64, error) {
	return 0, errors.New("RowsAffected is not supported")
}

// Receipt returns the receipt of the write.
func (r *execResult) Receipt() *WaitableReceipt {
	return r.receipt
}
