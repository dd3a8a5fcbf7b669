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

import "github.com/pkg/errors"

// Various errors the engine and driver might return.
var (
	// ErrQueryInTransaction represents a read query is presented during user transaction.
	ErrQueryInTransaction = errors.New("only write is supported during transaction")
	// ErrNoSubmitter represents a write was attempted on a read only database.
	ErrNoSubmitter = errors.New("no registry submitter configured")
	// ErrNoChain represents a write was attempted without a chain id.
	ErrNoChain = errors.New("no chain id configured")
	// ErrNoConnector represents a dsn naming an unregistered connector.
	ErrNoConnector = errors.New("no connector registered")
	// ErrEmptyBatch represents a batch without statements.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrTxDone represents a commit or rollback on a finished transaction.
	ErrTxDone = errors.New("transaction already committed or rolled back")
)
