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

package types

import "strconv"

// StatementType is the classification of a normalized statement.
type StatementType string

const (
	// ReadStatement is a SELECT routed to the validator query endpoint.
	ReadStatement StatementType = "read"
	// WriteStatement is an INSERT/UPDATE/DELETE submitted to the registry.
	WriteStatement StatementType = "write"
	// CreateStatement is a CREATE TABLE submitted to the registry.
	CreateStatement StatementType = "create"
	// ACLStatement is a GRANT/REVOKE submitted to the registry.
	ACLStatement StatementType = "acl"
)

// NormalizedStatement is the classification of one literal sql string.
type NormalizedStatement struct {
	Type StatementType
	// Tables are the created prefixes for create statements, the referenced
	// universal names otherwise.
	Tables []string
	// Statements are the individual statements with aliases resolved.
	Statements []string
}

// TableIdentifier is the opaque handle of a single table.
type TableIdentifier struct {
	ChainID int64  `json:"chainId"`
	TableID string `json:"tableId"`
}

// String returns chainId_tableId.
func (t TableIdentifier) String() string {
	return strconv.FormatInt(t.ChainID, 10) + "_" + t.TableID
}
