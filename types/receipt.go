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

// TransactionReceipt is the validator report of materializing one transaction.
type TransactionReceipt struct {
	TransactionHash string   `json:"transaction_hash"`
	ChainID         int64    `json:"chain_id"`
	TableID         string   `json:"table_id,omitempty"`
	TableIDs        []string `json:"table_ids,omitempty"`
	BlockNumber     int64    `json:"block_number"`
	Error           string   `json:"error,omitempty"`
	ErrorEventIdx   *int     `json:"error_event_idx,omitempty"`
}

// Failed reports whether the validator refused to materialize the transaction.
func (r *TransactionReceipt) Failed() bool {
	return r != nil && r.Error != ""
}
