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

package validator

import (
	"context"
	"fmt"

	"github.com/CovenantSQL/tablebridge/poller"
	"github.com/CovenantSQL/tablebridge/types"
	"github.com/CovenantSQL/tablebridge/utils/log"
)

// PollReceipt polls fetcher until the receipt of hash is available.
//
// A receipt reporting a materialization error fails with
// MATERIALIZATION_ERROR and is not retried. Transport failures and missing
// receipts are retried until ctrl aborts, which fails with ABORTED.
func PollReceipt(ctrl *poller.Controller, fetcher ReceiptFetcher, chainID int64, hash string) (
	r *types.TransactionReceipt, err error) {
	if ctrl.Aborted() {
		return nil, types.WrapError(types.KindAborted, ctrl.Reason())
	}

	data, err := poller.Poll(ctrl, func(ctx context.Context) (bool, interface{}, error) {
		receipt, found, err := fetcher.ReceiptByTransactionHash(ctx, chainID, hash)
		if err != nil {
			log.WithFields(log.Fields{
				"chain": chainID,
				"tx":    hash,
			}).WithError(err).Debug("receipt lookup failed, retrying")
			return false, nil, nil
		}
		if !found || receipt == nil {
			return false, nil, nil
		}
		if receipt.Failed() {
			return false, nil, types.NewError(types.KindMaterialization, "%s", receipt.Error).
				WithCause(&MaterializationError{Receipt: receipt})
		}
		return true, receipt, nil
	})
	if err != nil {
		if _, ok := types.AsError(err); ok {
			return nil, err
		}
		return nil, types.WrapError(types.KindAborted, err)
	}
	return data.(*types.TransactionReceipt), nil
}

// MaterializationError carries the failed receipt.
type MaterializationError struct {
	Receipt *types.TransactionReceipt
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("transaction %s failed on chain %d: %s",
		e.Receipt.TransactionHash, e.Receipt.ChainID, e.Receipt.Error)
}
