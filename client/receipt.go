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
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/tablebridge/metric"
	"github.com/CovenantSQL/tablebridge/naming"
	"github.com/CovenantSQL/tablebridge/poller"
	"github.com/CovenantSQL/tablebridge/types"
	"github.com/CovenantSQL/tablebridge/utils/log"
	"github.com/CovenantSQL/tablebridge/utils/timer"
	"github.com/CovenantSQL/tablebridge/validator"
)

// WaitableReceipt is a mined transaction whose materialization can be awaited.
type WaitableReceipt struct {
	Names           []string
	Prefixes        []string
	TableIDs        []string
	ChainID         int64
	TransactionHash string
	BlockNumber     int64

	fetcher  validator.ReceiptFetcher
	aliases  naming.Store
	timeout  time.Duration
	interval time.Duration

	mu      sync.Mutex
	receipt *types.TransactionReceipt
	err     error
	aliased bool
}

// bind attaches the collaborators Wait needs. aliases is only set for create flows.
func (r *WaitableReceipt) bind(fetcher validator.ReceiptFetcher, aliases naming.Store, timeout, interval time.Duration) {
	r.fetcher = fetcher
	r.aliases = aliases
	r.timeout = timeout
	r.interval = interval
}

// Name returns the first universal name of the receipt.
func (r *WaitableReceipt) Name() string {
	if len(r.Names) == 0 {
		return ""
	}
	return r.Names[0]
}

// Wait blocks until the validator materialized the transaction. ctx may be a
// *poller.Controller, otherwise a controller with the configured timeouts is
// derived from it.
func (r *WaitableReceipt) Wait(ctx context.Context) (*types.TransactionReceipt, error) {
	if ctrl, ok := ctx.(*poller.Controller); ok {
		return r.WaitController(ctrl)
	}
	ctrl := poller.NewController(ctx, r.timeout, r.interval)
	defer ctrl.Cancel()
	return r.WaitController(ctrl)
}

// WaitController is Wait with an explicit controller. Materialized and failed
// outcomes are cached, an aborted wait may be retried.
func (r *WaitableReceipt) WaitController(ctrl *poller.Controller) (*types.TransactionReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.receipt == nil && r.err == nil {
		if r.fetcher == nil {
			return nil, errors.New("receipt is not bound to a validator")
		}

		t := timer.NewTimer()
		receipt, err := validator.PollReceipt(ctrl, r.fetcher, r.ChainID, r.TransactionHash)
		t.Add("materialize")
		t.Observe(metric.ReceiptWait)
		if err != nil {
			if types.HasKind(err, types.KindMaterialization) {
				r.err = err
			}
			return nil, err
		}
		r.receipt = receipt

		log.WithFields(t.ToLogFields()).WithFields(log.Fields{
			"tx":    r.TransactionHash,
			"chain": r.ChainID,
		}).Debug("transaction materialized")
	}
	if r.err != nil {
		return nil, r.err
	}

	if r.aliases != nil && !r.aliased {
		m := make(naming.Mapping, len(r.Names))
		for i, name := range r.Names {
			m[r.Prefixes[i]] = name
		}
		if err := r.aliases.Write(m); err != nil {
			return nil, errors.Wrap(err, "write aliases")
		}
		r.aliased = true
	}

	return r.receipt, nil
}
