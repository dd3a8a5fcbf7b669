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

package poller

import (
	"context"
	"time"

	"github.com/CovenantSQL/tablebridge/metric"
	"github.com/CovenantSQL/tablebridge/utils/log"
)

// Func is one polling attempt. Returning done with non-nil data resolves the poll,
// returning an error rejects it immediately.
type Func func(ctx context.Context) (done bool, data interface{}, err error)

// Poll invokes fn every ctrl.Interval until it is done, fails, or ctrl is aborted.
// A result that arrives on the same tick as an abort still wins.
func Poll(ctrl *Controller, fn Func) (data interface{}, err error) {
	if ctrl.Aborted() {
		return nil, ctrl.Reason()
	}

	var (
		ticks int
		timer = time.NewTimer(ctrl.Interval)
		done  bool
	)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	for {
		ticks++
		metric.PollTicks.Inc()
		if done, data, err = fn(ctrl); err != nil {
			return nil, err
		}
		if done && data != nil {
			ctrl.Cancel()
			log.WithField("ticks", ticks).Debug("poll resolved")
			return data, nil
		}
		if ctrl.Aborted() {
			return nil, ctrl.Reason()
		}

		timer.Reset(ctrl.Interval)
		select {
		case <-ctrl.Done():
			return nil, ctrl.Reason()
		case <-timer.C:
		}
	}
}
