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

package timer

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/CovenantSQL/tablebridge/utils/log"
)

// Timer is a stop watch splitting a single operation into named stages.
type Timer struct {
	sync.Mutex
	start  time.Time
	stages []stage
}

type stage struct {
	name string
	at   time.Time
}

// NewTimer returns a started timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Add closes the current stage under name.
func (t *Timer) Add(name string) {
	t.Lock()
	defer t.Unlock()
	t.stages = append(t.stages, stage{name: name, at: time.Now()})
}

// Total returns the time since the timer started.
func (t *Timer) Total() time.Duration {
	return time.Since(t.start)
}

// ToMap returns each stage duration plus "total", which ends at the last stage.
func (t *Timer) ToMap() map[string]time.Duration {
	t.Lock()
	defer t.Unlock()

	m := make(map[string]time.Duration, len(t.stages)+1)
	prev := t.start
	for _, s := range t.stages {
		m[s.name] += s.at.Sub(prev)
		prev = s.at
	}
	if len(t.stages) > 0 {
		m["total"] = prev.Sub(t.start)
	}
	return m
}

// ToLogFields returns ToMap as log fields.
func (t *Timer) ToLogFields() log.Fields {
	f := log.Fields{}
	for k, v := range t.ToMap() {
		f[k] = v
	}
	return f
}

// Observe records every stage in seconds on obs, labelled by stage name.
// obs must carry a single "stage" label.
func (t *Timer) Observe(obs prometheus.ObserverVec) {
	for k, v := range t.ToMap() {
		obs.WithLabelValues(k).Observe(v.Seconds())
	}
}
