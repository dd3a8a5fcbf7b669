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

// Package metric defines the prometheus collectors of the engine.
package metric

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"
)

const namespace = "tablebridge"

var (
	// ValidatorRequests counts validator http calls by endpoint and status code.
	ValidatorRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "validator_requests_total",
		Help:      "Validator API requests by endpoint and response code.",
	}, []string{"endpoint", "code"})

	// PollTicks counts polling function invocations.
	PollTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_ticks_total",
		Help:      "Polling function invocations.",
	})

	// ReceiptWait observes receipt wait stages in seconds.
	ReceiptWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "receipt_wait_seconds",
		Help:      "Time spent waiting for validator materialization.",
		Buckets:   []float64{.1, .5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"stage"})

	// Submissions counts registry transactions by statement type and result.
	Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Registry contract submissions by statement type and result.",
	}, []string{"type", "result"})

	// EventsEmitted counts table events delivered to listeners.
	EventsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_emitted_total",
		Help:      "Table events emitted to listeners by event name.",
	}, []string{"event"})
)

// Result returns the result label value of err.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// NewRegistry returns a registry with the engine collectors, the build
// version, and a stats collector per source.
func NewRegistry(sources ...StatsSource) (registry *prometheus.Registry, err error) {
	registry = prometheus.NewRegistry()
	collectors := []prometheus.Collector{
		version.NewCollector(namespace),
		prometheus.NewGoCollector(),
		ValidatorRequests,
		PollTicks,
		ReceiptWait,
		Submissions,
		EventsEmitted,
	}
	if len(sources) > 0 {
		collectors = append(collectors, NewStatsCollector(sources...))
	}
	for _, c := range collectors {
		if err = registry.Register(c); err != nil {
			return nil, errors.Wrap(err, "register collector")
		}
	}
	return
}
