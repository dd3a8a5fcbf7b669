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

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a point in time snapshot of an event bus.
type Stats struct {
	Listeners int
	Chains    int
}

// StatsSource reports its current stats.
type StatsSource interface {
	Stats() Stats
}

type statsMetrics []struct {
	desc    *prometheus.Desc
	eval    func(Stats) float64
	valType prometheus.ValueType
}

// StatsCollector exports the summed stats of its sources as gauges.
type StatsCollector struct {
	sources []StatsSource
	metrics statsMetrics
}

// NewStatsCollector returns a collector over sources.
func NewStatsCollector(sources ...StatsSource) *StatsCollector {
	return &StatsCollector{
		sources: sources,
		metrics: statsMetrics{
			{
				desc: prometheus.NewDesc(
					prometheus.BuildFQName(namespace, "events", "listeners"),
					"Tables with an active listener.",
					nil, nil,
				),
				eval:    func(s Stats) float64 { return float64(s.Listeners) },
				valType: prometheus.GaugeValue,
			},
			{
				desc: prometheus.NewDesc(
					prometheus.BuildFQName(namespace, "events", "chains"),
					"Chains with a cached contract handle.",
					nil, nil,
				),
				eval:    func(s Stats) float64 { return float64(s.Chains) },
				valType: prometheus.GaugeValue,
			},
		},
	}
}

// Describe returns all descriptions of the collector.
func (sc *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range sc.metrics {
		ch <- m.desc
	}
}

// Collect returns the current state of all metrics of the collector.
func (sc *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	var total Stats
	for _, s := range sc.sources {
		st := s.Stats()
		total.Listeners += st.Listeners
		total.Chains += st.Chains
	}
	for _, m := range sc.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.valType, m.eval(total))
	}
}
