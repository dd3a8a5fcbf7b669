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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTimer(t *testing.T) {
	Convey("test timer", t, func() {
		tm := NewTimer()
		So(tm.ToMap(), ShouldBeEmpty)

		time.Sleep(20 * time.Millisecond)
		tm.Add("submit")
		time.Sleep(40 * time.Millisecond)
		tm.Add("materialize")

		m := tm.ToMap()
		So(m, ShouldHaveLength, 3)
		So(m["submit"], ShouldBeGreaterThanOrEqualTo, 20*time.Millisecond)
		So(m["materialize"], ShouldBeGreaterThanOrEqualTo, 40*time.Millisecond)
		So(m["total"], ShouldEqual, m["submit"]+m["materialize"])
		So(tm.Total(), ShouldBeGreaterThanOrEqualTo, m["total"])

		f := tm.ToLogFields()
		So(f, ShouldHaveLength, 3)
		So(f["submit"], ShouldEqual, m["submit"])

		Convey("observe feeds a histogram per stage", func() {
			vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name: "test_stage_seconds",
			}, []string{"stage"})
			tm.Observe(vec)

			var metric dto.Metric
			h, err := vec.GetMetricWithLabelValues("materialize")
			So(err, ShouldBeNil)
			So(h.(prometheus.Histogram).Write(&metric), ShouldBeNil)
			So(metric.GetHistogram().GetSampleCount(), ShouldEqual, 1)
			So(metric.GetHistogram().GetSampleSum(), ShouldBeGreaterThanOrEqualTo, 0.04)
		})
	})
}
