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
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestConfig(t *testing.T) {
	Convey("test config without additional options", t, func() {
		cfg, err := ParseDSN("tableland://31337")
		So(err, ShouldBeNil)
		So(cfg, ShouldResemble, &Config{ChainID: 31337})

		recoveredCfg, err := ParseDSN(cfg.FormatDSN())
		So(err, ShouldBeNil)
		So(cfg, ShouldResemble, recoveredCfg)
	})

	Convey("test invalid config", t, func() {
		for _, dsn := range []string{
			"covenantsql://db",
			"tableland://chain",
			"tableland://1?auto_wait=maybe",
			"tableland://1?poll_timeout=soon",
			"tableland://1?poll_interval=-",
			"::",
		} {
			cfg, err := ParseDSN(dsn)
			So(err, ShouldNotBeNil)
			So(cfg, ShouldBeNil)
		}
	})

	Convey("test dsn with all kinds of options", t, func(c C) {
		testFormatAndParse := func(cfg *Config) {
			newCfg, err := ParseDSN(cfg.FormatDSN())
			c.So(err, ShouldBeNil)
			c.So(newCfg, ShouldResemble, cfg)
		}
		testFormatAndParse(&Config{ChainID: 1, AutoWait: true})
		testFormatAndParse(&Config{ChainID: 80002, PollTimeout: time.Minute, PollInterval: time.Second})
		testFormatAndParse(&Config{ChainID: 31337, BaseURL: "http://localhost:8080/api/v1", Connector: "wallet"})
	})

	Convey("test dsn options override connector defaults", t, func() {
		base := &Config{ChainID: 5, PollTimeout: time.Minute, BaseURL: "http://a"}
		cfg, err := ParseDSN("tableland://31337?poll_interval=1s&auto_wait=true")
		So(err, ShouldBeNil)
		merged := cfg.merge(base)
		So(merged.ChainID, ShouldEqual, 31337)
		So(merged.AutoWait, ShouldBeTrue)
		So(merged.PollTimeout, ShouldEqual, time.Minute)
		So(merged.PollInterval, ShouldEqual, time.Second)
		So(merged.BaseURL, ShouldEqual, "http://a")
		So(base.ChainID, ShouldEqual, 5)
	})
}
