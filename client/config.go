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
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/tablebridge/chains"
	"github.com/CovenantSQL/tablebridge/naming"
	"github.com/CovenantSQL/tablebridge/normalizer"
	"github.com/CovenantSQL/tablebridge/registry"
	"github.com/CovenantSQL/tablebridge/validator"
)

const (
	dsnScheme = "tableland"

	paramKeyAutoWait     = "auto_wait"
	paramKeyPollTimeout  = "poll_timeout"
	paramKeyPollInterval = "poll_interval"
	paramKeyBaseURL      = "base_url"
	paramKeyConnector    = "connector"
)

// Config configures a Database.
type Config struct {
	// ChainID is the chain writes are submitted to.
	ChainID int64
	// Submitter submits registry transactions, nil for a read only database.
	Submitter registry.Submitter
	// Validator is the validator client, its base url is replaced per chain
	// unless BaseURL is set.
	Validator *validator.Client
	// Normalizer defaults to normalizer.New().
	Normalizer normalizer.Normalizer
	// Aliases enables alias resolution and alias writes on create.
	Aliases naming.Store
	// Chains defaults to chains.NewRegistry().
	Chains *chains.Registry
	// AutoWait makes every write wait for materialization before returning.
	AutoWait bool
	// BaseURL pins every validator call to one base url.
	BaseURL      string
	PollTimeout  time.Duration
	PollInterval time.Duration
	HTTPClient   *http.Client

	// Connector is the RegisterConnector name the dsn refers to.
	Connector string
}

// NewConfig creates a new config with default value.
func NewConfig() *Config {
	return &Config{}
}

// FormatDSN formats the given Config into a DSN string which can be passed to the driver.
func (cfg *Config) FormatDSN() string {
	u := &url.URL{
		Scheme: dsnScheme,
		Host:   strconv.FormatInt(cfg.ChainID, 10),
	}

	newQuery := u.Query()
	if cfg.AutoWait {
		newQuery.Set(paramKeyAutoWait, "true")
	}
	if cfg.PollTimeout > 0 {
		newQuery.Set(paramKeyPollTimeout, cfg.PollTimeout.String())
	}
	if cfg.PollInterval > 0 {
		newQuery.Set(paramKeyPollInterval, cfg.PollInterval.String())
	}
	if cfg.BaseURL != "" {
		newQuery.Set(paramKeyBaseURL, cfg.BaseURL)
	}
	if cfg.Connector != "" {
		newQuery.Set(paramKeyConnector, cfg.Connector)
	}
	u.RawQuery = newQuery.Encode()

	return u.String()
}

// ParseDSN parse the DSN string to a Config.
func ParseDSN(dsn string) (cfg *Config, err error) {
	var u *url.URL
	if u, err = url.Parse(dsn); err != nil {
		return
	}
	if u.Scheme != dsnScheme {
		return nil, errors.Errorf("invalid dsn scheme %q", u.Scheme)
	}

	cfg = NewConfig()
	if u.Host != "" {
		if cfg.ChainID, err = strconv.ParseInt(u.Host, 10, 64); err != nil {
			return nil, errors.Wrapf(err, "invalid chain id %q", u.Host)
		}
	}

	urlQuery := u.Query()
	if v := urlQuery.Get(paramKeyAutoWait); v != "" {
		if cfg.AutoWait, err = strconv.ParseBool(v); err != nil {
			return nil, errors.Wrap(err, "invalid auto_wait")
		}
	}
	if v := urlQuery.Get(paramKeyPollTimeout); v != "" {
		if cfg.PollTimeout, err = time.ParseDuration(v); err != nil {
			return nil, errors.Wrap(err, "invalid poll_timeout")
		}
	}
	if v := urlQuery.Get(paramKeyPollInterval); v != "" {
		if cfg.PollInterval, err = time.ParseDuration(v); err != nil {
			return nil, errors.Wrap(err, "invalid poll_interval")
		}
	}
	cfg.BaseURL = urlQuery.Get(paramKeyBaseURL)
	cfg.Connector = urlQuery.Get(paramKeyConnector)

	return
}

// merge returns a copy of base with the dsn level fields of cfg applied.
func (cfg *Config) merge(base *Config) *Config {
	out := *base
	if cfg.ChainID != 0 {
		out.ChainID = cfg.ChainID
	}
	if cfg.AutoWait {
		out.AutoWait = true
	}
	if cfg.PollTimeout > 0 {
		out.PollTimeout = cfg.PollTimeout
	}
	if cfg.PollInterval > 0 {
		out.PollInterval = cfg.PollInterval
	}
	if cfg.BaseURL != "" {
		out.BaseURL = cfg.BaseURL
	}
	out.Connector = cfg.Connector
	return &out
}
