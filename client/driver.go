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
	"database/sql"
	"database/sql/driver"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// DriverName is the database/sql driver name.
const DriverName = "tableland"

var (
	connectorsLock sync.RWMutex
	connectors     = map[string]*Config{}
)

func init() {
	sql.Register(DriverName, new(tablelandDriver))
}

// tablelandDriver implements sql.Driver interface.
type tablelandDriver struct {
}

// Open returns new db connection.
func (d *tablelandDriver) Open(dsn string) (driver.Conn, error) {
	cfg, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if cfg, err = resolveConnector(cfg); err != nil {
		return nil, err
	}
	return openConn(cfg)
}

func openConn(cfg *Config) (driver.Conn, error) {
	c, err := newConn(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RegisterConnector installs the collaborators a dsn cannot carry under
// name. A dsn selects it with the connector parameter, or by its chain id
// when name is the decimal chain id.
func RegisterConnector(name string, cfg *Config) {
	connectorsLock.Lock()
	defer connectorsLock.Unlock()
	if cfg == nil {
		delete(connectors, name)
		return
	}
	c := *cfg
	connectors[name] = &c
}

// resolveConnector merges the registered connector of cfg into cfg.
func resolveConnector(cfg *Config) (*Config, error) {
	name := cfg.Connector
	if name == "" {
		name = strconv.FormatInt(cfg.ChainID, 10)
	}

	connectorsLock.RLock()
	base, ok := connectors[name]
	connectorsLock.RUnlock()

	if !ok {
		if cfg.Connector != "" {
			return nil, errors.Wrapf(ErrNoConnector, "connector %q", cfg.Connector)
		}
		// read only connection configured by the dsn alone
		return cfg, nil
	}
	return cfg.merge(base), nil
}

// Connector is a driver.Connector over a fixed config, for sql.OpenDB.
type Connector struct {
	cfg *Config
}

// NewConnector returns a connector opening connections configured by cfg.
func NewConnector(cfg *Config) *Connector {
	c := *cfg
	return &Connector{cfg: &c}
}

// Connect implements driver.Connector.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	return openConn(c.cfg)
}

// Driver implements driver.Connector.
func (c *Connector) Driver() driver.Driver {
	return new(tablelandDriver)
}
