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

// Package conf loads the yaml configuration shared by the client and the
// table watcher.
package conf

import (
	"io/ioutil"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	validator "gopkg.in/go-playground/validator.v9"
	yaml "gopkg.in/yaml.v2"

	"github.com/CovenantSQL/tablebridge/chains"
	"github.com/CovenantSQL/tablebridge/client"
	"github.com/CovenantSQL/tablebridge/events"
	"github.com/CovenantSQL/tablebridge/naming"
	"github.com/CovenantSQL/tablebridge/registry"
	"github.com/CovenantSQL/tablebridge/utils/log"
	validatorapi "github.com/CovenantSQL/tablebridge/validator"
)

// DefaultMetricsAddr is the listen address of the metrics endpoint when none is configured.
const DefaultMetricsAddr = "127.0.0.1:9105"

// ErrNoSection indicates the config file has no TableBridge section.
var ErrNoSection = errors.New("missing TableBridge config section")

// Config holds the TableBridge section of the yaml config file.
type Config struct {
	// ChainID is the chain writes are submitted to.
	ChainID int64 `yaml:"ChainID" validate:"required,gt=0"`
	// ValidatorURL pins every validator call to one base url.
	ValidatorURL string `yaml:"ValidatorURL" validate:"omitempty,url"`
	// AliasFile is the json alias mapping, empty keeps aliases in memory.
	AliasFile string `yaml:"AliasFile"`
	// AliasDB is a leveldb directory holding the alias mapping, it takes
	// precedence over AliasFile.
	AliasDB      string        `yaml:"AliasDB"`
	AutoWait     bool          `yaml:"AutoWait"`
	PollTimeout  time.Duration `yaml:"PollTimeout" validate:"gte=0"`
	PollInterval time.Duration `yaml:"PollInterval" validate:"gte=0"`
	LogLevel     string        `yaml:"LogLevel" validate:"omitempty,oneof=panic fatal error warn warning info debug trace"`
	MetricsAddr  string        `yaml:"MetricsAddr"`
	DedupSize    int           `yaml:"DedupSize" validate:"gte=0"`

	// Chains overrides or extends the builtin chain table.
	Chains []chains.Chain `yaml:"Chains" validate:"dive"`
	// RPC maps chain ids to json-rpc endpoints used for log subscriptions.
	RPC map[int64]string `yaml:"RPC" validate:"dive,url"`
	// Tables are the universal names cql-tablewatch listens on.
	Tables []string `yaml:"Tables" validate:"dive,required"`
}

// HomeDirExpand expands a leading ~ of path to the current user home directory.
func HomeDirExpand(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		return path
	}
	return filepath.Join(usr.HomeDir, strings.TrimPrefix(path, "~"))
}

// LoadConfig loads and validates the TableBridge section of the file at configPath.
func LoadConfig(configPath string) (config *Config, err error) {
	configBytes, err := ioutil.ReadFile(HomeDirExpand(configPath))
	if err != nil {
		log.WithError(err).Error("read config file failed")
		return nil, errors.Wrap(err, "read config file")
	}
	return parse(configBytes)
}

func parse(configBytes []byte) (config *Config, err error) {
	r := &struct {
		TableBridge *Config `yaml:"TableBridge,omitempty"`
	}{}
	if err = yaml.Unmarshal(configBytes, r); err != nil {
		log.WithError(err).Error("unmarshal config file failed")
		return nil, errors.Wrap(err, "unmarshal config file")
	}
	if r.TableBridge == nil {
		log.Error("could not read TableBridge config")
		return nil, ErrNoSection
	}

	validate := validator.New()
	if err = validate.Struct(*r.TableBridge); err != nil {
		log.WithError(err).Error("validate config failed")
		return nil, errors.Wrap(err, "validate config")
	}

	config = r.TableBridge
	config.AliasFile = HomeDirExpand(config.AliasFile)
	config.AliasDB = HomeDirExpand(config.AliasDB)
	if config.MetricsAddr == "" {
		config.MetricsAddr = DefaultMetricsAddr
	}
	return
}

// ChainRegistry returns the builtin chains with the configured overrides applied.
func (c *Config) ChainRegistry() (r *chains.Registry, err error) {
	r = chains.NewRegistry()
	for _, chain := range c.Chains {
		if err = r.Override(chain); err != nil {
			return nil, errors.Wrap(err, "override chain")
		}
	}
	return
}

// AliasStore returns the leveldb store of AliasDB, the file store of
// AliasFile, or an empty memory store.
func (c *Config) AliasStore() (naming.Store, error) {
	switch {
	case c.AliasDB != "":
		s, err := naming.OpenLevelDBStore(c.AliasDB)
		if err != nil {
			return nil, err
		}
		return s, nil
	case c.AliasFile != "":
		return naming.NewFileStore(c.AliasFile), nil
	default:
		return naming.NewMemoryStore(nil), nil
	}
}

// RPCEndpoint returns the json-rpc endpoint of chainID.
func (c *Config) RPCEndpoint(chainID int64) (string, error) {
	endpoint, ok := c.RPC[chainID]
	if !ok || endpoint == "" {
		return "", errors.Errorf("no rpc endpoint for chain %d", chainID)
	}
	return endpoint, nil
}

func (c *Config) validatorClient(r *chains.Registry) (*validatorapi.Client, error) {
	base := c.ValidatorURL
	if base == "" {
		var err error
		if base, err = r.BaseURL(c.ChainID); err != nil {
			return nil, err
		}
	}
	return validatorapi.NewClient(base, nil), nil
}

// ClientConfig returns the database config of c. A nil submitter yields a
// read only database.
func (c *Config) ClientConfig(sub registry.Submitter) (cfg *client.Config, err error) {
	r, err := c.ChainRegistry()
	if err != nil {
		return
	}
	v, err := c.validatorClient(r)
	if err != nil {
		return
	}
	aliases, err := c.AliasStore()
	if err != nil {
		return
	}
	cfg = client.NewConfig()
	cfg.ChainID = c.ChainID
	cfg.Submitter = sub
	cfg.Validator = v
	cfg.Aliases = aliases
	cfg.Chains = r
	cfg.AutoWait = c.AutoWait
	cfg.BaseURL = c.ValidatorURL
	cfg.PollTimeout = c.PollTimeout
	cfg.PollInterval = c.PollInterval
	return
}

// EventsConfig returns the event bus config of c dialing chains with dial.
func (c *Config) EventsConfig(dial events.DialFunc) (cfg events.Config, err error) {
	r, err := c.ChainRegistry()
	if err != nil {
		return
	}
	v, err := c.validatorClient(r)
	if err != nil {
		return
	}
	cfg = events.Config{
		Dial:         dial,
		Validator:    v,
		Chains:       r,
		PollTimeout:  c.PollTimeout,
		PollInterval: c.PollInterval,
		DedupSize:    c.DedupSize,
	}
	return
}
