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

package main

import (
	"context"
	"flag"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/CovenantSQL/tablebridge/conf"
	"github.com/CovenantSQL/tablebridge/events"
	"github.com/CovenantSQL/tablebridge/utils/log"
)

const shutdownTimeout = 10 * time.Second

var (
	configFile string
	logLevel   string
	listenAddr string
)

func init() {
	flag.StringVar(&configFile, "config", "~/.tablebridge/config.yaml", "Config file path")
	flag.StringVar(&logLevel, "log-level", "", "Log level, overrides the config file")
	flag.StringVar(&listenAddr, "listen", "", "Metrics and api listen address, overrides the config file")
}

func dialer(cfg *conf.Config) events.DialFunc {
	return func(ctx context.Context, chainID int64) (ethereum.LogFilterer, error) {
		endpoint, err := cfg.RPCEndpoint(chainID)
		if err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{
			"chain":    chainID,
			"endpoint": endpoint,
		}).Info("dial chain rpc")
		client, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func main() {
	flag.Parse()

	cfg, err := conf.LoadConfig(configFile)
	if err != nil {
		log.WithError(err).WithField("config", configFile).Fatal("load config failed")
	}
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	log.SetStringLevel(logLevel, log.InfoLevel)
	if listenAddr == "" {
		listenAddr = cfg.MetricsAddr
	}

	busCfg, err := cfg.EventsConfig(dialer(cfg))
	if err != nil {
		log.WithError(err).Error("build event bus config failed")
		return
	}
	bus, err := events.New(busCfg)
	if err != nil {
		log.WithError(err).Error("create event bus failed")
		return
	}
	defer bus.Close()

	w := newWatcher(bus)
	for _, table := range cfg.Tables {
		if _, err = w.add(context.Background(), table); err != nil {
			log.WithError(err).WithField("table", table).Error("listen for table failed")
			return
		}
	}

	server, err := startAPI(w, listenAddr)
	if err != nil {
		log.WithError(err).Error("start api failed")
		return
	}

	<-waitForExit()
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = server.Shutdown(ctx); err != nil {
		log.WithError(err).Warning("shutdown api server failed")
	}
	w.close()
}
