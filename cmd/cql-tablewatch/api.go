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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CovenantSQL/tablebridge/events"
	"github.com/CovenantSQL/tablebridge/metric"
	"github.com/CovenantSQL/tablebridge/utils/log"
	"github.com/CovenantSQL/tablebridge/utils/log/debug"
)

const apiTimeout = 30 * time.Second

func sendResponse(code int, success bool, msg interface{}, data interface{}, rw http.ResponseWriter) {
	msgStr := "ok"
	if msg != nil {
		msgStr = fmt.Sprint(msg)
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(map[string]interface{}{
		"status":  msgStr,
		"success": success,
		"data":    data,
	})
}

type tableService struct {
	w *watcher
}

func (s *tableService) list(rw http.ResponseWriter, r *http.Request) {
	sendResponse(http.StatusOK, true, nil, map[string]interface{}{
		"tables": s.w.bus.Tables(),
		"stats":  s.w.bus.Stats(),
	}, rw)
}

func (s *tableService) add(rw http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	if _, err := s.w.add(r.Context(), table); err != nil {
		status := http.StatusBadRequest
		if errors.Cause(err) == events.ErrClosed {
			status = http.StatusServiceUnavailable
		}
		sendResponse(status, false, err, nil, rw)
		return
	}
	log.WithField("table", table).Info("table added through api")
	sendResponse(http.StatusOK, true, nil, map[string]interface{}{"table": table}, rw)
}

func (s *tableService) remove(rw http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	if err := s.w.remove(table); err != nil {
		status := http.StatusBadRequest
		if errors.Cause(err) == events.ErrNoListener {
			status = http.StatusNotFound
		}
		sendResponse(status, false, err, nil, rw)
		return
	}
	sendResponse(http.StatusOK, true, nil, map[string]interface{}{"table": table}, rw)
}

func newRouter(w *watcher) (router *mux.Router, err error) {
	registry, err := metric.NewRegistry(w.bus)
	if err != nil {
		return
	}

	router = mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Handle(debug.LogLevelPath, debug.LogLevelHandler())

	tables := &tableService{w: w}
	v1Router := router.PathPrefix("/v1").Subrouter()
	v1Router.HandleFunc("/tables", tables.list).Methods("GET")
	v1Router.HandleFunc("/tables/{table}", tables.add).Methods("PUT")
	v1Router.HandleFunc("/tables/{table}", tables.remove).Methods("DELETE")
	v1Router.Handle("/stream", newStreamHandler(w))
	return
}

func startAPI(w *watcher, listenAddr string) (server *http.Server, err error) {
	router, err := newRouter(w)
	if err != nil {
		return
	}

	server = &http.Server{
		Addr:         listenAddr,
		WriteTimeout: apiTimeout,
		ReadTimeout:  apiTimeout,
		IdleTimeout:  apiTimeout,
		Handler:      router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("start api server failed")
		}
	}()

	log.WithField("addr", listenAddr).Info("api server started")
	return
}
