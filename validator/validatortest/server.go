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

// Package validatortest serves a scripted validator API for tests.
package validatortest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/gorilla/mux"

	"github.com/CovenantSQL/tablebridge/types"
	"github.com/CovenantSQL/tablebridge/validator"
)

// QueryFunc answers a query request with a status code and a JSON body.
type QueryFunc func(statement string, format validator.Format) (int, interface{})

// Server is a fake validator.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	receipts   map[string]*types.TransactionReceipt
	misses     map[string]int
	tables     map[string]*validator.TableMeta
	query      QueryFunc
	requests   map[string]int
	statements []string
}

func receiptKey(chainID int64, hash string) string {
	return strconv.FormatInt(chainID, 10) + "/" + hash
}

// NewServer starts a fake validator, close it with Close.
func NewServer() *Server {
	s := &Server{
		receipts: map[string]*types.TransactionReceipt{},
		misses:   map[string]int{},
		tables:   map[string]*validator.TableMeta{},
		requests: map[string]int{},
	}
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.count("health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("OK"))
	})).Methods(http.MethodGet)
	api.HandleFunc("/version", s.count("version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, &validator.VersionInfo{Version: 0, GitCommit: "test", BinaryVersion: "test"})
	})).Methods(http.MethodGet)
	api.HandleFunc("/receipt/{chainId:[0-9]+}/{hash}", s.count("receipt", s.handleReceipt)).Methods(http.MethodGet)
	api.HandleFunc("/tables/{chainId:[0-9]+}/{tableId:[0-9]+}", s.count("tables", s.handleTable)).Methods(http.MethodGet)
	api.HandleFunc("/query", s.count("query", s.handleQuery)).Methods(http.MethodGet)
	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL returns the api base url of the server.
func (s *Server) BaseURL() string {
	return s.URL + "/api/v1"
}

// SetReceipt publishes r after misses not found lookups.
func (s *Server) SetReceipt(r *types.TransactionReceipt, misses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := receiptKey(r.ChainID, r.TransactionHash)
	s.receipts[key] = r
	s.misses[key] = misses
}

// SetTable publishes the metadata of a table.
func (s *Server) SetTable(chainID int64, tableID string, t *validator.TableMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[receiptKey(chainID, tableID)] = t
}

// SetQuery installs the query handler.
func (s *Server) SetQuery(fn QueryFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = fn
}

// Requests returns the number of requests served by endpoint.
func (s *Server) Requests(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[endpoint]
}

// Statements returns every statement queried so far.
func (s *Server) Statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statements...)
}

func (s *Server) count(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[endpoint]++
		s.mu.Unlock()
		h(w, r)
	}
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := vars["chainId"] + "/" + vars["hash"]

	s.mu.Lock()
	receipt, ok := s.receipts[key]
	if ok && s.misses[key] > 0 {
		s.misses[key]--
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.mu.Lock()
	t, ok := s.tables[vars["chainId"]+"/"+vars["tableId"]]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Table not found"})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	statement := r.URL.Query().Get("statement")
	format := validator.Format(r.URL.Query().Get("format"))

	s.mu.Lock()
	s.statements = append(s.statements, statement)
	fn := s.query
	s.mu.Unlock()

	if fn == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Row not found"})
		return
	}
	status, body := fn(statement, format)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
