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


// Package debug serves runtime debugging endpoints of the table watcher.
package debug

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/CovenantSQL/tablebridge/utils/log"
)

// LogLevelPath is where cql-tablewatch mounts the handler.
const LogLevelPath = "/debug/tablebridge/loglevel"

// LevelState is the body of every log level response.
type LevelState struct {
	Level     string `json:"level"`
	Previous  string `json:"previous,omitempty"`
	Requested string `json:"requested,omitempty"`
	Error     string `json:"error,omitempty"`
}

type levelRequest struct {
	Level string `json:"level"`
}

// LogLevelHandler reports the log level on GET. PUT with a json body
// {"level": ...} or POST with a level form value changes it; an unknown
// level is rejected with 400 and leaves the level unchanged.
func LogLevelHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var (
			state = LevelState{Level: log.GetLevel().String()}
			code  = http.StatusOK
		)
		switch req.Method {
		case http.MethodGet:
		case http.MethodPut, http.MethodPost:
			requested, err := requestedLevel(req)
			if err != nil {
				code = http.StatusBadRequest
				state.Error = err.Error()
				break
			}
			if requested == "" {
				break
			}
			state.Previous = state.Level
			state.Requested = requested
			lvl, err := log.ParseLevel(requested)
			if err != nil {
				code = http.StatusBadRequest
				state.Error = err.Error()
				break
			}
			log.SetLevel(lvl)
			state.Level = lvl.String()
			log.WithFields(log.Fields{
				"from": state.Previous,
				"to":   state.Level,
			}).Info("log level changed")
		default:
			w.Header().Set("Allow", strings.Join([]string{http.MethodGet, http.MethodPut, http.MethodPost}, ", "))
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(&state)
	})
}

func requestedLevel(req *http.Request) (string, error) {
	if req.Method == http.MethodPost {
		return strings.TrimSpace(req.FormValue("level")), nil
	}
	var body levelRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return "", err
	}
	return strings.TrimSpace(body.Level), nil
}
