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
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/sourcegraph/jsonrpc2"
	wsstream "github.com/sourcegraph/jsonrpc2/websocket"

	"github.com/CovenantSQL/tablebridge/chainbus"
	"github.com/CovenantSQL/tablebridge/events"
	"github.com/CovenantSQL/tablebridge/types"
	"github.com/CovenantSQL/tablebridge/utils/log"
)

// Stream methods and notifications.
const (
	methodSubscribe   = "subscribe"
	methodUnsubscribe = "unsubscribe"
	notifyEvent       = "event"
)

var streamEvents = []events.Event{events.Change, events.Error, events.Transfer, events.SetController}

type tableParams struct {
	Table string `json:"table"`
}

type eventNotification struct {
	Event           events.Event              `json:"event"`
	Table           string                    `json:"table"`
	TransactionHash string                    `json:"transactionHash"`
	BlockNumber     uint64                    `json:"blockNumber"`
	Receipt         *types.TransactionReceipt `json:"receipt,omitempty"`
	Error           string                    `json:"error,omitempty"`
}

func notificationOf(msg *events.Message) *eventNotification {
	n := &eventNotification{
		Event:           msg.Event,
		Table:           msg.Table,
		TransactionHash: msg.TransactionHash,
		BlockNumber:     msg.BlockNumber,
		Receipt:         msg.Receipt,
	}
	if msg.Err != nil {
		n.Error = msg.Err.Error()
	}
	return n
}

// streamHandler serves json-rpc over websocket, each connection is a session
// which subscribes to table events and receives them as notifications.
type streamHandler struct {
	w        *watcher
	upgrader websocket.Upgrader
}

func newStreamHandler(w *watcher) http.Handler {
	return &streamHandler{
		w:        w,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

func (h *streamHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		// the upgrader has replied already
		log.WithError(err).Error("upgrade http connection to websocket failed")
		return
	}

	s := newSession(h.w)
	log.WithField("session", s.id).Debug("stream session opened")
	conn := jsonrpc2.NewConn(context.Background(), wsstream.NewObjectStream(ws), jsonrpc2.HandlerWithError(s.handle))
	<-conn.DisconnectNotify()
	s.close()
	log.WithField("session", s.id).Debug("stream session closed")
}

type subscription struct {
	l       *events.Listener
	handles []chainbus.Handle
}

type session struct {
	id string
	w  *watcher

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
}

func newSession(w *watcher) *session {
	return &session{
		id:   uuid.Must(uuid.NewV4()).String(),
		w:    w,
		subs: map[string]*subscription{},
	}
}

func (s *session) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (
	result interface{}, err error) {
	var params tableParams
	if req.Params == nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "missing params"}
	}
	if err = json.Unmarshal(*req.Params, &params); err != nil || params.Table == "" {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "expect a table param"}
	}

	switch req.Method {
	case methodSubscribe:
		return s.subscribe(ctx, conn, params.Table)
	case methodUnsubscribe:
		return s.unsubscribe(params.Table)
	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (s *session) subscribe(ctx context.Context, conn *jsonrpc2.Conn, table string) (
	result interface{}, err error) {
	l, err := s.w.add(ctx, table)
	if err != nil {
		return
	}
	result = tableParams{Table: l.Table}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("session closed")
	}
	if _, ok := s.subs[l.Table]; ok {
		return
	}

	sub := &subscription{l: l}
	notify := func(msg *events.Message) {
		if nerr := conn.Notify(context.Background(), notifyEvent, notificationOf(msg)); nerr != nil {
			log.WithError(nerr).WithField("session", s.id).Debug("notify stream session failed")
		}
	}
	for _, e := range streamEvents {
		h, herr := l.OnAsync(string(e), notify, true)
		if herr != nil {
			sub.off()
			return nil, herr
		}
		sub.handles = append(sub.handles, h)
	}
	s.subs[l.Table] = sub
	log.WithFields(log.Fields{"session": s.id, "table": l.Table}).Info("stream subscribed")
	return
}

func (s *session) unsubscribe(table string) (result interface{}, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, sub := range s.subs {
		if name == table || sub.l.Table == table {
			sub.off()
			delete(s.subs, name)
			return tableParams{Table: name}, nil
		}
	}
	return nil, errors.Wrapf(events.ErrNoListener, "%s", table)
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for name, sub := range s.subs {
		sub.off()
		delete(s.subs, name)
	}
}

func (sub *subscription) off() {
	for _, h := range sub.handles {
		sub.l.Off(h)
	}
	sub.handles = nil
}
