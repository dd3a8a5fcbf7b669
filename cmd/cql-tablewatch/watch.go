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
	"sync"

	"github.com/CovenantSQL/tablebridge/events"
	"github.com/CovenantSQL/tablebridge/utils/log"
)

// watcher logs the events of every table it listens to.
type watcher struct {
	bus *events.Bus
	wg  sync.WaitGroup

	mu      sync.Mutex
	watched map[string]bool
}

func newWatcher(bus *events.Bus) *watcher {
	return &watcher{bus: bus, watched: map[string]bool{}}
}

func (w *watcher) add(ctx context.Context, table string) (*events.Listener, error) {
	l, err := w.bus.AddListener(ctx, table)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[l.Table] {
		return l, nil
	}
	w.watched[l.Table] = true

	ch := l.C()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for msg := range ch {
			logMessage(msg)
		}
	}()
	return l, nil
}

func (w *watcher) remove(table string) error {
	if err := w.bus.RemoveListener(table); err != nil {
		return err
	}
	active := map[string]bool{}
	for _, name := range w.bus.Tables() {
		active[name] = true
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for name := range w.watched {
		if !active[name] {
			delete(w.watched, name)
		}
	}
	return nil
}

func (w *watcher) close() {
	_ = w.bus.Close()
	w.wg.Wait()
}

func logMessage(msg *events.Message) {
	entry := log.WithFields(log.Fields{
		"event": msg.Event,
		"table": msg.Table,
		"tx":    msg.TransactionHash,
		"block": msg.BlockNumber,
	})
	if msg.Err != nil {
		entry.WithError(msg.Err).Warning("table event failed")
		return
	}
	entry.Info("table event")
}
