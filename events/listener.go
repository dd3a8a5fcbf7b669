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

package events

import (
	"context"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"

	"github.com/CovenantSQL/tablebridge/chainbus"
	"github.com/CovenantSQL/tablebridge/metric"
	"github.com/CovenantSQL/tablebridge/naming"
	"github.com/CovenantSQL/tablebridge/poller"
	"github.com/CovenantSQL/tablebridge/types"
	"github.com/CovenantSQL/tablebridge/utils/log"
	"github.com/CovenantSQL/tablebridge/validator"
)

// Listener receives the events of one table. Handlers subscribed with On and
// Once are called with a *Message.
type Listener struct {
	*chainbus.ChainBus

	Table string
	ID    types.TableIdentifier

	tableID *big.Int
	fetcher validator.ReceiptFetcher
	sub     ethereum.Subscription
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	ch      chan *Message
	done    chan struct{}
	stopped bool
}

func newListener(parts naming.Parts, tableID *big.Int) *Listener {
	return &Listener{
		ChainBus: chainbus.New(),
		Table:    parts.Name(),
		ID:       parts.Identifier(),
		tableID:  tableID,
		done:     make(chan struct{}),
	}
}

func registryTableID(s string) (*big.Int, bool) {
	return new(big.Int).SetString(s, 10)
}

func newController(ctx context.Context, timeout, interval time.Duration) *poller.Controller {
	return poller.NewController(ctx, timeout, interval)
}

// C returns a channel receiving every message after the call. It is closed
// when the listener is removed.
func (l *Listener) C() <-chan *Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ch == nil {
		l.ch = make(chan *Message, 16)
		if l.stopped {
			close(l.ch)
		}
	}
	return l.ch
}

// Done is closed when the listener is removed.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

func (l *Listener) emit(msg *Message) {
	metric.EventsEmitted.WithLabelValues(string(msg.Event)).Inc()
	log.WithFields(log.Fields{
		"table": msg.Table,
		"event": msg.Event,
		"tx":    msg.TransactionHash,
	}).Debug("table event")

	l.Emit(string(msg.Event), msg)

	l.mu.Lock()
	ch := l.ch
	l.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- msg:
	case <-l.done:
	}
}

// stop detaches the chain subscription, then drops handlers and the channel.
func (l *Listener) stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()

	l.cancel()
	l.sub.Unsubscribe()
	close(l.done)
	l.wg.Wait()

	l.RemoveAllListeners()
	l.WaitAsync()

	l.mu.Lock()
	if l.ch != nil {
		close(l.ch)
	}
	l.mu.Unlock()

	log.WithField("table", l.Table).Info("stopped listening for table events")
}
