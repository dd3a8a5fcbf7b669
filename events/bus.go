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

// Package events delivers registry events of individual tables to listeners.
package events

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/CovenantSQL/tablebridge/chains"
	"github.com/CovenantSQL/tablebridge/metric"
	"github.com/CovenantSQL/tablebridge/naming"
	"github.com/CovenantSQL/tablebridge/registry"
	"github.com/CovenantSQL/tablebridge/types"
	"github.com/CovenantSQL/tablebridge/utils/log"
	"github.com/CovenantSQL/tablebridge/validator"
)

// Event is the name listeners subscribe to.
type Event string

// Table events.
const (
	Change        Event = "change"
	Error         Event = "error"
	Transfer      Event = "transfer"
	SetController Event = "set-controller"
)

// DefaultDedupSize is the number of recent logs remembered to drop duplicates.
const DefaultDedupSize = 1024

var (
	// ErrClosed is returned by a closed bus.
	ErrClosed = errors.New("event bus closed")
	// ErrNoListener is returned when removing a table nobody listens to.
	ErrNoListener = errors.New("no listener for table")
)

var eventOf = map[registry.EventKind]Event{
	registry.RunSQL:        Change,
	registry.TransferTable: Transfer,
	registry.SetController: SetController,
}

// Message is delivered to the handlers of an event.
type Message struct {
	Event           Event
	Table           string
	ChainID         int64
	TableID         string
	TransactionHash string
	BlockNumber     uint64
	LogIndex        uint
	// Receipt is set on change.
	Receipt *types.TransactionReceipt
	// Err is set on error.
	Err error
}

// DialFunc returns the log source of a chain.
type DialFunc func(ctx context.Context, chainID int64) (ethereum.LogFilterer, error)

// Config configures a Bus.
type Config struct {
	Dial DialFunc
	// Validator is the validator client, its base url is replaced per chain.
	Validator    *validator.Client
	Chains       *chains.Registry
	PollTimeout  time.Duration
	PollInterval time.Duration
	DedupSize    int
}

// Bus multiplexes registry subscriptions into per table listeners.
type Bus struct {
	cfg  Config
	seen *lru.Cache

	mu        sync.Mutex
	handles   map[int64]ethereum.LogFilterer
	listeners map[types.TableIdentifier]*Listener
	closed    bool
}

// New returns a bus configured by cfg.
func New(cfg Config) (b *Bus, err error) {
	if cfg.Dial == nil {
		return nil, errors.New("a dial function is required")
	}
	if cfg.Chains == nil {
		cfg.Chains = chains.NewRegistry()
	}
	if cfg.Validator == nil {
		cfg.Validator = validator.NewClient("", nil)
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = DefaultDedupSize
	}

	b = &Bus{
		cfg:       cfg,
		handles:   map[int64]ethereum.LogFilterer{},
		listeners: map[types.TableIdentifier]*Listener{},
	}
	if b.seen, err = lru.New(cfg.DedupSize); err != nil {
		return nil, errors.Wrap(err, "create dedup cache")
	}
	return
}

// handle returns the cached log source of chainID, dialing it on first use.
// Callers hold b.mu.
func (b *Bus) handle(ctx context.Context, chainID int64) (ethereum.LogFilterer, error) {
	if h, ok := b.handles[chainID]; ok {
		return h, nil
	}
	h, err := b.cfg.Dial(ctx, chainID)
	if err != nil {
		return nil, errors.Wrapf(err, "dial chain %d", chainID)
	}
	b.handles[chainID] = h
	return h, nil
}

// AddListener subscribes to the registry events of tableName. Adding a table
// twice returns the existing listener.
func (b *Bus) AddListener(ctx context.Context, tableName string) (l *Listener, err error) {
	parts, err := naming.ParseName(tableName)
	if err != nil {
		return
	}
	chain, err := b.cfg.Chains.Lookup(parts.ChainID)
	if err != nil {
		return
	}
	tableID, ok := registryTableID(parts.TableID)
	if !ok {
		return nil, errors.Wrapf(naming.ErrInvalidName, "table id of %s", tableName)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	key := parts.Identifier()
	if l, ok = b.listeners[key]; ok {
		return
	}

	filterer, err := b.handle(ctx, parts.ChainID)
	if err != nil {
		return
	}

	l = newListener(parts, tableID)
	l.fetcher = b.cfg.Validator.WithBaseURL(chain.URL())
	sink := make(chan ethtypes.Log, 16)
	subCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	if l.sub, err = registry.Watch(subCtx, filterer, chain.Contract, sink,
		registry.RunSQL, registry.TransferTable, registry.SetController); err != nil {
		cancel()
		return nil, err
	}
	b.listeners[key] = l

	l.wg.Add(1)
	go b.run(subCtx, l, sink)

	log.WithFields(log.Fields{
		"table": l.Table,
		"chain": parts.ChainID,
	}).Info("listening for table events")
	return
}

// RemoveListener detaches the listener of tableName.
func (b *Bus) RemoveListener(tableName string) error {
	parts, err := naming.ParseName(tableName)
	if err != nil {
		return err
	}

	b.mu.Lock()
	l, ok := b.listeners[parts.Identifier()]
	delete(b.listeners, parts.Identifier())
	b.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrNoListener, "%s", tableName)
	}
	l.stop()
	return nil
}

// RemoveAllListeners detaches every listener.
func (b *Bus) RemoveAllListeners() {
	b.mu.Lock()
	listeners := b.listeners
	b.listeners = map[types.TableIdentifier]*Listener{}
	b.mu.Unlock()

	for _, l := range listeners {
		l.stop()
	}
}

// Close detaches every listener and releases the chain handles.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.RemoveAllListeners()

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, h := range b.handles {
		if c, ok := h.(interface{ Close() }); ok {
			c.Close()
		}
		delete(b.handles, id)
	}
	return nil
}

// Stats implements metric.StatsSource.
func (b *Bus) Stats() metric.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return metric.Stats{
		Listeners: len(b.listeners),
		Chains:    len(b.handles),
	}
}

// Tables returns the sorted universal names with an active listener.
func (b *Bus) Tables() (names []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.listeners {
		names = append(names, l.Table)
	}
	sort.Strings(names)
	return
}

func (b *Bus) run(ctx context.Context, l *Listener, sink <-chan ethtypes.Log) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-l.sub.Err():
			if !ok {
				return
			}
			if err != nil {
				l.emit(&Message{Event: Error, Table: l.Table, ChainID: l.ID.ChainID, TableID: l.ID.TableID,
					Err: errors.Wrap(err, "subscription failed")})
			}
			return
		case entry := <-sink:
			b.dispatch(ctx, l, &entry)
		}
	}
}

// dispatch turns one registry log into a listener event. Changes are
// emitted once their receipt is materialized, other events right away.
func (b *Bus) dispatch(ctx context.Context, l *Listener, entry *ethtypes.Log) {
	if entry.Removed {
		return
	}
	kind, id, err := registry.TableIDFromLog(entry)
	if err != nil || id.Cmp(l.tableID) != 0 {
		return
	}
	event, ok := eventOf[kind]
	if !ok {
		return
	}
	key := entry.TxHash.Hex() + "/" + strconv.FormatUint(uint64(entry.Index), 10)
	if dup, _ := b.seen.ContainsOrAdd(key, struct{}{}); dup {
		return
	}

	msg := &Message{
		Event:           event,
		Table:           l.Table,
		ChainID:         l.ID.ChainID,
		TableID:         l.ID.TableID,
		TransactionHash: entry.TxHash.Hex(),
		BlockNumber:     entry.BlockNumber,
		LogIndex:        entry.Index,
	}
	if event != Change {
		l.emit(msg)
		return
	}

	// the receipt poll must not hold back the subscription
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctrl := newController(ctx, b.cfg.PollTimeout, b.cfg.PollInterval)
		msg.Receipt, msg.Err = validator.PollReceipt(ctrl, l.fetcher, l.ID.ChainID, msg.TransactionHash)
		ctrl.Cancel()
		if msg.Err != nil {
			if ctx.Err() != nil {
				// listener removed while polling
				return
			}
			msg.Event = Error
		}
		l.emit(msg)
	}()
}
