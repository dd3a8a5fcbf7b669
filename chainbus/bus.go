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

package chainbus

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/CovenantSQL/tablebridge/utils/log"
)

// Handle identifies one subscription, pass it to Off to unsubscribe.
type Handle struct {
	Topic string
	id    uint64
}

// Emitter is a topic based event emitter calling handlers with the emitted
// arguments.
type Emitter interface {
	On(topic string, fn interface{}) (Handle, error)
	OnAsync(topic string, fn interface{}, transactional bool) (Handle, error)
	Once(topic string, fn interface{}) (Handle, error)
	Off(h Handle) bool
	RemoveAllListeners(topics ...string)
	ListenerCount(topic string) int
	Emit(topic string, args ...interface{}) bool
	WaitAsync()
}

// ChainBus - box for handlers and callbacks.
type ChainBus struct {
	handlers map[string][]*eventHandler
	lock     sync.Mutex // a lock for the map
	wg       sync.WaitGroup
	nextID   uint64
}

type eventHandler struct {
	id            uint64
	callBack      reflect.Value
	flagOnce      bool
	async         bool
	transactional bool
	sync.Mutex    // lock for an event handler - useful for running async callbacks serially
}

// New returns new ChainBus with empty handlers.
func New() *ChainBus {
	return &ChainBus{
		handlers: make(map[string][]*eventHandler),
	}
}

// doSubscribe handles the subscription logic and is utilized by the public subscribe functions.
func (bus *ChainBus) doSubscribe(topic string, fn interface{}, handler *eventHandler) (h Handle, err error) {
	if fn == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		return h, fmt.Errorf("%T is not a function", fn)
	}

	bus.lock.Lock()
	defer bus.lock.Unlock()
	bus.nextID++
	handler.id = bus.nextID
	handler.callBack = reflect.ValueOf(fn)
	bus.handlers[topic] = append(bus.handlers[topic], handler)
	return Handle{Topic: topic, id: handler.id}, nil
}

// On subscribes fn to topic. Returns error if fn is not a function.
func (bus *ChainBus) On(topic string, fn interface{}) (Handle, error) {
	return bus.doSubscribe(topic, fn, &eventHandler{})
}

// OnAsync subscribes fn to topic, Emit does not wait for it to return.
// Transactional handlers run serially, others run concurrently.
func (bus *ChainBus) OnAsync(topic string, fn interface{}, transactional bool) (Handle, error) {
	return bus.doSubscribe(topic, fn, &eventHandler{async: true, transactional: transactional})
}

// Once subscribes fn to the next emit of topic only.
func (bus *ChainBus) Once(topic string, fn interface{}) (Handle, error) {
	return bus.doSubscribe(topic, fn, &eventHandler{flagOnce: true})
}

// Off removes the subscription h, it reports whether h was subscribed.
func (bus *ChainBus) Off(h Handle) bool {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	return bus.removeHandler(h.Topic, h.id)
}

// RemoveAllListeners removes every handler of topics, or of every topic when none is given.
func (bus *ChainBus) RemoveAllListeners(topics ...string) {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	if len(topics) == 0 {
		bus.handlers = make(map[string][]*eventHandler)
		return
	}
	for _, t := range topics {
		delete(bus.handlers, t)
	}
}

// ListenerCount returns the number of handlers subscribed to topic.
func (bus *ChainBus) ListenerCount(topic string) int {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	return len(bus.handlers[topic])
}

// Emit calls every handler of topic with args and reports whether there was any.
// Handlers may subscribe and unsubscribe while being called.
func (bus *ChainBus) Emit(topic string, args ...interface{}) bool {
	bus.lock.Lock()
	handlers := append([]*eventHandler(nil), bus.handlers[topic]...)
	for _, handler := range handlers {
		if handler.flagOnce {
			bus.removeHandler(topic, handler.id)
		}
	}
	bus.lock.Unlock()

	for _, handler := range handlers {
		if !handler.async {
			bus.doPublish(handler, topic, args...)
			continue
		}
		bus.wg.Add(1)
		if handler.transactional {
			handler.Lock()
		}
		go bus.doPublishAsync(handler, topic, args...)
	}
	return len(handlers) > 0
}

func (bus *ChainBus) doPublish(handler *eventHandler, topic string, args ...interface{}) {
	passedArguments, err := setUpPublish(handler.callBack.Type(), args...)
	if err != nil {
		log.WithField("topic", topic).WithError(err).Warning("drop event")
		return
	}
	handler.callBack.Call(passedArguments)
}

func (bus *ChainBus) doPublishAsync(handler *eventHandler, topic string, args ...interface{}) {
	defer bus.wg.Done()
	if handler.transactional {
		defer handler.Unlock()
	}
	bus.doPublish(handler, topic, args...)
}

func (bus *ChainBus) removeHandler(topic string, id uint64) bool {
	handlers := bus.handlers[topic]
	for idx, handler := range handlers {
		if handler.id != id {
			continue
		}
		l := len(handlers)
		copy(handlers[idx:], handlers[idx+1:])
		handlers[l-1] = nil
		if l == 1 {
			delete(bus.handlers, topic)
		} else {
			bus.handlers[topic] = handlers[:l-1]
		}
		return true
	}
	return false
}

// setUpPublish converts args to the parameters of a callback of type fnType,
// nil arguments become zero values.
func setUpPublish(fnType reflect.Type, args ...interface{}) ([]reflect.Value, error) {
	numIn := fnType.NumIn()
	if fnType.IsVariadic() {
		if len(args) < numIn-1 {
			return nil, fmt.Errorf("%d arguments for %s", len(args), fnType)
		}
	} else if len(args) != numIn {
		return nil, fmt.Errorf("%d arguments for %s", len(args), fnType)
	}

	passedArguments := make([]reflect.Value, 0, len(args))
	for i, arg := range args {
		var in reflect.Type
		if fnType.IsVariadic() && i >= numIn-1 {
			in = fnType.In(numIn - 1).Elem()
		} else {
			in = fnType.In(i)
		}
		if arg == nil {
			passedArguments = append(passedArguments, reflect.Zero(in))
			continue
		}
		v := reflect.ValueOf(arg)
		if !v.Type().AssignableTo(in) {
			return nil, fmt.Errorf("argument %d of type %s is not assignable to %s", i, v.Type(), in)
		}
		passedArguments = append(passedArguments, v)
	}
	return passedArguments, nil
}

// WaitAsync waits for all async callbacks to complete.
func (bus *ChainBus) WaitAsync() {
	bus.wg.Wait()
}
