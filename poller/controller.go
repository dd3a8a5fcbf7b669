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

package poller

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultTimeout is the abort deadline of a controller created with a zero timeout.
	DefaultTimeout = 60 * time.Second
	// DefaultInterval is the poll interval of a controller created with a zero interval.
	DefaultInterval = 1500 * time.Millisecond
)

var (
	// ErrTimeout is the abort reason of a controller whose timeout elapsed.
	ErrTimeout = errors.New("polling timed out")
	// ErrAborted is the abort reason used when Abort is called with a nil reason.
	ErrAborted = errors.New("polling aborted")
)

// Controller is the cancellation token of one in-flight wait. It owns one
// timer and one abort source; Cancel releases both.
type Controller struct {
	context.Context

	Interval time.Duration
	Timeout  time.Duration

	cancel context.CancelFunc
	timer  *time.Timer

	mu     sync.Mutex
	reason error
}

// NewController returns a controller that aborts itself after timeout or when parent is done.
func NewController(parent context.Context, timeout, interval time.Duration) *Controller {
	if parent == nil {
		parent = context.Background()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Controller{
		Context:  ctx,
		Interval: interval,
		Timeout:  timeout,
		cancel:   cancel,
	}
	c.mu.Lock()
	c.timer = time.AfterFunc(timeout, func() {
		c.Abort(ErrTimeout)
	})
	c.mu.Unlock()

	return c
}

// Abort aborts the controller with reason. Only the first reason is kept.
func (c *Controller) Abort(reason error) {
	if reason == nil {
		reason = ErrAborted
	}

	c.mu.Lock()
	if c.reason == nil && c.Context.Err() == nil {
		c.reason = reason
	}
	c.stopTimer()
	c.mu.Unlock()

	c.cancel()
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
	}
}

// Cancel releases the timer and the abort source without recording a reason.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimer()
	if c.reason == nil && c.Context.Err() == nil {
		c.reason = context.Canceled
	}
	c.cancel()
}

// Aborted reports whether the controller was aborted or its parent is done.
func (c *Controller) Aborted() bool {
	return c.Context.Err() != nil
}

// Reason returns the abort reason, nil while the controller is live.
func (c *Controller) Reason() error {
	if c.Context.Err() == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reason == nil {
		// aborted through the parent context
		c.reason = c.Context.Err()
	}
	return c.reason
}

// Err returns the abort reason so a controller can stand in for its context.
func (c *Controller) Err() error {
	return c.Reason()
}
