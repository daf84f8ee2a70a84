// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package syncutil

import (
	"context"
	"sync"
	"time"
)

// Cycle runs a function on a fixed interval until its context is
// canceled or Stop is called. The interval may be changed before Run is
// called; changing it afterward takes effect on the next tick.
type Cycle struct {
	mu       sync.Mutex
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// SetInterval configures the tick interval. It may be called before or
// during Run; a change takes effect when the next tick is scheduled.
func (c *Cycle) SetInterval(interval time.Duration) {
	c.mu.Lock()
	c.interval = interval
	c.mu.Unlock()
}

// Run invokes fn immediately and then every interval, stopping when ctx
// is done, Stop is called, or fn returns a non-nil error.
func (c *Cycle) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	c.mu.Lock()
	if c.stop == nil {
		c.stop = make(chan struct{})
	}
	c.mu.Unlock()

	if err := fn(ctx); err != nil {
		return err
	}

	for {
		c.mu.Lock()
		interval := c.interval
		c.mu.Unlock()
		if interval <= 0 {
			interval = time.Minute
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-c.stop:
			timer.Stop()
			return nil
		case <-timer.C:
			if err := fn(ctx); err != nil {
				return err
			}
		}
	}
}

// Stop ends a running Run call, if any.
func (c *Cycle) Stop() {
	c.mu.Lock()
	if c.stop == nil {
		c.stop = make(chan struct{})
	}
	stop := c.stop
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(stop) })
}
