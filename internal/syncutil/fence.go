// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package syncutil collects small concurrency primitives shared by the
// kademlia service: a one-shot signal, a closeable work-in-flight
// tracker, and a periodic task runner. None of these are novel; they
// exist so the service package can express "wait for bootstrap" and
// "stop accepting new lookups, then wait for the in-flight ones" the
// same way the rest of the codebase does, instead of each caller
// re-deriving the same channel-and-mutex dance.
package syncutil

import "sync"

// Fence is released exactly once; Wait blocks until that happens (or
// returns immediately if it already has).
type Fence struct {
	once sync.Once
	done chan struct{}
	init sync.Once
}

func (f *Fence) lazyInit() {
	f.init.Do(func() {
		f.done = make(chan struct{})
	})
}

// Release signals the fence. Safe to call more than once; only the
// first call has any effect.
func (f *Fence) Release() {
	f.lazyInit()
	f.once.Do(func() { close(f.done) })
}

// Wait blocks until Release has been called.
func (f *Fence) Wait() {
	f.lazyInit()
	<-f.done
}
