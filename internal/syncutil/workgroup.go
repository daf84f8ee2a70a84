// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package syncutil

import "sync"

// WorkGroup tracks in-flight callers and, once closed, rejects new ones:
// the pattern the service uses to let a shutdown wait for any lookup or
// bootstrap already underway while refusing to admit new work.
type WorkGroup struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// Start reports whether the caller may proceed; on true, the caller
// must eventually call Done. On false (the group is closed) the caller
// must not proceed.
func (g *WorkGroup) Start() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.wg.Add(1)
	return true
}

// Done marks one Start-guarded section as finished.
func (g *WorkGroup) Done() {
	g.wg.Done()
}

// Close prevents any future Start from succeeding. It does not block;
// call Wait afterward to block for in-flight work to finish.
func (g *WorkGroup) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// Wait blocks until every Start-ed section has called Done.
func (g *WorkGroup) Wait() {
	g.wg.Wait()
}
