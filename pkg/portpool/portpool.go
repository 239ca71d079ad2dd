/*
 * Copyright 2025 The tunnelvet Authors.
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

// Package portpool allocates local listener ports from a fixed ephemeral
// range. At most one in-flight task owns a given port at a time.
package portpool

import "sync"

// Pool is a thread-safe allocator over [base, base+count).
type Pool struct {
	mu    sync.Mutex
	free  []int
	inUse map[int]bool
}

// New creates a pool over [base, base+count).
func New(base, count int) *Pool {
	p := &Pool{
		free:  make([]int, 0, count),
		inUse: make(map[int]bool, count),
	}

	for port := base; port < base+count; port++ {
		p.free = append(p.free, port)
	}

	return p
}

// Take removes and returns one free port. It never blocks: when the pool
// is exhausted it returns ok=false, which callers treat as a normal
// fail-this-candidate signal rather than an error.
func (p *Pool) Take() (port int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return 0, false
	}

	port = p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.inUse[port] = true

	return port, true
}

// Return puts port back into the free set. Teardown paths may attempt the
// release more than once under failure interleavings, so returning a port
// that is already free is a no-op. Ports that were never handed out are
// ignored.
func (p *Pool) Return(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inUse[port] {
		return
	}

	delete(p.inUse, port)
	p.free = append(p.free, port)
}

// FreeCount reports how many ports are currently available.
func (p *Pool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.free)
}
