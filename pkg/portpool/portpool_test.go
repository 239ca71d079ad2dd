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

package portpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeReturnsDistinctPorts(t *testing.T) {
	pool := New(30000, 10)

	seen := make(map[int]bool)

	for i := 0; i < 10; i++ {
		port, ok := pool.Take()
		require.True(t, ok)
		require.False(t, seen[port], "port %d handed out twice", port)
		assert.GreaterOrEqual(t, port, 30000)
		assert.Less(t, port, 30010)

		seen[port] = true
	}

	_, ok := pool.Take()
	assert.False(t, ok, "exhausted pool must not block or hand out ports")
}

func TestConcurrentTakeNeverDuplicates(t *testing.T) {
	const n = 50

	pool := New(30000, n)

	var (
		mu    sync.Mutex
		taken []int
		wg    sync.WaitGroup
	)

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			port, ok := pool.Take()
			if !ok {
				return
			}

			mu.Lock()
			taken = append(taken, port)
			mu.Unlock()
		}()
	}

	wg.Wait()

	require.Len(t, taken, n, "a pool of size N must satisfy N concurrent takers")

	seen := make(map[int]bool)
	for _, port := range taken {
		require.False(t, seen[port], "port %d handed out twice", port)
		seen[port] = true
	}

	// The (N+1)-th take with no releases fails immediately.
	_, ok := pool.Take()
	assert.False(t, ok)

	// After returning everything, a fresh sequence of N succeeds again.
	for _, port := range taken {
		pool.Return(port)
	}

	require.Equal(t, n, pool.FreeCount())

	for i := 0; i < n; i++ {
		_, ok := pool.Take()
		require.True(t, ok)
	}
}

func TestReturnIsIdempotent(t *testing.T) {
	pool := New(30000, 2)

	port, ok := pool.Take()
	require.True(t, ok)

	// Teardown paths may release more than once.
	pool.Return(port)
	pool.Return(port)
	pool.Return(port)

	assert.Equal(t, 2, pool.FreeCount())

	// A port that was never handed out is ignored.
	pool.Return(65000)
	assert.Equal(t, 2, pool.FreeCount())
}
