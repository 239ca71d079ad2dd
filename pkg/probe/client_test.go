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

package probe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckResponseValid(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		bodyLen int
		minSize int
		wantErr error
	}{
		{"200 with body", 200, 100, 0, nil},
		{"204 empty", 204, 0, 0, nil},
		{"204 passes any floor", 204, 0, 1024, nil},
		{"200 above floor", 200, 2048, 1024, nil},
		{"200 below floor", 200, 10, 1024, ErrShortBody},
		{"redirect rejected", 302, 100, 0, ErrBadStatus},
		{"client error rejected", 403, 100, 0, ErrBadStatus},
		{"server error rejected", 502, 100, 0, ErrBadStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkResponseValid(tt.status, tt.bodyLen, tt.minSize)

			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewHTTPClientTotalTimeout(t *testing.T) {
	client, err := NewHTTPClient("127.0.0.1:1", ClientOptions{
		ConnectTimeout: 4 * time.Second,
		ReadTimeout:    8 * time.Second,
	})

	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, client.Timeout)
}

func TestSleepCtxReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	sleepCtx(ctx, 5*time.Second)

	assert.Less(t, time.Since(start), time.Second, "cancelled context must not block the full delay")
}
