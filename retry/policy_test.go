// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/gogama/reqx/request"
	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	t.Run("Decider", func(t *testing.T) {
		s := []int{429, 502, 503, 504}
		for i := 0; i < DefaultTimes; i++ {
			e := execution("GET", &http.Response{StatusCode: s[i%len(s)]}, nil)
			e.Attempt = i
			assert.True(t, DefaultPolicy.Decide(e))
			e = execution("PUT", nil, syscall.ECONNRESET)
			e.Attempt = i
			assert.True(t, DefaultPolicy.Decide(e))
		}
		e := execution("GET", nil, syscall.ETIMEDOUT)
		e.Attempt = DefaultTimes
		assert.False(t, DefaultPolicy.Decide(e))
	})
	t.Run("Waiter", func(t *testing.T) {
		m := []int{100, 200, 400, 800, 1600, 2000}
		for i, max := range m {
			e := execution("GET", nil, syscall.ECONNRESET)
			e.Attempt = i
			w := DefaultPolicy.Wait(e)
			assert.GreaterOrEqual(t, w, time.Duration(0))
			assert.LessOrEqual(t, w, time.Duration(max)*time.Millisecond)
		}
	})
	t.Run("Retry-After honored", func(t *testing.T) {
		resp := &http.Response{StatusCode: 429, Header: http.Header{"Retry-After": {"3"}}}
		assert.Equal(t, 3*time.Second, DefaultPolicy.Wait(execution("GET", resp, nil)))
	})
}

func TestNever(t *testing.T) {
	assert.False(t, Never.Decide(&request.Execution{}))
	assert.False(t, Never.Decide(execution("GET", &http.Response{StatusCode: 503}, nil)))
	assert.Equal(t, time.Duration(0), Never.Wait(&request.Execution{}))
}

func TestNewPolicy(t *testing.T) {
	p := &testPolicy{}
	t.Run("bad args", func(t *testing.T) {
		assert.PanicsWithValue(t, "reqx/retry: nil decider", func() { NewPolicy(nil, p) })
		assert.PanicsWithValue(t, "reqx/retry: nil waiter", func() { NewPolicy(p, nil) })
	})
	t.Run("normal", func(t *testing.T) {
		P := NewPolicy(p, p)
		assert.True(t, P.Decide(&request.Execution{}))
		assert.Equal(t, 1, p.d)
		assert.Equal(t, time.Second, P.Wait(&request.Execution{}))
		assert.Equal(t, 1, p.w)
	})
}

type testPolicy struct {
	d int
	w int
}

func (p *testPolicy) Decide(_ *request.Execution) bool {
	p.d++
	return true
}

func (p *testPolicy) Wait(_ *request.Execution) time.Duration {
	p.w++
	return time.Second
}
