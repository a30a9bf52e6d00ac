// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gogama/reqx/request"
)

// A Waiter computes how long to wait before retrying a failed attempt.
// It is only called after the Decider approved the retry.
//
// Implementations of Waiter must be safe for concurrent use by multiple
// goroutines.
type Waiter interface {
	Wait(e *request.Execution) time.Duration
}

// DefaultWaiter uses full-jitter exponential backoff with a base wait
// of 100 milliseconds and a maximum wait of 2 seconds.
var DefaultWaiter = NewExpWaiter(100*time.Millisecond, 2*time.Second, true)

// NewFixedWaiter returns a Waiter that always waits d.
func NewFixedWaiter(d time.Duration) Waiter {
	return fixedWaiter(d)
}

type fixedWaiter time.Duration

func (w fixedWaiter) Wait(_ *request.Execution) time.Duration {
	return time.Duration(w)
}

// NewExpWaiter returns a Waiter implementing exponential backoff,
// optionally with "full jitter" as described in
// https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter.
//
// The ceiling for attempt n is min(base * 2**n, max). Without jitter
// the waiter returns the ceiling; with jitter it returns a uniformly
// random duration in [0, ceiling).
//
// Base must be positive and max must be at least base.
func NewExpWaiter(base, max time.Duration, jitter bool) Waiter {
	if base < 1 {
		panic("reqx/retry: base must be positive")
	}
	if max < base {
		panic("reqx/retry: max must be at least base")
	}
	return expWaiter{base: base, max: max, jitter: jitter}
}

type expWaiter struct {
	base   time.Duration
	max    time.Duration
	jitter bool
}

func (w expWaiter) Wait(e *request.Execution) time.Duration {
	ceil := w.max
	if e.Attempt < 62 {
		if c := w.base << uint(e.Attempt); c > 0 && c < w.max && c>>uint(e.Attempt) == w.base {
			ceil = c
		}
	}
	if !w.jitter {
		return ceil
	}
	return rand.N(ceil)
}

// RetryAfter returns a Waiter that honors the Retry-After header of a
// 429 or 503 response, given either as delay seconds or as an HTTP
// date. When the header is absent or unusable it defers to fallback.
func RetryAfter(fallback Waiter) Waiter {
	if fallback == nil {
		panic("reqx/retry: nil fallback waiter")
	}
	return retryAfterWaiter{fallback}
}

type retryAfterWaiter struct {
	fallback Waiter
}

func (w retryAfterWaiter) Wait(e *request.Execution) time.Duration {
	switch e.StatusCode() {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		if d, ok := parseRetryAfter(e.Header().Get("Retry-After"), time.Now()); ok {
			return d
		}
	}
	return w.fallback.Wait(e)
}

func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	if d := t.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}
