// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"math"
	"strings"
	"time"

	"github.com/gogama/reqx/request"
)

// A Policy sets the timeout of each request attempt.
//
// The timeout covers sending the request and reading the whole
// response body. Implementations must be safe for concurrent use by
// multiple goroutines.
type Policy interface {
	// Timeout returns the timeout for the next attempt of the
	// execution e.
	Timeout(e *request.Execution) time.Duration
}

// The PolicyFunc type is an adapter to allow the use of ordinary
// functions as timeout policies.
type PolicyFunc func(e *request.Execution) time.Duration

// Timeout returns f(e).
func (f PolicyFunc) Timeout(e *request.Execution) time.Duration {
	return f(e)
}

// DefaultPolicy gives every attempt a fixed five second timeout.
var DefaultPolicy Policy = Fixed(5 * time.Second)

// Infinite never times out. Streaming responses use it, since their
// body is read for as long as the subscription lasts.
var Infinite Policy = Fixed(math.MaxInt64)

// Fixed returns a policy giving every attempt the timeout d.
func Fixed(d time.Duration) Policy {
	return steps{d}
}

// Adaptive returns a policy that lengthens the timeout after an
// attempt times out.
//
// An initial attempt, and a retry following an attempt that did not
// time out, get the usual timeout. A retry following a timeout gets
// after[0] if it was the execution's first timeout, after[1] if the
// second, and so on, repeating the last element of after once they
// run out:
//
//	p := timeout.Adaptive(2*time.Second, 5*time.Second, 15*time.Second)
func Adaptive(usual time.Duration, after ...time.Duration) Policy {
	s := make(steps, 1, 1+len(after))
	s[0] = usual
	return append(s, after...)
}

type steps []time.Duration

func (s steps) Timeout(e *request.Execution) time.Duration {
	if !e.Timeout() {
		return s[0]
	}

	i := e.AttemptTimeouts
	if i > len(s)-1 {
		i = len(s) - 1
	}

	return s[i]
}

// ByMethod returns a policy which delegates to the policy registered
// for the plan method, matched case-insensitively, and to fallback for
// any other method. A bulk export with POST, for example, can be given
// more time than a page query.
func ByMethod(byMethod map[string]Policy, fallback Policy) Policy {
	if fallback == nil {
		panic("reqx/timeout: nil fallback policy")
	}
	m := make(map[string]Policy, len(byMethod))
	for method, p := range byMethod {
		m[strings.ToUpper(method)] = p
	}
	return PolicyFunc(func(e *request.Execution) time.Duration {
		method := "GET"
		if e.Plan != nil && e.Plan.Method != "" {
			method = strings.ToUpper(e.Plan.Method)
		}
		if p, ok := m[method]; ok && p != nil {
			return p.Timeout(e)
		}
		return fallback.Timeout(e)
	})
}
