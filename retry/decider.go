// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"net/http"
	"time"

	"github.com/gogama/reqx/request"
	"github.com/gogama/reqx/transient"
)

// A Decider decides whether a failed attempt should be retried.
//
// Implementations of Decider must be safe for concurrent use by
// multiple goroutines. A Decider is never consulted for an execution
// that was canceled or superseded: the client stops those regardless
// of policy.
type Decider interface {
	Decide(e *request.Execution) bool
}

// The DeciderFunc type is an adapter to allow the use of ordinary
// functions as retry deciders. It also provides the composition
// methods And and Or, which make it the convenient type to build
// decision trees from:
//
//	d := retry.Times(2).And(retry.Idempotent).And(retry.TransientErr)
type DeciderFunc func(e *request.Execution) bool

// DefaultTimes is the number of retries DefaultDecider allows.
const DefaultTimes = 3

// DefaultDecider allows up to DefaultTimes retries of an idempotent
// request when the attempt ended in a transient error or in one of the
// status codes 429, 502, 503 or 504.
var DefaultDecider = Times(DefaultTimes).
	And(Idempotent).
	And(StatusCode(429, 502, 503, 504).Or(TransientErr))

// TransientErr indicates a retry if the current error is transient
// according to transient.Categorize. It only looks at the error, so it
// returns false whenever an HTTP response was received.
var TransientErr DeciderFunc = transientErr

// Idempotent indicates a retry if the plan method is idempotent as
// defined by RFC 7231: GET, HEAD, OPTIONS, TRACE, PUT or DELETE. A
// create request sent with POST is not retried because the first
// attempt may have reached the server.
var Idempotent DeciderFunc = idempotent

// Decide returns true if a retry should be done.
func (f DeciderFunc) Decide(e *request.Execution) bool {
	return f(e)
}

// And composes two deciders into one that returns true only if both
// do. g is not evaluated if f returns false.
func (f DeciderFunc) And(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) && g(e)
	}
}

// Or composes two deciders into one that returns true if either does.
// g is not evaluated if f returns true.
func (f DeciderFunc) Or(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) || g(e)
	}
}

// Times returns a decider which allows up to n retries.
func Times(n int) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Attempt < n
	}
}

// Before returns a decider which allows retries until d has elapsed
// since the execution started.
func Before(d time.Duration) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Duration() < d
	}
}

// StatusCode returns a decider which allows a retry when the most
// recent attempt received a response with one of the given status
// codes.
func StatusCode(codes ...int) DeciderFunc {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return func(e *request.Execution) bool {
		_, ok := set[e.StatusCode()]
		return ok && e.Response != nil
	}
}

func transientErr(e *request.Execution) bool {
	return transient.Categorize(e.Err).Transient()
}

func idempotent(e *request.Execution) bool {
	if e.Plan == nil {
		return false
	}
	switch e.Plan.Method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace,
		http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}
