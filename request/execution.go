// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gogama/reqx/inflight"
	"github.com/gogama/reqx/transient"
)

// An Execution represents the state of a single Plan execution.
//
// The client creates an Execution for every plan it executes, updates
// it as the execution progresses, and returns it when the execution
// ends. The same value is passed to interceptors, event handlers, and
// timeout and retry policies.
//
// An ended Execution is the "result" of a request in both outcomes: on
// success Body holds the payload; on failure Err holds the error, and
// it is the same error the client method returned.
//
// Handlers may attach their own data with SetValue and read it back
// with Value. The exported fields should otherwise be treated as
// read-only, except that request interceptors may replace the plan and
// BeforeAttempt handlers may adjust the outgoing request.
type Execution struct {
	// Plan is the plan being executed. It is never nil. Once the
	// request interceptors have run it is the plan they returned, and
	// its context is the cancelable context of this execution.
	Plan *Plan

	// ID is a unique identifier for the execution, sent to the server
	// in the X-Request-Id header.
	ID string

	// Fingerprint is the duplicate-detection key computed from the
	// plan before the request interceptors ran. It is the key under
	// which the execution is registered while in flight, and the key
	// accepted by the client's CancelRequest method.
	Fingerprint string

	// Start is the start time of the execution. It is set when the
	// execution starts and remains constant thereafter.
	Start time.Time

	// End is the end time of the execution. It is the zero time until
	// the execution ends.
	End time.Time

	// Attempt is the zero-based number of the current HTTP request
	// attempt. It is zero on the initial attempt, one on the first
	// retry, and so on.
	Attempt int

	// AttemptTimeouts counts the attempts that timed out.
	AttemptTimeouts int

	// Request is the HTTP request of the current or most recent attempt.
	Request *http.Request

	// Response is the HTTP response received in the most recent
	// attempt. It is nil if that attempt ended in a transport error or
	// if an attempt is underway.
	Response *http.Response

	// Err is the error that ended the most recent attempt, or, once the
	// execution has ended, the error returned to the caller.
	//
	// Transport errors have type *url.Error. Other errors that can end
	// an execution are errors returned by interceptors and, when the
	// final status is rejected by the client, a status error. A
	// canceled or superseded execution has an Err wrapping
	// inflight.ErrCanceled or inflight.ErrSuperseded.
	Err error

	// Body is the complete response body read after the most recent
	// attempt. It is the payload the client returns to the caller.
	Body []byte

	data context.Context
}

// StatusCode returns the status code of the HTTP response from the
// most recent request attempt, or 0 if there is no HTTP response.
func (e *Execution) StatusCode() int {
	if e.Response == nil {
		return 0
	}

	return e.Response.StatusCode
}

// Header returns the HTTP response headers from the most recent
// request attempt, or a nil header if there is no HTTP response.
func (e *Execution) Header() http.Header {
	if e.Response == nil {
		var nilHeader http.Header
		return nilHeader
	}

	return e.Response.Header
}

// Duration returns the duration of the execution: zero before it
// starts, the elapsed time while it runs, and End minus Start once it
// has ended.
func (e *Execution) Duration() time.Duration {
	if !e.Started() {
		return time.Duration(0)
	} else if !e.Ended() {
		return time.Since(e.Start)
	}

	return e.End.Sub(e.Start)
}

// Started indicates whether the execution has started.
func (e *Execution) Started() bool {
	return !e.Start.IsZero()
}

// Ended indicates whether the execution has ended.
func (e *Execution) Ended() bool {
	return !e.End.IsZero()
}

// Timeout indicates whether Err currently indicates a timeout, either
// of the most recent attempt or of the plan as a whole.
func (e *Execution) Timeout() bool {
	return transient.Categorize(e.Err) == transient.Timeout
}

// Canceled indicates whether Err currently indicates a cancellation:
// the plan context was canceled, the execution was canceled through
// the client, or it was superseded by a duplicate request.
//
// A canceled execution is not a failure the user needs to see; a newer
// request or a deliberate teardown is responsible for it.
func (e *Execution) Canceled() bool {
	return transient.Categorize(e.Err) == transient.Canceled
}

// Superseded indicates whether the execution was canceled because a
// newer request with the same fingerprint was issued.
func (e *Execution) Superseded() bool {
	return errors.Is(e.Err, inflight.ErrSuperseded)
}

// SetValue stores arbitrary handler data in the execution.
//
// The key must follow the same rules as the key parameter in
// context.WithValue: it may not be nil, it must be comparable, and it
// should be of an unexported type to avoid collisions.
func (e *Execution) SetValue(key, value interface{}) {
	ctx := e.data
	if ctx == nil {
		ctx = context.Background()
	}

	e.data = context.WithValue(ctx, key, value)
}

// Value returns the data value associated with this execution for key,
// or nil if there is no value associated with key.
func (e *Execution) Value(key interface{}) interface{} {
	ctx := e.data
	if ctx == nil {
		return nil
	}

	return ctx.Value(key)
}
