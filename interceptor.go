// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"github.com/gogama/reqx/request"
)

// A RequestInterceptor inspects or rewrites a plan before it is sent.
// It returns the plan to send, which may be p itself, or an error to
// fail the execution. Returning a nil plan and a nil error keeps p.
type RequestInterceptor func(p *request.Plan) (*request.Plan, error)

// Interceptors are the caller hooks of a client's request pipeline.
//
// The client runs its own duplicate detection before the request
// interceptors, so a plan rewritten by Request is still deduplicated by
// its original fingerprint. It runs its own cleanup after the response
// interceptors, so a response interceptor still sees the execution as
// in flight.
type Interceptors struct {
	// Request, if not nil, runs once per execution before the first
	// attempt, typically to inject credentials.
	Request RequestInterceptor

	// RequestCatch, if not nil, receives the error returned by Request.
	// It returns the error that ends the execution, or nil to carry on
	// with the plan as it was before Request ran.
	RequestCatch func(err error) error

	// Response, if not nil, runs after a successful execution, once the
	// response body has been read and the status code validated. It
	// may rewrite e.Body. A non-nil error fails the execution.
	Response func(e *request.Execution) error

	// ResponseCatch, if not nil, receives the error of a failed
	// execution, including a canceled one. It returns the error
	// returned to the caller, or nil to turn the failure into a
	// success.
	ResponseCatch func(e *request.Execution, err error) error
}

// Chain returns a request interceptor running each of interceptors in
// turn, feeding the plan returned by one into the next. The first error
// stops the chain. Nil interceptors are skipped.
func Chain(interceptors ...RequestInterceptor) RequestInterceptor {
	return func(p *request.Plan) (*request.Plan, error) {
		for _, f := range interceptors {
			if f == nil {
				continue
			}
			q, err := f(p)
			if err != nil {
				return nil, err
			}
			if q != nil {
				p = q
			}
		}
		return p, nil
	}
}

func (i *Interceptors) request(p *request.Plan) (*request.Plan, error) {
	if i.Request == nil {
		return p, nil
	}
	q, err := i.Request(p)
	if err != nil {
		if i.RequestCatch == nil {
			return nil, err
		}
		if err = i.RequestCatch(err); err != nil {
			return nil, err
		}
		return p, nil
	}
	if q == nil {
		return p, nil
	}
	return q, nil
}

func (i *Interceptors) response(e *request.Execution) {
	if e.Err == nil {
		if i.Response != nil {
			e.Err = i.Response(e)
		}
	} else if i.ResponseCatch != nil {
		e.Err = i.ResponseCatch(e, e.Err)
	}
}
