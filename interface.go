// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"context"

	"github.com/gogama/reqx/request"
)

// Doer is the interface that wraps the basic Do method.
//
// Do executes a request plan and returns the final execution state and
// error, if any. Client implements Doer, and any other implementation
// must behave substantially the same as Client.Do.
type Doer interface {
	Do(p *request.Plan) (*request.Execution, error)
}

// Getter is the interface that wraps the basic Get method.
type Getter interface {
	Get(ctx context.Context, url string, opts ...RequestOption) (*request.Execution, error)
}

// Poster is the interface that wraps the basic Post method.
type Poster interface {
	Post(ctx context.Context, url string, body interface{}, opts ...RequestOption) (*request.Execution, error)
}

// Putter is the interface that wraps the basic Put method.
type Putter interface {
	Put(ctx context.Context, url string, body interface{}, opts ...RequestOption) (*request.Execution, error)
}

// Deleter is the interface that wraps the basic Delete method.
type Deleter interface {
	Delete(ctx context.Context, url string, opts ...RequestOption) (*request.Execution, error)
}

// Canceler is the interface that wraps the CancelRequest and
// CancelAllRequest methods.
type Canceler interface {
	CancelRequest(fingerprints ...string) int
	CancelAllRequest() int
}

// IdleCloser is the interface that wraps the basic CloseIdleConnections
// method.
type IdleCloser interface {
	CloseIdleConnections()
}

// Executor is the interface that groups the request methods of Client.
//
// Any Doer can be converted into an Executor via the Inflate function.
type Executor interface {
	Doer
	Getter
	Poster
	Putter
	Deleter
	Canceler
	IdleCloser
}

// Get uses d to issue a GET to the specified URL.
func Get(ctx context.Context, d Doer, url string, opts ...RequestOption) (*request.Execution, error) {
	return do(ctx, d, "GET", url, nil, opts)
}

// Post uses d to issue a POST to the specified URL.
func Post(ctx context.Context, d Doer, url string, body interface{}, opts ...RequestOption) (*request.Execution, error) {
	return do(ctx, d, "POST", url, body, opts)
}

// Put uses d to issue a PUT to the specified URL.
func Put(ctx context.Context, d Doer, url string, body interface{}, opts ...RequestOption) (*request.Execution, error) {
	return do(ctx, d, "PUT", url, body, opts)
}

// Delete uses d to issue a DELETE to the specified URL.
func Delete(ctx context.Context, d Doer, url string, opts ...RequestOption) (*request.Execution, error) {
	return do(ctx, d, "DELETE", url, nil, opts)
}

func do(ctx context.Context, d Doer, method, url string, body interface{}, opts []RequestOption) (*request.Execution, error) {
	p, err := newPlan(ctx, method, url, body, opts)
	if err != nil {
		return nil, err
	}
	return d.Do(p)
}

// Inflate converts any non-nil Doer into an Executor. If d has no
// cancellation methods, the Executor's CancelRequest and
// CancelAllRequest do nothing and return zero.
func Inflate(d Doer) Executor {
	if d == nil {
		panic("reqx: nil doer")
	}

	if e, ok := d.(Executor); ok {
		return e
	}

	return inflated{d}
}

type inflated struct {
	doer Doer
}

func (i inflated) Do(p *request.Plan) (*request.Execution, error) {
	return i.doer.Do(p)
}

func (i inflated) Get(ctx context.Context, url string, opts ...RequestOption) (*request.Execution, error) {
	return Get(ctx, i.doer, url, opts...)
}

func (i inflated) Post(ctx context.Context, url string, body interface{}, opts ...RequestOption) (*request.Execution, error) {
	return Post(ctx, i.doer, url, body, opts...)
}

func (i inflated) Put(ctx context.Context, url string, body interface{}, opts ...RequestOption) (*request.Execution, error) {
	return Put(ctx, i.doer, url, body, opts...)
}

func (i inflated) Delete(ctx context.Context, url string, opts ...RequestOption) (*request.Execution, error) {
	return Delete(ctx, i.doer, url, opts...)
}

func (i inflated) CancelRequest(fingerprints ...string) int {
	if c, ok := i.doer.(Canceler); ok {
		return c.CancelRequest(fingerprints...)
	}
	return 0
}

func (i inflated) CancelAllRequest() int {
	if c, ok := i.doer.(Canceler); ok {
		return c.CancelAllRequest()
	}
	return 0
}

func (i inflated) CloseIdleConnections() {
	if ic, ok := i.doer.(IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}
