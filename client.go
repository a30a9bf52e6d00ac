// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gogama/reqx/fingerprint"
	"github.com/gogama/reqx/inflight"
	"github.com/gogama/reqx/request"
	"github.com/gogama/reqx/retry"
	"github.com/gogama/reqx/timeout"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader is the header carrying the execution ID.
const RequestIDHeader = "X-Request-Id"

// An HTTPDoer implements a Do method in the same manner as the GoLang
// standard library http.Client from the net/http package.
type HTTPDoer interface {
	// Do sends an HTTP request and returns an HTTP response following
	// policy (such as redirects, cookies, auth) configured on the
	// HTTPDoer.
	Do(r *http.Request) (*http.Response, error)
}

var emptyHandlers = HandlerGroup{}

// ErrPanicked is the Err of an execution seen by AfterExecutionEnd
// handlers while a panic raised during the execution unwinds.
var ErrPanicked = errors.New("reqx: execution panicked")

// A Client sends requests to a JSON API, keeping at most one request
// per fingerprint in flight. Its zero value is a valid configuration.
//
// When a request is issued while another request with the same
// fingerprint (method, URL, parameters and JSON body, see package
// fingerprint) is still in flight, the older request is canceled and
// the newer one proceeds. The older request's execution ends with an
// error wrapping inflight.ErrSuperseded, which also matches
// context.Canceled. This is what a user interface wants when the same
// list query is fired repeatedly: only the last result matters.
//
// Beyond that, Client reads and buffers each response body, sets a
// timeout on every attempt, optionally retries failed attempts, runs
// the caller's interceptors, and fires events to installed handlers.
//
// A Client must not be copied after first use. It is safe for
// concurrent use by multiple goroutines.
type Client struct {
	// HTTPDoer sends the HTTP requests. If nil, http.DefaultClient is
	// used.
	HTTPDoer HTTPDoer

	// BaseURL, if not nil, is the URL relative plan URLs are resolved
	// against. Its path is kept, so with base "https://h/api" the plan
	// URL "/system/user/page" is sent to "https://h/api/system/user/page".
	BaseURL *url.URL

	// Header holds default headers sent with every request that does
	// not set them itself.
	Header http.Header

	// RetryPolicy decides when to retry failed attempts. If nil,
	// retry.Never is used.
	RetryPolicy retry.Policy

	// TimeoutPolicy sets the timeout of each attempt. If nil,
	// timeout.DefaultPolicy is used.
	TimeoutPolicy timeout.Policy

	// Interceptors are the caller's request and response hooks.
	Interceptors Interceptors

	// Handlers are invoked when events occur during an execution. If
	// nil, no handlers run.
	Handlers *HandlerGroup

	// ValidateStatus reports whether the final status code of an
	// execution is a success. If nil, 2xx codes are successes. Any
	// other status code ends the execution with a *StatusError.
	ValidateStatus func(code int) bool

	// TokenQueryParam is the query parameter carrying the bearer token
	// of an event stream, which cannot be sent as a header. If empty,
	// "token" is used.
	TokenQueryParam string

	// Logger receives the client's log output. If nil, nothing is
	// logged.
	Logger *zap.Logger

	// Registry holds the cancellation handles of in-flight requests.
	// If nil, the client creates its own on first use. Clients sharing
	// a registry deduplicate requests across each other.
	Registry *inflight.Registry

	once     sync.Once
	registry *inflight.Registry
}

// Do executes a request plan and returns the execution.
//
// The returned execution is never nil and its Err field always holds
// the returned error. The execution ends in error if the plan is
// superseded or canceled, if a request interceptor fails, if the final
// attempt fails after any retries, if the final status code is not
// valid (see ValidateStatus), or if the response interceptor fails.
// Errors from attempts are of type *url.Error.
//
// On success the execution's Body holds the response payload.
//
// A panic in the doer, an interceptor or a handler propagates to the
// caller. AfterExecutionEnd handlers still run first, with Err set to
// ErrPanicked, unless the panic was raised by one of them.
func (c *Client) Do(p *request.Plan) (*request.Execution, error) {
	e := &request.Execution{
		Plan: p,
		ID:   uuid.NewString(),
	}

	doer := c.doer()

	timeoutPolicy := c.TimeoutPolicy
	if timeoutPolicy == nil {
		timeoutPolicy = timeout.DefaultPolicy
	}

	retryPolicy := c.RetryPolicy
	if retryPolicy == nil {
		retryPolicy = retry.Never
	}

	handlers := c.Handlers
	if handlers == nil {
		handlers = &emptyHandlers
	}
	ended := false
	defer func() {
		if ended {
			return
		}
		e.Err = ErrPanicked
		e.End = time.Now()
		handlers.run(AfterExecutionEnd, e)
	}()
	handlers.run(BeforeExecutionStart, e)
	e.Start = time.Now()

	ctx, cancel := context.WithCancelCause(p.Context())
	handle := inflight.NewHandle(cancel)
	reg := c.inflight()
	e.Fingerprint = fingerprint.Of(p)
	if reg.Register(e.Fingerprint, handle) {
		c.logger().Warn("Canceled duplicate request",
			zap.String("fingerprint", e.Fingerprint),
			zap.String("id", e.ID))
		handlers.run(AfterSupersede, e)
	}
	defer func() {
		reg.Remove(e.Fingerprint, handle)
		handle.Cancel(context.Canceled)
	}()
	e.Plan = p.WithContext(ctx)

	if q, err := c.Interceptors.request(e.Plan); err != nil {
		e.Err = err
	} else {
		if q.Context() != ctx {
			q = q.WithContext(ctx)
		}
		e.Plan = q
		c.execute(ctx, e, doer, handlers, timeoutPolicy, retryPolicy)
	}

	c.Interceptors.response(e)
	e.End = time.Now()
	ended = true
	handlers.run(AfterExecutionEnd, e)
	return e, e.Err
}

func (c *Client) execute(ctx context.Context, e *request.Execution, doer HTTPDoer, handlers *HandlerGroup,
	timeoutPolicy timeout.Policy, retryPolicy retry.Policy) {
RetryLoop:
	for {
		c.sendAndReceive(ctx, e, doer, handlers, timeoutPolicy)
		if e.Timeout() {
			e.AttemptTimeouts++
			handlers.run(AfterAttemptTimeout, e)
		}
		handlers.run(AfterAttempt, e)
		if ctx.Err() != nil {
			c.contextDone(ctx, e, handlers)
			return
		} else if e.Err == nil && c.validStatus(e.StatusCode()) {
			break
		} else if e.Canceled() || !retryPolicy.Decide(e) {
			break
		}

		wait := retryPolicy.Wait(e)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			e.Response = nil
			e.Body = nil
			c.contextDone(ctx, e, handlers)
			break RetryLoop
		}
		e.Response = nil
		e.Err = nil
		e.Body = nil
		e.Attempt++
	}

	if e.Err == nil && !c.validStatus(e.StatusCode()) {
		e.Err = newStatusError(e)
	}
}

// contextDone sets the execution error once the execution context is
// done: the cancellation cause for a superseded or canceled execution,
// or the deadline error when the plan timed out.
func (c *Client) contextDone(ctx context.Context, e *request.Execution, handlers *HandlerGroup) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.Err = urlErrorWrap(e.Plan, context.DeadlineExceeded)
		handlers.run(AfterPlanTimeout, e)
		return
	}
	e.Err = urlErrorWrap(e.Plan, context.Cause(ctx))
}

func (c *Client) sendAndReceive(ctx context.Context, e *request.Execution, doer HTTPDoer, handlers *HandlerGroup, timeoutPolicy timeout.Policy) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeoutPolicy.Timeout(e))
	defer cancel()
	e.Request = e.Plan.ToRequest(attemptCtx, c.BaseURL)
	c.setDefaultHeaders(e.Request.Header)
	e.Request.Header.Set(RequestIDHeader, e.ID)
	handlers.run(BeforeAttempt, e)
	var err error
	e.Response, err = doer.Do(e.Request)
	if err != nil {
		e.Err = urlErrorWrap(e.Plan, err)
	} else {
		readBody(e, handlers)
	}
}

func readBody(e *request.Execution, handlers *HandlerGroup) {
	defer func() {
		_ = e.Response.Body.Close()
	}()
	handlers.run(BeforeReadBody, e)
	var err error
	e.Body, err = io.ReadAll(e.Response.Body)
	if err != nil {
		e.Err = urlErrorWrap(e.Plan, err)
	}
}

func (c *Client) setDefaultHeaders(h http.Header) {
	for k, vs := range c.Header {
		if _, ok := h[k]; !ok {
			h[k] = append([]string(nil), vs...)
		}
	}
}

func (c *Client) validStatus(code int) bool {
	if c.ValidateStatus != nil {
		return c.ValidateStatus(code)
	}
	return code >= 200 && code <= 299
}

// Get issues a GET to the specified URL.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*request.Execution, error) {
	return Get(ctx, c, url, opts...)
}

// Post issues a POST to the specified URL. The body may be any value
// accepted by request.NewPlan; structs and maps are sent as JSON.
func (c *Client) Post(ctx context.Context, url string, body interface{}, opts ...RequestOption) (*request.Execution, error) {
	return Post(ctx, c, url, body, opts...)
}

// Put issues a PUT to the specified URL. The body may be any value
// accepted by request.NewPlan; structs and maps are sent as JSON.
func (c *Client) Put(ctx context.Context, url string, body interface{}, opts ...RequestOption) (*request.Execution, error) {
	return Put(ctx, c, url, body, opts...)
}

// Delete issues a DELETE to the specified URL.
func (c *Client) Delete(ctx context.Context, url string, opts ...RequestOption) (*request.Execution, error) {
	return Delete(ctx, c, url, opts...)
}

// CancelRequest cancels the in-flight requests with the given
// fingerprints, as found in Execution.Fingerprint or computed with
// fingerprint.Compute. Unknown fingerprints are ignored. It returns the
// number of requests canceled.
func (c *Client) CancelRequest(fingerprints ...string) int {
	return c.inflight().Cancel(fingerprints...)
}

// CancelAllRequest cancels every in-flight request and returns the
// number canceled. It is typically called when the user signs out or
// the program shuts down.
func (c *Client) CancelAllRequest() int {
	return c.inflight().CancelAll()
}

// InFlight returns the fingerprints of the requests currently in
// flight, sorted.
func (c *Client) InFlight() []string {
	return c.inflight().Keys()
}

// CloseIdleConnections invokes the same method on the client's
// underlying HTTPDoer, if it has one.
func (c *Client) CloseIdleConnections() {
	doer := c.doer()
	if ic, ok := doer.(IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}

func (c *Client) inflight() *inflight.Registry {
	c.once.Do(func() {
		c.registry = c.Registry
		if c.registry == nil {
			c.registry = inflight.New()
		}
	})
	return c.registry
}

func (c *Client) doer() HTTPDoer {
	if c.HTTPDoer == nil {
		return http.DefaultClient
	}

	return c.HTTPDoer
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func urlErrorWrap(p *request.Plan, err error) error {
	if _, ok := err.(*url.Error); ok {
		return err
	}

	var u string
	if p.URL != nil {
		u = p.URL.String()
	}
	return &url.Error{
		Op:  urlErrorOp(p.Method),
		URL: u,
		Err: err,
	}
}

// urlErrorOp is lifted verbatim from net/http/client.go
func urlErrorOp(method string) string {
	if method == "" {
		return "Get"
	}
	return method[:1] + strings.ToLower(method[1:])
}
