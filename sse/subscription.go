// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/elnormous/contenttype"
	"go.uber.org/zap"
)

// ErrNoBody is the error reported when a stream response has no body.
var ErrNoBody = errors.New("reqx/sse: response has no body")

var eventStreamMediaType = contenttype.NewMediaType("text/event-stream")

// A StatusError reports a stream response with a non-2xx status code.
type StatusError struct {
	StatusCode int
	Status     string
}

func (err *StatusError) Error() string {
	return fmt.Sprintf("reqx/sse: unexpected response status %q", err.Status)
}

// A ContentTypeError reports an event-stream response whose content
// type is not text/event-stream.
type ContentTypeError struct {
	ContentType string
}

func (err *ContentTypeError) Error() string {
	return fmt.Sprintf("reqx/sse: unexpected content type %q", err.ContentType)
}

// A DialFunc opens the HTTP connection of a stream. The context passed
// to it is canceled when the subscription is closed.
type DialFunc func(ctx context.Context) (*http.Response, error)

// Handlers are the callbacks of a subscription. They are called from
// the subscription's goroutine, one at a time, in arrival order.
type Handlers struct {
	// OnOpen, if not nil, is called once the response has been checked
	// and before the first message is read.
	OnOpen func(resp *http.Response)

	// OnMessage is called for each message received. It is required.
	OnMessage func(m Message)

	// OnError, if not nil, is called with the error that ended the
	// stream. It is not called when the stream ends because the
	// subscription was closed, or because the server ended the stream
	// normally. If OnError is nil the error is logged instead.
	OnError func(err error)

	// Logger receives the errors not handled by OnError. If nil, they
	// are discarded.
	Logger *zap.Logger
}

// A Subscription is an open stream. It delivers messages until the
// stream ends, fails, or is closed with Close.
type Subscription struct {
	mode   Mode
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once

	mu   sync.Mutex
	body io.Closer
	err  error
}

// Open starts a subscription and returns it immediately. The
// connection is made with dial, and the stream is read and delivered,
// on a new goroutine.
//
// Open panics if h.OnMessage is nil.
func Open(ctx context.Context, mode Mode, dial DialFunc, h Handlers) *Subscription {
	if h.OnMessage == nil {
		panic("reqx/sse: nil OnMessage handler")
	}
	if dial == nil {
		panic("reqx/sse: nil dial func")
	}
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		mode:   mode,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx, dial, h)
	return s
}

// Mode returns the framing mode of the subscription.
func (s *Subscription) Mode() Mode {
	return s.mode
}

// Close closes the subscription. It cancels the connection and closes
// the response body, and no callback starts after Close returns, with
// the exception of one that had already been dispatched when Close was
// called. Close may be called any number of times, from any goroutine.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
		s.mu.Lock()
		body := s.body
		s.mu.Unlock()
		if body != nil {
			_ = body.Close()
		}
	})
}

// Closed reports whether the subscription has been closed, either by
// Close or because the stream ended.
func (s *Subscription) Closed() bool {
	return s.closed.Load()
}

// Done returns a channel that is closed when the subscription's
// goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the stream, or nil if the stream
// ended normally, was closed, or is still running.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) run(ctx context.Context, dial DialFunc, h Handlers) {
	defer close(s.done)
	defer s.cancel()
	defer s.closed.Store(true)

	resp, err := dial(ctx)
	if err != nil {
		s.fail(h, err)
		return
	}
	if resp == nil {
		s.fail(h, ErrNoBody)
		return
	}
	if err = s.check(resp); err != nil {
		closeBody(resp)
		s.fail(h, err)
		return
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		closeBody(resp)
		s.fail(h, ErrNoBody)
		return
	}
	if !s.attach(resp.Body) {
		_ = resp.Body.Close()
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if h.OnOpen != nil && !s.closed.Load() {
		h.OnOpen(resp)
	}

	r := newReader(resp.Body, s.mode, s.closed.Load)
	for {
		m, err := r.Next()
		if err == io.EOF {
			return
		} else if err != nil {
			s.fail(h, err)
			return
		}
		if s.closed.Load() {
			return
		}
		h.OnMessage(m)
	}
}

// attach records the body so that Close can close it. It reports false
// if the subscription was closed while dialing.
func (s *Subscription) attach(body io.Closer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.body = body
	return true
}

func closeBody(resp *http.Response) {
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
}

func (s *Subscription) check(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if s.mode == ModeEventStream {
		ct := resp.Header.Get("Content-Type")
		mt, err := contenttype.ParseMediaType(ct)
		if err != nil || !mt.Matches(eventStreamMediaType) {
			return &ContentTypeError{ContentType: ct}
		}
	}
	return nil
}

func (s *Subscription) fail(h Handlers, err error) {
	if s.closed.Load() || errors.Is(err, ErrStopped) {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	if h.OnError != nil {
		h.OnError(err)
	} else {
		h.Logger.Error("Stream error", zap.Stringer("mode", s.mode), zap.Error(err))
	}
}
