// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sse

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const waitFor = 2 * time.Second

func TestOpen(t *testing.T) {
	t.Run("panics", func(t *testing.T) {
		assert.PanicsWithValue(t, "reqx/sse: nil OnMessage handler", func() {
			Open(context.Background(), ModeChunked, pipeDial(nil, ""), Handlers{})
		})
		assert.PanicsWithValue(t, "reqx/sse: nil dial func", func() {
			Open(context.Background(), ModeChunked, nil, Handlers{OnMessage: func(Message) {}})
		})
	})
	t.Run("delivers in order then ends", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		pr, pw := io.Pipe()
		rec := newRecorder()
		opened := make(chan struct{})
		s := Open(context.Background(), ModeEventStream, pipeDial(pr, "text/event-stream; charset=utf-8"), Handlers{
			OnOpen:    func(*http.Response) { close(opened) },
			OnMessage: rec.onMessage,
			OnError:   rec.onError,
		})
		assert.Equal(t, ModeEventStream, s.Mode())
		waitClosed(t, opened)
		_, _ = io.WriteString(pw, "data: {\"step\":1}\n\nda")
		_, _ = io.WriteString(pw, "ta: two\n\n")
		require.NoError(t, pw.Close())
		waitClosed(t, s.Done())
		assert.Equal(t, []string{`{"step":1}`, "two"}, rec.data())
		assert.Empty(t, rec.errors())
		assert.NoError(t, s.Err())
		assert.True(t, s.Closed())
		s.Close()
	})
	t.Run("close stops delivery", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		pr, pw := io.Pipe()
		rec := newRecorder()
		s := Open(context.Background(), ModeChunked, pipeDial(pr, "application/json"), Handlers{
			OnMessage: rec.onMessage,
			OnError:   rec.onError,
		})
		_, err := io.WriteString(pw, "data: first\n")
		require.NoError(t, err)
		require.Eventually(t, func() bool { return len(rec.data()) == 1 }, waitFor, time.Millisecond)
		s.Close()
		_, err = io.WriteString(pw, "data: second\n")
		assert.ErrorIs(t, err, io.ErrClosedPipe)
		waitClosed(t, s.Done())
		assert.Equal(t, []string{"first"}, rec.data())
		assert.Empty(t, rec.errors(), "close must not be reported as an error")
		assert.NoError(t, s.Err())
	})
	t.Run("close is idempotent and concurrent", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		pr, pw := io.Pipe()
		defer pw.Close()
		rec := newRecorder()
		s := Open(context.Background(), ModeChunked, pipeDial(pr, ""), Handlers{OnMessage: rec.onMessage})
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Close()
			}()
		}
		wg.Wait()
		s.Close()
		waitClosed(t, s.Done())
		assert.True(t, s.Closed())
		assert.Empty(t, rec.data())
	})
	t.Run("close before dial returns", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		rec := newRecorder()
		release := make(chan struct{})
		dial := func(ctx context.Context) (*http.Response, error) {
			<-release
			return nil, ctx.Err()
		}
		s := Open(context.Background(), ModeEventStream, dial, Handlers{OnMessage: rec.onMessage, OnError: rec.onError})
		s.Close()
		close(release)
		waitClosed(t, s.Done())
		assert.Empty(t, rec.errors())
	})
	t.Run("parent context canceled", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx, cancel := context.WithCancel(context.Background())
		rec := newRecorder()
		dial := func(ctx context.Context) (*http.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		s := Open(ctx, ModeChunked, dial, Handlers{OnMessage: rec.onMessage, OnError: rec.onError})
		cancel()
		waitClosed(t, s.Done())
		require.Len(t, rec.errors(), 1)
		assert.ErrorIs(t, rec.errors()[0], context.Canceled)
	})
}

func TestOpen_Failures(t *testing.T) {
	testCases := []struct {
		name  string
		mode  Mode
		dial  func() DialFunc
		check func(*testing.T, error)
	}{
		{
			name: "dial error",
			mode: ModeChunked,
			dial: func() DialFunc {
				return func(context.Context) (*http.Response, error) { return nil, errors.New("refused") }
			},
			check: func(t *testing.T, err error) { assert.EqualError(t, err, "refused") },
		},
		{
			name: "non-2xx",
			mode: ModeChunked,
			dial: func() DialFunc {
				return responseDial(&http.Response{StatusCode: 401, Status: "401 Unauthorized", Body: io.NopCloser(strings.NewReader("no"))})
			},
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, 401, statusErr.StatusCode)
				assert.EqualError(t, err, `reqx/sse: unexpected response status "401 Unauthorized"`)
			},
		},
		{
			name: "non-2xx without body",
			mode: ModeEventStream,
			dial: func() DialFunc {
				return responseDial(&http.Response{StatusCode: 401, Status: "401 Unauthorized", Body: http.NoBody})
			},
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, 401, statusErr.StatusCode)
			},
		},
		{
			name: "non-2xx with nil body",
			mode: ModeChunked,
			dial: func() DialFunc {
				return responseDial(&http.Response{StatusCode: 503, Status: "503 Service Unavailable"})
			},
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, 503, statusErr.StatusCode)
			},
		},
		{
			name: "no body",
			mode: ModeChunked,
			dial: func() DialFunc {
				return responseDial(&http.Response{StatusCode: 200, Body: http.NoBody})
			},
			check: func(t *testing.T, err error) { assert.Same(t, ErrNoBody, err) },
		},
		{
			name: "nil response",
			mode: ModeEventStream,
			dial: func() DialFunc { return responseDial(nil) },
			check: func(t *testing.T, err error) { assert.Same(t, ErrNoBody, err) },
		},
		{
			name: "wrong content type",
			mode: ModeEventStream,
			dial: func() DialFunc {
				return responseDial(&http.Response{
					StatusCode: 200,
					Header:     http.Header{"Content-Type": {"application/json"}},
					Body:       io.NopCloser(strings.NewReader("data: x\n\n")),
				})
			},
			check: func(t *testing.T, err error) {
				var ctErr *ContentTypeError
				require.ErrorAs(t, err, &ctErr)
				assert.Equal(t, "application/json", ctErr.ContentType)
			},
		},
		{
			name: "read error",
			mode: ModeChunked,
			dial: func() DialFunc {
				return responseDial(&http.Response{
					StatusCode: 200,
					Body:       io.NopCloser(io.MultiReader(strings.NewReader("data: ok\n"), &errReader{errors.New("reset")})),
				})
			},
			check: func(t *testing.T, err error) { assert.EqualError(t, err, "reset") },
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)
			rec := newRecorder()
			s := Open(context.Background(), testCase.mode, testCase.dial(), Handlers{OnMessage: rec.onMessage, OnError: rec.onError})
			waitClosed(t, s.Done())
			require.Len(t, rec.errors(), 1)
			testCase.check(t, rec.errors()[0])
			assert.Same(t, rec.errors()[0], s.Err())
			assert.True(t, s.Closed())
		})
	}
	t.Run("logged without OnError", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		s := Open(context.Background(), ModeChunked, responseDial(&http.Response{StatusCode: 502, Status: "502 Bad Gateway", Body: http.NoBody}), Handlers{
			OnMessage: func(Message) {},
			Logger:    zap.New(core),
		})
		waitClosed(t, s.Done())
		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, "Stream error", entry.Message)
		assert.Equal(t, "chunked", entry.ContextMap()["mode"])
		var statusErr *StatusError
		assert.ErrorAs(t, s.Err(), &statusErr)
	})
}

func TestTyped(t *testing.T) {
	type progress struct {
		Done  int `json:"done"`
		Total int `json:"total"`
	}
	var got []progress
	var raw []string
	h := Typed(func(p progress) { got = append(got, p) }, func(m Message) { raw = append(raw, m.Data) })
	h(newMessage("", "", `{"done":1,"total":4}`, 0))
	h(newMessage("", "", `finished`, 0))
	h(newMessage("", "", `[1,2]`, 0))
	assert.Equal(t, []progress{{1, 4}}, got)
	assert.Equal(t, []string{"finished", "[1,2]"}, raw)
	t.Run("nil raw handler", func(t *testing.T) {
		h := Typed(func(int) {}, nil)
		assert.NotPanics(t, func() { h(newMessage("", "", "text", 0)) })
	})
	t.Run("nil value handler", func(t *testing.T) {
		assert.Panics(t, func() { Typed[int](nil, nil) })
	})
}

type recorder struct {
	mu   sync.Mutex
	msgs []Message
	errs []error
}

func newRecorder() *recorder {
	return &recorder{}
}

func (r *recorder) onMessage(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) data() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var d []string
	for _, m := range r.msgs {
		d = append(d, m.Data)
	}
	return d
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func pipeDial(body io.ReadCloser, contentType string) DialFunc {
	return func(context.Context) (*http.Response, error) {
		h := http.Header{}
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		return &http.Response{StatusCode: 200, Status: "200 OK", Header: h, Body: body}, nil
	}
}

func responseDial(resp *http.Response) DialFunc {
	return func(context.Context) (*http.Response, error) {
		return resp, nil
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for subscription")
	}
}
