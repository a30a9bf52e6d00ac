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
	"testing"
	"time"

	"github.com/gogama/reqx/request"
	"github.com/gogama/reqx/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestClient_Subscribe(t *testing.T) {
	t.Run("event stream", testSubscribeEventStream)
	t.Run("event filter", testSubscribeEventFilter)
	t.Run("chunked", testSubscribeChunked)
	t.Run("request", testSubscribeRequest)
	t.Run("errors", testSubscribeErrors)
}

func TestClient_SSE(t *testing.T) {
	t.Run("close", testSSEClose)
	t.Run("build error", testSSEBuildError)
}

type messageRecorder struct {
	mu       sync.Mutex
	messages []sse.Message
	errs     []error
}

func (r *messageRecorder) onMessage(m sse.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *messageRecorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *messageRecorder) data() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := make([]string, len(r.messages))
	for i := range r.messages {
		d[i] = r.messages[i].Data
	}
	return d
}

func adminClient(t *testing.T) *Client {
	base, err := url.Parse(adminServer.URL + "/api")
	require.NoError(t, err)
	return &Client{
		BaseURL: base,
		Interceptors: Interceptors{
			Request: func(p *request.Plan) (*request.Plan, error) {
				p.SetBearer(adminToken)
				return p, nil
			},
		},
	}
}

func waitDone(t *testing.T, sub *sse.Subscription) {
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end")
	}
}

func testSubscribeEventStream(t *testing.T) {
	cl := adminClient(t)
	rec := &messageRecorder{}
	var status int

	sub, err := cl.Subscribe(context.Background(), Stream{
		URL:       "/notice/stream",
		OnOpen:    func(resp *http.Response) { status = resp.StatusCode },
		OnMessage: rec.onMessage,
		OnError:   rec.onError,
	})
	require.NoError(t, err)
	waitDone(t, sub)

	assert.Equal(t, sse.ModeEventStream, sub.Mode())
	assert.NoError(t, sub.Err())
	assert.True(t, sub.Closed())
	assert.Equal(t, 200, status)
	assert.Empty(t, rec.errs)
	require.Equal(t, []string{
		`{"title":"maintenance","level":2}`,
		"plain text",
		"line one\nline two",
	}, rec.data())
	notice := rec.messages[0]
	assert.Equal(t, "notice", notice.Event)
	assert.Equal(t, "1", notice.ID)
	assert.True(t, notice.IsJSON())
	var body struct {
		Title string `json:"title"`
		Level int    `json:"level"`
	}
	require.NoError(t, notice.Decode(&body))
	assert.Equal(t, "maintenance", body.Title)
	assert.Equal(t, "message", rec.messages[1].Event)
	assert.False(t, rec.messages[1].IsJSON())
	assert.Equal(t, "plain text", rec.messages[1].Value())
}

func testSubscribeEventFilter(t *testing.T) {
	t.Run("unnamed only", func(t *testing.T) {
		cl := adminClient(t)
		rec := &messageRecorder{}
		sub, err := cl.Subscribe(context.Background(), Stream{
			URL:       "/notice/stream",
			Events:    []string{"message"},
			OnMessage: rec.onMessage,
			OnError:   rec.onError,
		})
		require.NoError(t, err)
		waitDone(t, sub)

		assert.NoError(t, sub.Err())
		assert.Equal(t, []string{"plain text", "line one\nline two"}, rec.data())
	})
	t.Run("named only", func(t *testing.T) {
		cl := adminClient(t)
		rec := &messageRecorder{}
		sub, err := cl.Subscribe(context.Background(), Stream{
			URL:       "/notice/stream",
			Events:    []string{"notice"},
			OnMessage: rec.onMessage,
		})
		require.NoError(t, err)
		waitDone(t, sub)

		require.Len(t, rec.messages, 1)
		assert.Equal(t, "notice", rec.messages[0].Event)
	})
}

func testSubscribeChunked(t *testing.T) {
	cl := adminClient(t)
	type chunk struct {
		Text string `json:"text"`
	}
	var mu sync.Mutex
	var words []string
	var raw []string

	sub, err := cl.Subscribe(context.Background(), Stream{
		Method: "POST",
		URL:    "/chat/completions",
		Body:   map[string][]string{"words": {"hello", "world"}},
		OnMessage: sse.Typed(func(c chunk) {
			mu.Lock()
			defer mu.Unlock()
			words = append(words, c.Text)
		}, func(m sse.Message) {
			mu.Lock()
			defer mu.Unlock()
			raw = append(raw, m.Data)
		}),
		OnError: func(err error) { t.Errorf("unexpected stream error: %v", err) },
	})
	require.NoError(t, err)
	waitDone(t, sub)

	assert.Equal(t, sse.ModeChunked, sub.Mode())
	assert.NoError(t, sub.Err())
	assert.Equal(t, []string{"hello", "world"}, words)
	assert.Equal(t, []string{"[DONE]"}, raw)
}

func testSubscribeRequest(t *testing.T) {
	base, err := url.Parse("http://admin.example.com/api")
	require.NoError(t, err)
	empty := func(contentType string) *http.Response {
		return &http.Response{
			StatusCode: 200,
			Header:     http.Header{"Content-Type": {contentType}},
			Body:       io.NopCloser(strings.NewReader("")),
		}
	}

	t.Run("GET moves token into query", func(t *testing.T) {
		reqs := make(chan *http.Request, 1)
		cl := &Client{
			HTTPDoer: doerFunc(func(r *http.Request) (*http.Response, error) {
				reqs <- r
				return empty("text/event-stream"), nil
			}),
			BaseURL:         base,
			TokenQueryParam: "access_token",
			Header: http.Header{
				"Authorization": {"Bearer tok"},
				"X-Tenant":      {"acme"},
			},
		}

		sub, err := cl.Subscribe(context.Background(), Stream{
			URL:       "/notice/stream",
			Query:     url.Values{"topic": {"alerts"}},
			Body:      "ignored",
			OnMessage: func(sse.Message) {},
		})
		require.NoError(t, err)
		waitDone(t, sub)

		r := <-reqs
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/notice/stream", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
		assert.Equal(t, "alerts", r.URL.Query().Get("topic"))
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		assert.Equal(t, "acme", r.Header.Get("X-Tenant"))
		assert.Nil(t, r.Body)
		assert.Empty(t, cl.InFlight())
	})

	t.Run("GET without token", func(t *testing.T) {
		reqs := make(chan *http.Request, 1)
		cl := &Client{
			HTTPDoer: doerFunc(func(r *http.Request) (*http.Response, error) {
				reqs <- r
				return empty("text/event-stream"), nil
			}),
		}

		sub, err := cl.Subscribe(context.Background(), Stream{
			URL:       "/notice/stream",
			OnMessage: func(sse.Message) {},
		})
		require.NoError(t, err)
		waitDone(t, sub)

		r := <-reqs
		assert.False(t, r.URL.Query().Has("token"))
	})

	t.Run("POST keeps bearer header", func(t *testing.T) {
		reqs := make(chan *http.Request, 1)
		bodies := make(chan string, 1)
		cl := &Client{
			HTTPDoer: doerFunc(func(r *http.Request) (*http.Response, error) {
				b, _ := io.ReadAll(r.Body)
				reqs <- r
				bodies <- string(b)
				return empty("text/plain"), nil
			}),
			BaseURL: base,
			Interceptors: Interceptors{
				Request: func(p *request.Plan) (*request.Plan, error) {
					p.SetBearer("from-interceptor")
					return p, nil
				},
			},
		}

		sub, err := cl.Subscribe(context.Background(), Stream{
			Method:    "POST",
			URL:       "/chat/completions",
			Body:      map[string]string{"prompt": "hi"},
			OnMessage: func(sse.Message) {},
		})
		require.NoError(t, err)
		waitDone(t, sub)

		r := <-reqs
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "Bearer from-interceptor", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.False(t, r.URL.Query().Has("token"))
		assert.JSONEq(t, `{"prompt":"hi"}`, <-bodies)
	})

	t.Run("explicit bearer wins", func(t *testing.T) {
		reqs := make(chan *http.Request, 1)
		cl := &Client{
			HTTPDoer: doerFunc(func(r *http.Request) (*http.Response, error) {
				reqs <- r
				return empty("text/event-stream"), nil
			}),
			Interceptors: Interceptors{
				Request: func(p *request.Plan) (*request.Plan, error) {
					t.Error("interceptor must not run when the stream carries a token")
					return p, nil
				},
			},
		}

		sub, err := cl.Subscribe(context.Background(), Stream{
			URL:       "/notice/stream",
			Header:    http.Header{"Authorization": {"Bearer explicit"}},
			OnMessage: func(sse.Message) {},
		})
		require.NoError(t, err)
		waitDone(t, sub)

		assert.Equal(t, "explicit", (<-reqs).URL.Query().Get("token"))
	})
}

func testSubscribeErrors(t *testing.T) {
	t.Run("nil OnMessage", func(t *testing.T) {
		cl := &Client{}
		assert.PanicsWithValue(t, "reqx: nil OnMessage handler", func() {
			_, _ = cl.Subscribe(context.Background(), Stream{URL: "/notice/stream"})
		})
	})

	t.Run("unauthorized", func(t *testing.T) {
		base, err := url.Parse(adminServer.URL + "/api")
		require.NoError(t, err)
		core, logs := observer.New(zap.WarnLevel)
		cl := &Client{
			BaseURL: base,
			Logger:  zap.New(core),
			Interceptors: Interceptors{
				Request: func(*request.Plan) (*request.Plan, error) {
					return nil, errors.New("session expired")
				},
			},
		}
		rec := &messageRecorder{}

		sub, err := cl.Subscribe(context.Background(), Stream{
			URL:       "/notice/stream",
			OnMessage: rec.onMessage,
			OnError:   rec.onError,
		})
		require.NoError(t, err)
		waitDone(t, sub)

		assert.Empty(t, rec.messages)
		require.Len(t, rec.errs, 1)
		var statusErr *sse.StatusError
		require.ErrorAs(t, rec.errs[0], &statusErr)
		assert.Equal(t, 401, statusErr.StatusCode)
		assert.Same(t, rec.errs[0], sub.Err())
		assert.Equal(t, 1, logs.FilterMessage("Failed to get stream token").Len())
	})

	t.Run("wrong content type", func(t *testing.T) {
		base, err := url.Parse(adminServer.URL + "/api")
		require.NoError(t, err)
		core, logs := observer.New(zap.ErrorLevel)
		cl := &Client{BaseURL: base, Logger: zap.New(core)}

		sub, err := cl.Subscribe(context.Background(), Stream{
			URL:       "/system/user/page",
			Query:     url.Values{"page": {"1"}},
			OnMessage: func(sse.Message) { t.Error("no message expected") },
		})
		require.NoError(t, err)
		waitDone(t, sub)

		var ctErr *sse.ContentTypeError
		require.ErrorAs(t, sub.Err(), &ctErr)
		assert.Equal(t, "application/json", ctErr.ContentType)
		assert.Equal(t, 1, logs.FilterMessage("Stream error").Len())
	})
}

func testSSEClose(t *testing.T) {
	cl := adminClient(t)
	got := make(chan sse.Message, 8)
	var errs []error
	var mu sync.Mutex

	stop := cl.SSE(context.Background(), Stream{
		URL:       "/notice/stream",
		Query:     url.Values{"hold": {"1"}},
		OnMessage: func(m sse.Message) { got <- m },
		OnError: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			errs = append(errs, err)
		},
	})
	for i := 0; i < 3; i++ {
		select {
		case <-got:
		case <-time.After(5 * time.Second):
			t.Fatal("message not received")
		}
	}

	stop()
	stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, errs, "closing a stream is not an error")
}

func testSSEBuildError(t *testing.T) {
	t.Run("reported to OnError", func(t *testing.T) {
		cl := &Client{}
		var got error
		stop := cl.SSE(context.Background(), Stream{
			URL:       ":::",
			OnMessage: func(sse.Message) {},
			OnError:   func(err error) { got = err },
		})
		require.NotNil(t, stop)
		assert.Error(t, got)
		stop()
	})

	t.Run("logged", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		cl := &Client{Logger: zap.New(core)}
		stop := cl.SSE(context.Background(), Stream{
			Method:    "POST",
			URL:       "/chat/completions",
			Body:      make(chan int),
			OnMessage: func(sse.Message) {},
		})
		stop()
		entries := logs.FilterMessage("Stream error").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "/chat/completions", entries[0].ContextMap()["url"])
	})
}
