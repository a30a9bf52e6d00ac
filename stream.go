// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gogama/reqx/request"
	"github.com/gogama/reqx/sse"
	"go.uber.org/zap"
)

// A Stream describes a server-sent message stream to subscribe to.
//
// A GET stream (the default) is an event stream: the client requests
// text/event-stream and, because such streams are commonly consumed
// where no headers can be set, moves the bearer token into the query
// parameter named by Client.TokenQueryParam. Any other method makes a
// chunked stream: Body is sent as JSON, the bearer token stays in the
// Authorization header, and every "data: " line of the response is a
// message.
type Stream struct {
	// Method is the HTTP method. Empty means GET.
	Method string
	// URL is the stream URL, resolved against the client's BaseURL.
	URL string
	// Query holds extra request parameters.
	Query url.Values
	// Header holds extra request headers.
	Header http.Header
	// Body is the request body of a chunked stream, encoded as JSON
	// unless it is a string, []byte or reader. It is ignored for GET.
	Body interface{}

	// OnOpen, if not nil, is called once the stream has been accepted.
	OnOpen func(resp *http.Response)
	// OnMessage is called for every message. It is required.
	//
	// For an event stream every dispatched record is delivered, named
	// events included, with Message.Event set to the record's event type
	// ("message" when the record names none). Set Events to narrow this.
	OnMessage func(m sse.Message)
	// Events, if not empty, lists the event types of an event stream
	// that reach OnMessage. Events{"message"} delivers only unnamed
	// records. Events is ignored for chunked streams.
	Events []string
	// OnError, if not nil, receives the error that ended the stream.
	// If nil, the error is logged by the client's Logger.
	OnError func(err error)
}

// SSE opens the stream s and returns a function that closes it. The
// stream runs until it ends, fails, or the closer is called; the
// closer may be called any number of times.
//
// Failing to build the request is reported like any other stream
// error, and the returned closer then does nothing.
func (c *Client) SSE(ctx context.Context, s Stream) func() {
	sub, err := c.Subscribe(ctx, s)
	if err != nil {
		if s.OnError != nil {
			s.OnError(err)
		} else {
			c.logger().Error("Stream error", zap.String("url", s.URL), zap.Error(err))
		}
		return func() {}
	}
	return sub.Close
}

// Subscribe opens the stream s and returns its subscription. It
// returns an error only if the request cannot be built; connection
// failures are reported to s.OnError.
//
// Streams bypass duplicate detection: two subscriptions to the same
// stream are independent, and each must be closed by its owner.
func (c *Client) Subscribe(ctx context.Context, s Stream) (*sse.Subscription, error) {
	if s.OnMessage == nil {
		panic("reqx: nil OnMessage handler")
	}
	mode := sse.ModeFor(s.Method)
	method := s.Method
	if method == "" {
		method = http.MethodGet
	}
	var body interface{}
	if mode == sse.ModeChunked {
		body = s.Body
	}
	p, err := request.NewPlanWithContext(ctx, method, s.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range s.Query {
		for _, v := range vs {
			p.Query.Add(k, v)
		}
	}
	for k, vs := range s.Header {
		p.Header[k] = append([]string(nil), vs...)
	}
	c.setDefaultHeaders(p.Header)

	token := c.streamToken(p)
	if mode == sse.ModeEventStream {
		p.Header.Del("Authorization")
		if token != "" {
			p.Query.Set(c.tokenParam(), token)
		}
		p.Header.Set("Accept", "text/event-stream")
		p.Header.Set("Cache-Control", "no-cache")
	} else {
		p.SetBearer(token)
		p.Header.Set("Content-Type", "application/json")
	}

	onMessage := s.OnMessage
	if mode == sse.ModeEventStream && len(s.Events) > 0 {
		onMessage = eventFilter(s.Events, s.OnMessage)
	}

	doer := c.doer()
	dial := func(ctx context.Context) (*http.Response, error) {
		return doer.Do(p.ToRequest(ctx, c.BaseURL))
	}
	return sse.Open(ctx, mode, dial, sse.Handlers{
		OnOpen:    s.OnOpen,
		OnMessage: onMessage,
		OnError:   s.OnError,
		Logger:    c.logger(),
	}), nil
}

func eventFilter(events []string, next func(sse.Message)) func(sse.Message) {
	want := make(map[string]bool, len(events))
	for _, e := range events {
		want[e] = true
	}
	return func(m sse.Message) {
		if want[m.Event] {
			next(m)
		}
	}
}

// streamToken runs the request interceptor over a copy of p to learn
// the bearer token it would attach. A failing interceptor is logged and
// the stream proceeds without a token.
func (c *Client) streamToken(p *request.Plan) string {
	if token := p.Bearer(); token != "" {
		return token
	}
	if c.Interceptors.Request == nil {
		return ""
	}
	trial := p.WithContext(p.Context())
	trial.Header = p.Header.Clone()
	q, err := c.Interceptors.Request(trial)
	if err != nil {
		c.logger().Warn("Failed to get stream token", zap.Error(err))
		return ""
	}
	if q == nil {
		q = trial
	}
	return q.Bearer()
}

func (c *Client) tokenParam() string {
	if c.TokenQueryParam == "" {
		return "token"
	}
	return c.TokenQueryParam
}
