// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package reqx provides an HTTP client for JSON APIs which cancels
duplicate in-flight requests, together with server-sent stream support.

Create a Client to begin making requests:

	base, _ := url.Parse("https://admin.example.com/api")
	client := &reqx.Client{
		BaseURL: base,
		Interceptors: reqx.Interceptors{
			Request: auth.Bearer(auth.StaticToken(token)),
		},
	}
	e, err := client.Get(ctx, "/system/user/page", reqx.WithParam("page", "1"))
	...
	e, err = client.Post(ctx, "/system/user/create", user)

Every request has a fingerprint made of its method, URL, parameters and
JSON body. Issuing a request whose fingerprint matches a request still
in flight cancels the older request:

	go client.Get(ctx, "/log/page", reqx.WithParam("page", "1")) // canceled
	e, err := client.Get(ctx, "/log/page", reqx.WithParam("page", "1"))

The canceled request's error matches context.Canceled and
inflight.ErrSuperseded, so callers can tell it apart from a failure:

	if errors.Is(err, context.Canceled) {
		return // a newer request took over
	}

In-flight requests can also be canceled explicitly, by fingerprint with
CancelRequest or all at once with CancelAllRequest.

API responses wrapped in the usual code/message/data envelope decode
with Decode:

	users, err := reqx.Decode[[]User](client.Get(ctx, "/system/user/list"))

To receive server-sent messages, open a stream. The closer returned by
SSE ends it:

	stop := client.SSE(ctx, reqx.Stream{
		URL:       "/notice/stream",
		OnMessage: func(m sse.Message) { ... },
	})
	defer stop()

For control over the client's attempt timeouts and retries, use the
timeout and retry packages. To hook into the details of request
execution, install a handler into the appropriate handler chain:

	handlers := &reqx.HandlerGroup{}
	handlers.PushBack(reqx.AfterSupersede, reqx.HandlerFunc(
		func(_ reqx.Event, e *request.Execution) {
			log.Printf("superseded %s", e.Fingerprint)
		}))
	client.Handlers = handlers

Package metrics provides ready-made handlers exporting Prometheus
metrics.
*/
package reqx
