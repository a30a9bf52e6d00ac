// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package sse reads server-sent message streams.

Two framings are supported. ModeEventStream is the text/event-stream
format served to GET requests:

	event: progress
	data: {"done": 3, "total": 10}

ModeChunked is the simpler format streamed back to a POST (or other
method with a body): every line beginning with "data: " is a message,
and other lines are ignored.

In both modes a message whose data is valid JSON is delivered with its
JSON field set; any other data is delivered as raw text.

A Reader pulls messages one at a time:

	r := sse.NewReader(resp.Body, sse.ModeChunked)
	for {
		m, err := r.Next()
		if err == io.EOF {
			break
		}
		...
	}

Open runs a stream on its own goroutine and pushes messages to
callbacks until the returned Subscription is closed:

	sub := sse.Open(ctx, sse.ModeEventStream, dial, sse.Handlers{
		OnMessage: func(m sse.Message) { ... },
	})
	defer sub.Close()
*/
package sse
