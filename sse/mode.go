// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sse

import "strings"

// A Mode selects how a stream is requested and framed.
type Mode int

const (
	// ModeEventStream requests the stream with GET and frames it
	// according to the text/event-stream format: records of event,
	// data, id and retry fields separated by blank lines. The response
	// must have content type text/event-stream.
	ModeEventStream Mode = iota

	// ModeChunked sends the request with any method and a JSON body,
	// and treats the response as a sequence of lines, each line
	// beginning with "data: " carrying one message. Other lines are
	// ignored.
	ModeChunked
)

// ModeFor returns the mode used for a request with the given method:
// ModeEventStream for GET (or an empty method) and ModeChunked for
// every other method.
func ModeFor(method string) Mode {
	if method == "" || strings.EqualFold(method, "GET") {
		return ModeEventStream
	}
	return ModeChunked
}

func (m Mode) String() string {
	switch m {
	case ModeEventStream:
		return "event-stream"
	case ModeChunked:
		return "chunked"
	default:
		return "unknown"
	}
}
