// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sse

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrNotJSON is returned by Message.Decode when the message data is not
// valid JSON.
var ErrNotJSON = errors.New("reqx/sse: message data is not JSON")

// A Message is one message received on a stream.
//
// Data is the raw text of the message. If Data is valid JSON, JSON
// holds the same bytes and the message is delivered as JSON; otherwise
// JSON is nil and the raw text is the message.
type Message struct {
	// Event is the event type. In event-stream mode it defaults to
	// "message". Chunked streams have no event types, so it is empty.
	Event string

	// ID is the last event ID seen on the stream, if any.
	ID string

	// Data is the raw message data.
	Data string

	// JSON is Data when Data is valid JSON, and nil otherwise.
	JSON json.RawMessage

	// Retry is the reconnection time requested by the server with the
	// most recent retry field, or zero.
	Retry time.Duration
}

func newMessage(event, id, data string, retry time.Duration) Message {
	m := Message{Event: event, ID: id, Data: data, Retry: retry}
	if json.Valid([]byte(data)) {
		m.JSON = json.RawMessage(data)
	}
	return m
}

// IsJSON reports whether the message data is valid JSON.
func (m Message) IsJSON() bool {
	return m.JSON != nil
}

// Decode decodes the JSON message data into v. It returns ErrNotJSON
// if the data is not JSON.
func (m Message) Decode(v interface{}) error {
	if m.JSON == nil {
		return ErrNotJSON
	}
	return json.Unmarshal(m.JSON, v)
}

// Value returns the decoded JSON value of the message, as produced by
// encoding/json for an interface{} target, or the raw Data string if
// the data is not JSON.
func (m Message) Value() interface{} {
	if m.JSON == nil {
		return m.Data
	}
	var v interface{}
	if err := json.Unmarshal(m.JSON, &v); err != nil {
		return m.Data
	}
	return v
}

func (m Message) String() string {
	var b strings.Builder
	if m.Event != "" {
		b.WriteString(m.Event)
		b.WriteString(": ")
	}
	b.WriteString(m.Data)
	return b.String()
}
