// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sse

// Typed adapts a callback taking values of type T into an OnMessage
// handler. A JSON message that decodes into T is passed to onValue.
// Any other message, including raw text, is passed to onRaw, if it is
// not nil, and dropped otherwise.
func Typed[T any](onValue func(T), onRaw func(Message)) func(Message) {
	if onValue == nil {
		panic("reqx/sse: nil typed handler")
	}
	return func(m Message) {
		var v T
		if err := m.Decode(&v); err == nil {
			onValue(v)
		} else if onRaw != nil {
			onRaw(m)
		}
	}
}
