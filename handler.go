// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"github.com/gogama/reqx/request"
)

// A HandlerGroup is a group of event handler chains which can be
// installed in a Client. Install all handlers before the group is
// first used; a HandlerGroup is not safe for concurrent modification.
type HandlerGroup struct {
	handlers [][]Handler
}

// PushBack adds an event handler to the back of the handler chain for
// an event.
func (g *HandlerGroup) PushBack(evt Event, h Handler) {
	if h == nil {
		panic("reqx: nil handler")
	}
	if evt < 0 || int(evt) >= numEvents {
		panic("reqx: invalid event")
	}

	if g.handlers == nil {
		g.handlers = make([][]Handler, numEvents)
	}

	g.handlers[evt] = append(g.handlers[evt], h)
}

// Len returns the number of handlers in the chain for an event.
func (g *HandlerGroup) Len(evt Event) int {
	if g == nil || int(evt) >= len(g.handlers) || evt < 0 {
		return 0
	}
	return len(g.handlers[evt])
}

func (g *HandlerGroup) run(evt Event, e *request.Execution) {
	i := int(evt)
	if i < len(g.handlers) {
		for _, h := range g.handlers[i] {
			h.Handle(evt, e)
		}
	}
}

// A Handler handles the occurrence of an event during a request
// execution.
type Handler interface {
	Handle(Event, *request.Execution)
}

// The HandlerFunc type is an adapter to allow the use of ordinary
// functions as event handlers.
type HandlerFunc func(Event, *request.Execution)

// Handle calls f(evt, e).
func (f HandlerFunc) Handle(evt Event, e *request.Execution) {
	f(evt, e)
}
