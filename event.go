// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

// An Event identifies a point in a request execution at which installed
// handlers run. Install handlers in a Client to extend it with custom
// functionality such as metrics or tracing.
type Event int

const (
	// BeforeExecutionStart occurs before the execution starts. Only the
	// plan and ID of the execution are set.
	BeforeExecutionStart Event = iota
	// AfterSupersede occurs when the execution has been registered as
	// in flight and, in doing so, canceled an older execution with the
	// same fingerprint. The execution's Fingerprint is set.
	AfterSupersede
	// BeforeAttempt occurs before each HTTP request attempt. The
	// execution's Request field holds the request that will be sent
	// once all BeforeAttempt handlers have run, and handlers may modify
	// it. The request header is a copy of the plan header, but other
	// reference fields such as URL should be cloned before changing
	// them.
	BeforeAttempt
	// BeforeReadBody occurs after an attempt has received an HTTP
	// response, whatever its status code, and before the response body
	// is read.
	BeforeReadBody
	// AfterAttemptTimeout occurs after an attempt failed with a timeout.
	// The execution's AttemptTimeouts counter has been incremented.
	AfterAttemptTimeout
	// AfterAttempt occurs after every attempt, successful or not, and
	// before the retry policy is consulted.
	AfterAttempt
	// AfterPlanTimeout occurs when the deadline of the plan context,
	// rather than an attempt timeout, ended the execution.
	AfterPlanTimeout
	// AfterExecutionEnd occurs after the execution ends, once the
	// response interceptors have run. The execution's End time and its
	// final Err are set. The execution is still registered as in flight
	// until all AfterExecutionEnd handlers have returned. It also
	// occurs while a panic raised during the execution unwinds.
	AfterExecutionEnd

	eventSentinel

	numEvents = int(eventSentinel)
)

var eventNames = []string{
	"BeforeExecutionStart",
	"AfterSupersede",
	"BeforeAttempt",
	"BeforeReadBody",
	"AfterAttemptTimeout",
	"AfterAttempt",
	"AfterPlanTimeout",
	"AfterExecutionEnd",
}

// Events returns all events which can occur in a request execution, in
// the order in which they would occur.
func Events() []Event {
	events := make([]Event, numEvents)
	for i := range events {
		events[i] = Event(i)
	}
	return events
}

// Name returns the name of the event.
func (evt Event) Name() string {
	if evt < 0 || int(evt) >= numEvents {
		return "Event(?)"
	}
	return eventNames[evt]
}

// String returns the name of the event.
func (evt Event) String() string {
	return evt.Name()
}
