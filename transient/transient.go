// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transient

import (
	"context"
	"errors"
	"syscall"
)

// A Category is the category of an error from a request execution, as
// reported by Categorize.
//
// Not and Canceled are final: repeating the request is not expected to
// help. Timeout, ConnRefused and ConnReset are transient: a later
// attempt has a reasonable chance of success.
type Category int

const (
	// Not indicates a nil error or an error that is neither transient
	// nor a cancellation.
	Not Category = iota
	// Timeout indicates a client-side timeout, reported by the error or
	// one of its wrapped causes having a Timeout method returning true.
	Timeout
	// ConnRefused indicates the error is, or wraps, syscall.ECONNREFUSED.
	// The remote service may be restarting.
	ConnRefused
	// ConnReset indicates the error is, or wraps, syscall.ECONNRESET.
	// The remote side or a load balancer dropped an active connection.
	ConnReset
	// Canceled indicates the error is, or wraps, context.Canceled. In
	// reqx this covers a request superseded by a duplicate as well as
	// explicit cancellation.
	Canceled
)

var categoryNames = []string{
	"not",
	"timeout",
	"conn_refused",
	"conn_reset",
	"canceled",
}

// String returns a short lowercase name for the category, suitable as
// a metric label.
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// Transient reports whether the category is one that a retry may cure.
func (c Category) Transient() bool {
	return c == Timeout || c == ConnRefused || c == ConnReset
}

// Categorize returns the category of err, looking through wrapped
// causes. Cancellation wins over everything else, because a canceled
// request must never be retried even if the cancellation surfaced as a
// connection error.
func Categorize(err error) Category {
	if err == nil {
		return Not
	}

	if errors.Is(err, context.Canceled) {
		return Canceled
	}

	var t timeouter
	if errors.As(err, &t) && t.Timeout() {
		return Timeout
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET:
			return ConnReset
		case syscall.ECONNREFUSED:
			return ConnRefused
		}
	}

	return Not
}

type timeouter interface {
	Timeout() bool
}
