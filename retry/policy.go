// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"time"

	"github.com/gogama/reqx/request"
)

// A Policy decides after every failed attempt whether to retry and, if
// so, how long to wait first.
//
// Implementations of Policy must be safe for concurrent use by multiple
// goroutines. Most policies are assembled with NewPolicy from a Decider
// and a Waiter.
type Policy interface {
	Decider
	Waiter
}

// DefaultPolicy combines DefaultDecider with a Retry-After aware
// DefaultWaiter. Clients do not retry unless given a policy; set
// Client.RetryPolicy to DefaultPolicy to opt in.
var DefaultPolicy Policy = policy{DefaultDecider, RetryAfter(DefaultWaiter)}

// Never is a policy that never retries. It is the policy a client
// uses when none is set.
var Never Policy = policy{Times(0), NewFixedWaiter(0)}

type policy struct {
	decider Decider
	waiter  Waiter
}

// NewPolicy composes a Decider and a Waiter into a retry Policy.
func NewPolicy(d Decider, w Waiter) Policy {
	if d == nil {
		panic("reqx/retry: nil decider")
	}
	if w == nil {
		panic("reqx/retry: nil waiter")
	}
	return policy{decider: d, waiter: w}
}

func (p policy) Decide(e *request.Execution) bool {
	return p.decider.Decide(e)
}

func (p policy) Wait(e *request.Execution) time.Duration {
	return p.waiter.Wait(e)
}
