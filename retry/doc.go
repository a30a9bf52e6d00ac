// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package retry provides policies deciding whether a failed request
// attempt is retried, and how long to wait before retrying.
//
// A Policy is a Decider plus a Waiter, assembled with NewPolicy:
//
//	decider := retry.Times(3).
//		And(retry.Idempotent).
//		And(retry.StatusCode(502, 503).Or(retry.TransientErr))
//	waiter := retry.RetryAfter(retry.NewExpWaiter(100*time.Millisecond, 2*time.Second, true))
//	client.RetryPolicy = retry.NewPolicy(decider, waiter)
//
// A client with no policy never retries. Whatever the policy, an
// execution that was canceled or superseded by a duplicate request is
// never retried.
package retry
