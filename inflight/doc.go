// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package inflight tracks the requests a client currently has in
// flight, keyed by request fingerprint, so that a duplicate request can
// supersede the one it duplicates and so that outstanding requests can
// be canceled in bulk, for example on logout.
//
//	reg := inflight.New()
//	ctx, cancel := context.WithCancelCause(parent)
//	h := inflight.NewHandle(cancel)
//	if reg.Register(key, h) {
//		// an older request for key was canceled with ErrSuperseded
//	}
//	defer reg.Remove(key, h)
//
// Every cancellation cause used by this package wraps context.Canceled,
// so errors.Is(err, context.Canceled) identifies all of them.
package inflight
