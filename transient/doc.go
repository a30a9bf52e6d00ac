// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transient sorts request execution errors into categories:
// transient failures worth retrying (timeouts, refused and reset
// connections), cancellations (including supersede by a duplicate
// request), and everything else. Retry deciders and metrics both use
// it.
//
// The package depends only on the standard library.
package transient
