// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package fingerprint computes the duplicate-detection key of a request.

Two requests with the same method, the same URL, logically equal query
parameters and logically equal JSON object bodies have the same
fingerprint, whatever order their keys were given in:

	fingerprint.Compute("GET", "/system/user/page", url.Values{"page": {"1"}}, nil)
	// get^/system/user/page&page=1

	fingerprint.Compute("POST", "/system/user/create", nil, []byte(`{"name":"ops","id":7}`))
	// post^/system/user/create#id=7#name=ops

The fingerprint is a string meant for equality comparison only. Values
are not escaped, so the format is not parseable and two different
requests may, rarely, share a fingerprint when a value contains one of
the separator characters.
*/
package fingerprint
