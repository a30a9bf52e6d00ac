// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package auth attaches bearer tokens to requests.

Install Bearer as the request interceptor of a client. It asks a
TokenSource for the current token before each execution and refuses to
send a JSON Web Token which has already expired:

	cl := &reqx.Client{
		Interceptors: reqx.Interceptors{
			Request: auth.Bearer(auth.StaticToken(token)),
		},
	}

FileToken reads the token from a file and reloads it whenever the file
changes, which suits tokens written by a separate login process.
*/
package auth
