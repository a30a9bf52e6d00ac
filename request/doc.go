// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package request contains the core types Plan (describes a logical HTTP
request) and Execution (describes the execution of a Plan).

A Plan looks like a stripped-down client-side http.Request with a
pre-buffered body and a separate set of query parameters:

	p, err := request.NewPlanWithContext(ctx, "GET", "/system/user/page", nil)
	...
	p.Query.Set("page", "1")
	e, err := client.Do(p)

A body that is not a string, []byte or reader is encoded as JSON, which
is how CRUD payloads are normally sent:

	p, err := request.NewPlan("POST", "/system/user/create", user)

The URL may be relative; the client resolves it against its base URL
when each attempt is made. The method, the URL as given, the query and
the body form the request fingerprint, so two plans built from equal
inputs are duplicates of each other.

An Execution is both the result of running a plan and the state handed
to interceptors, event handlers and policies while it runs. It is
returned even when the request fails, with Err set; Canceled and
Superseded tell a deliberate cancellation apart from a real failure.
*/
package request
