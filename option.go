// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"context"
	"net/url"

	"github.com/gogama/reqx/request"
)

// A RequestOption adjusts the plan built by one of the method helpers
// such as Client.Get.
type RequestOption func(p *request.Plan)

// WithQuery adds every value of q to the request parameters.
func WithQuery(q url.Values) RequestOption {
	return func(p *request.Plan) {
		for k, vs := range q {
			for _, v := range vs {
				p.Query.Add(k, v)
			}
		}
	}
}

// WithParam adds a single request parameter.
func WithParam(key, value string) RequestOption {
	return func(p *request.Plan) {
		p.Query.Add(key, value)
	}
}

// WithHeader sets a request header, replacing any value the client
// would otherwise send for it.
func WithHeader(key, value string) RequestOption {
	return func(p *request.Plan) {
		p.Header.Set(key, value)
	}
}

// WithBearer sets the bearer token of the request.
func WithBearer(token string) RequestOption {
	return func(p *request.Plan) {
		p.SetBearer(token)
	}
}

// WithContext replaces the plan context. It is useful with the
// package-level helpers when the context is only known to the caller
// of a function that builds the options.
func WithContext(ctx context.Context) RequestOption {
	return func(p *request.Plan) {
		*p = *p.WithContext(ctx)
	}
}

func newPlan(ctx context.Context, method, url string, body interface{}, opts []RequestOption) (*request.Plan, error) {
	p, err := request.NewPlanWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}
