// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"io"
	"net/http"
	"net/url"

	"github.com/gogama/reqx"
	"github.com/gogama/reqx/auth"
	"github.com/gogama/reqx/retry"
	"github.com/gogama/reqx/timeout"
	"go.uber.org/zap"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewClient builds a client from c. The returned closer releases the
// token file watcher, if any, and is never nil. A nil logger logs
// nothing.
func (c *Config) NewClient(logger *zap.Logger) (*reqx.Client, io.Closer, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cl := &reqx.Client{
		TimeoutPolicy:   timeout.Fixed(c.Timeout.Std()),
		RetryPolicy:     c.retryPolicy(),
		TokenQueryParam: c.Auth.TokenQueryParam,
		Logger:          logger,
	}
	if c.Timeout == 0 {
		cl.TimeoutPolicy = timeout.Infinite
	}

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		cl.BaseURL = u
	}

	if len(c.Headers) > 0 {
		cl.Header = make(http.Header, len(c.Headers))
		for k, v := range c.Headers {
			cl.Header.Set(k, v)
		}
	}

	var closer io.Closer = nopCloser{}
	switch {
	case c.Auth.Token != "":
		cl.Interceptors.Request = auth.Bearer(auth.StaticToken(c.Auth.Token))
	case c.Auth.TokenFile != "":
		f, err := auth.NewFileToken(c.Auth.TokenFile, logger)
		if err != nil {
			return nil, nil, err
		}
		cl.Interceptors.Request = auth.Bearer(f)
		closer = f
	}

	return cl, closer, nil
}

func (c *Config) retryPolicy() retry.Policy {
	r := c.Retry
	if r.Times == 0 {
		return retry.Never
	}
	when := retry.TransientErr
	if len(r.StatusCodes) > 0 {
		when = when.Or(retry.StatusCode(r.StatusCodes...))
	}
	d := retry.Times(r.Times).And(when)
	if r.IdempotentOnly {
		d = d.And(retry.Idempotent)
	}
	return retry.NewPolicy(d, retry.RetryAfter(retry.NewExpWaiter(r.Wait.Std(), r.MaxWait.Std(), true)))
}
