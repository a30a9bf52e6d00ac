// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	urlpkg "net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
)

var (
	template, _ = http.NewRequest("GET", "", nil)
)

const (
	nilCtxMsg = "reqx/request: nil context"
)

// A Plan describes one logical HTTP request for execution by a client.
//
// Plan mirrors the client-side fields of http.Request, with a
// pre-buffered Body and a separate Query holding the request
// parameters. The URL may be relative, in which case the client
// resolves it against its base URL when the request is sent.
//
// The method, the URL as given, the query parameters from both the URL
// and Query, and the Body together determine the request fingerprint
// used for duplicate detection.
type Plan struct {
	// Method specifies the HTTP method (GET, POST, PUT, etc.).
	// An empty string means GET.
	Method string

	// URL specifies the URL to access. It may be relative.
	URL *urlpkg.URL

	// Query holds request parameters added to the URL's own query
	// string when the request is sent.
	Query urlpkg.Values

	// Header contains the request header fields to be sent. Headers
	// set here take precedence over the client's default headers.
	Header http.Header

	// Body is the pre-buffered request body. A nil or empty body means
	// no body is sent.
	Body []byte

	// Close stipulates whether to close the connection after sending
	// the request and reading the response.
	Close bool

	// Host optionally overrides the Host header to send. If empty, the
	// host of the resolved URL is used.
	Host string

	ctx context.Context
}

// NewPlan wraps NewPlanWithContext using the background context.
func NewPlan(method, url string, body interface{}) (*Plan, error) {
	return NewPlanWithContext(context.Background(), method, url, body)
}

// NewPlanWithContext returns a new Plan given a method, URL, and
// optional body.
//
// Parameter body may be nil (empty body), a string, []byte, io.Reader,
// or io.ReadCloser, which are buffered as-is, or any other value, which
// is encoded as JSON. When the body is JSON-encoded, the Content-Type
// header is set to application/json.
func NewPlanWithContext(ctx context.Context, method, url string, body interface{}) (*Plan, error) {
	if ctx == nil {
		return nil, errors.New(nilCtxMsg)
	}
	if method == "" {
		method = "GET"
	}
	if !validMethod(method) {
		return nil, fmt.Errorf("reqx/request: invalid method %q", method)
	}
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, err
	}
	u.Host = removeEmptyPort(u.Host)
	b, isJSON, err := bodyBytes(body)
	if err != nil {
		return nil, err
	}
	p := &Plan{
		ctx:    ctx,
		Method: method,
		URL:    u,
		Query:  make(urlpkg.Values),
		Header: make(http.Header),
		Body:   b,
		Host:   u.Host,
	}
	if isJSON {
		p.Header.Set("Content-Type", "application/json")
	}
	return p, nil
}

// Context returns the plan's context, which is never nil. To change
// the context, use WithContext.
func (p *Plan) Context() context.Context {
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}

// WithContext returns a shallow copy of p with its context changed to
// ctx, which must be non-nil.
//
// The context governs the whole execution of the plan: every attempt,
// reading the response body, and any retry wait.
func (p *Plan) WithContext(ctx context.Context) *Plan {
	if ctx == nil {
		panic(nilCtxMsg)
	}
	p2 := new(Plan)
	*p2 = *p
	p2.ctx = ctx
	return p2
}

// SetBearer sets the plan's Authorization header to the bearer token.
// An empty token removes the header.
func (p *Plan) SetBearer(token string) {
	if p.Header == nil {
		p.Header = make(http.Header)
	}
	if token == "" {
		p.Header.Del("Authorization")
		return
	}
	p.Header.Set("Authorization", "Bearer "+token)
}

// Bearer returns the bearer token from the plan's Authorization header,
// or the empty string if there is none.
func (p *Plan) Bearer() string {
	const prefix = "Bearer "
	h := p.Header.Get("Authorization")
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// ResolveURL returns the absolute URL the plan targets: the plan URL
// joined onto base (unless the plan URL is already absolute), with the
// plan's Query merged into the query string. Joining follows the
// base-path-preserving convention, so base "http://h/api" and plan URL
// "/users" give "http://h/api/users".
func (p *Plan) ResolveURL(base *urlpkg.URL) *urlpkg.URL {
	u := p.URL
	if u == nil {
		u = &urlpkg.URL{}
	}
	resolved := *u
	if base != nil && !u.IsAbs() && u.Host == "" {
		resolved = *base
		ref := strings.TrimLeft(u.Path, "/")
		if ref != "" {
			resolved.Path = strings.TrimRight(base.Path, "/") + "/" + ref
		}
		resolved.RawPath = ""
		resolved.RawQuery = u.RawQuery
		resolved.Fragment = u.Fragment
	}
	if len(p.Query) > 0 {
		q := resolved.Query()
		for k, vs := range p.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		resolved.RawQuery = q.Encode()
	}
	return &resolved
}

// ToRequest creates the HTTP request for one attempt at executing the
// plan. The request URL is resolved against base (which may be nil),
// the header is a copy of the plan header, and the request context is
// ctx, which may not be nil.
func (p *Plan) ToRequest(ctx context.Context, base *urlpkg.URL) *http.Request {
	r := template.WithContext(ctx)
	r.Method = p.Method
	r.URL = p.ResolveURL(base)
	r.Header = p.Header.Clone()
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	if len(p.Body) > 0 {
		body := p.Body
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		r.ContentLength = int64(len(body))
	}
	r.Close = p.Close
	r.Host = p.Host
	return r
}

func validMethod(method string) bool {
	return strings.IndexFunc(method, isNotToken) == -1
}

func isNotToken(r rune) bool {
	return !httpguts.IsTokenRune(r)
}

// hasPort is lifted verbatim from net/http/http.go
//
// Given a string of the form "host", "host:port", or "[ipv6::address]:port",
// return true if the string includes a port.
func hasPort(s string) bool { return strings.LastIndex(s, ":") > strings.LastIndex(s, "]") }

// removeEmptyPort is lifted verbatim from net/http/http.go
//
// removeEmptyPort strips the empty port in ":port" to ""
// as mandated by RFC 3986 Section 6.2.3.
func removeEmptyPort(host string) string {
	if hasPort(host) {
		return strings.TrimSuffix(host, ":")
	}
	return host
}
