// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package fingerprint

import (
	"bytes"
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/gogama/reqx/request"
)

// Separators between the parts of a fingerprint.
const (
	URLSep   = '^'
	QuerySep = '&'
	BodySep  = '#'
)

// Of returns the fingerprint of a request plan. The URL contributes as
// given, before any base URL is applied, so plans that differ only in
// the client that executes them share a fingerprint.
//
// Parameters in the URL's own query string count as query parameters,
// ahead of those in p.Query, so "/a?x=1" and "/a" with x=1 in p.Query
// share a fingerprint.
func Of(p *request.Plan) string {
	if p.URL == nil {
		return Compute(p.Method, "", p.Query, p.Body)
	}
	if p.URL.RawQuery == "" {
		return Compute(p.Method, p.URL.String(), p.Query, p.Body)
	}
	query := p.URL.Query()
	for k, vs := range p.Query {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	u := *p.URL
	u.RawQuery = ""
	u.ForceQuery = false
	return Compute(p.Method, u.String(), query, p.Body)
}

// Compute returns the fingerprint of a request with the given method,
// URL, query parameters and body.
//
// The fingerprint is the lowercase method, then URLSep and the URL
// verbatim, then QuerySep and key=value for every query value, then,
// when the body is a JSON object, BodySep and key=value for every
// top-level member. Query keys and body keys are sorted, so logically
// equal inputs always give the same fingerprint. String members
// contribute their unquoted text, other members their compact JSON.
//
// A body delimited by braces which is not valid JSON contributes
// BodySep followed by the whole trimmed body. Any other body, such as
// an array or plain text, does not contribute.
func Compute(method, rawURL string, query url.Values, body []byte) string {
	var b strings.Builder
	if method == "" {
		method = "get"
	}
	b.WriteString(strings.ToLower(method))
	b.WriteByte(URLSep)
	b.WriteString(rawURL)

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range query[k] {
			b.WriteByte(QuerySep)
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}

	writeBody(&b, body)
	return b.String()
}

func writeBody(b *strings.Builder, body []byte) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) < 2 || trimmed[0] != '{' || trimmed[len(trimmed)-1] != '}' {
		return
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &members); err != nil {
		b.WriteByte(BodySep)
		b.Write(trimmed)
		return
	}

	keys := make([]string, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(BodySep)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(memberText(members[k]))
	}
}

func memberText(raw json.RawMessage) string {
	var s string
	if len(raw) > 0 && raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
