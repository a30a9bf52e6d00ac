// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/gogama/reqx/request"
)

// CodeOK is the envelope code of a successful response.
const CodeOK Code = 200

// ErrEmptyBody is returned when decoding an execution with an empty
// response body.
var ErrEmptyBody = errors.New("reqx: empty response body")

// A StatusError reports an execution whose final HTTP status code was
// rejected by the client's ValidateStatus function.
type StatusError struct {
	StatusCode int
	Status     string
	Method     string
	URL        string
	// Body is the response body, which often explains the failure.
	Body []byte
}

func newStatusError(e *request.Execution) *StatusError {
	err := &StatusError{
		StatusCode: e.StatusCode(),
		Method:     e.Plan.Method,
		Body:       e.Body,
	}
	if e.Response != nil {
		err.Status = e.Response.Status
	}
	if e.Request != nil {
		err.URL = e.Request.URL.String()
	}
	return err
}

func (err *StatusError) Error() string {
	status := err.Status
	if status == "" {
		status = strconv.Itoa(err.StatusCode)
	}
	return fmt.Sprintf("reqx: %s %s: unexpected status %s", err.Method, err.URL, status)
}

// A Code is the status code of a response envelope. It decodes from
// either a JSON number or a JSON string holding a number.
type Code int

// UnmarshalJSON implements json.Unmarshaler.
func (c *Code) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("reqx: invalid envelope code %s", b)
	}
	*c = Code(n)
	return nil
}

// A Result is the response envelope of the API: a status code, a
// human-readable message and the payload.
type Result[T any] struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// OK reports whether the envelope code signals success.
func (r *Result[T]) OK() bool {
	return r.Code == CodeOK
}

// A ServerError reports a response envelope whose code is not CodeOK.
type ServerError struct {
	Code    Code
	Message string
}

func (err *ServerError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("reqx: server error code %d", err.Code)
	}
	return fmt.Sprintf("reqx: server error code %d: %s", err.Code, err.Message)
}

// DecodeResult decodes the response envelope of an execution. It
// returns err unchanged if it is not nil, and a *ServerError together
// with the decoded envelope if the envelope code is not CodeOK.
//
// The arguments match the results of Client.Do and its helpers, so
// calls can be chained:
//
//	r, err := reqx.DecodeResult[User](client.Get(ctx, "/system/user/detail", reqx.WithParam("id", id)))
func DecodeResult[T any](e *request.Execution, err error) (*Result[T], error) {
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(e.Body)) == 0 {
		return nil, ErrEmptyBody
	}
	var r Result[T]
	if err = json.Unmarshal(e.Body, &r); err != nil {
		return nil, fmt.Errorf("reqx: decoding response: %w", err)
	}
	if !r.OK() {
		return &r, &ServerError{Code: r.Code, Message: r.Message}
	}
	return &r, nil
}

// Decode decodes the payload of the response envelope of an execution.
// It behaves like DecodeResult but returns only the payload.
//
//	users, err := reqx.Decode[[]User](client.Get(ctx, "/system/user/list"))
func Decode[T any](e *request.Execution, err error) (T, error) {
	var zero T
	r, err := DecodeResult[T](e, err)
	if err != nil {
		return zero, err
	}
	return r.Data, nil
}

// DecodeKey decodes a member of the top-level JSON object of the
// response body, for endpoints not wrapped in the usual envelope. An
// empty key decodes the whole body. A missing member leaves the zero
// value.
func DecodeKey[T any](e *request.Execution, key string) (T, error) {
	var v T
	if e.Err != nil {
		return v, e.Err
	}
	if len(bytes.TrimSpace(e.Body)) == 0 {
		return v, ErrEmptyBody
	}
	if key == "" {
		if err := json.Unmarshal(e.Body, &v); err != nil {
			return v, fmt.Errorf("reqx: decoding response: %w", err)
		}
		return v, nil
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(e.Body, &members); err != nil {
		return v, fmt.Errorf("reqx: decoding response: %w", err)
	}
	raw, ok := members[key]
	if !ok {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("reqx: decoding response member %q: %w", key, err)
	}
	return v, nil
}
