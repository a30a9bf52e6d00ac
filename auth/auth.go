// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gogama/reqx"
	"github.com/gogama/reqx/request"
	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned by the Bearer interceptor when the token
// is a JSON Web Token whose expiry time has passed.
var ErrTokenExpired = errors.New("reqx/auth: token expired")

// A TokenSource supplies the bearer token for a request. An empty
// token means the request is sent without credentials.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// The TokenSourceFunc type is an adapter to allow the use of ordinary
// functions as token sources.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token calls f(ctx).
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken is a TokenSource which always returns the same token.
type StaticToken string

// Token returns t.
func (t StaticToken) Token(_ context.Context) (string, error) {
	return string(t), nil
}

// Bearer returns a request interceptor which sets the Authorization
// header of each plan to the token supplied by src. A plan which
// already carries a bearer token is left alone, as is every plan when
// the token is empty.
//
// The interceptor fails with ErrTokenExpired, without sending the
// request, if the token is a JSON Web Token that has expired.
func Bearer(src TokenSource) reqx.RequestInterceptor {
	if src == nil {
		panic("reqx/auth: nil token source")
	}
	return func(p *request.Plan) (*request.Plan, error) {
		if p.Bearer() != "" {
			return p, nil
		}
		token, err := src.Token(p.Context())
		if err != nil {
			return nil, err
		}
		if token == "" {
			return p, nil
		}
		if Expired(token, time.Now(), 0) {
			return nil, ErrTokenExpired
		}
		q := p.WithContext(p.Context())
		q.Header = p.Header.Clone()
		q.SetBearer(token)
		return q, nil
	}
}

// Expired reports whether token is a JSON Web Token whose exp claim is
// at or before now minus leeway. The signature is not verified; that
// is the server's job. Tokens which are not JWTs, and JWTs without an
// exp claim, never expire.
func Expired(token string, now time.Time, leeway time.Duration) bool {
	if strings.Count(token, ".") != 2 {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time.Add(leeway))
}
