// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"encoding/json"
	"fmt"
	"io"
)

// BodyBytes converts a generic body parameter to a byte slice for use
// as a request plan body.
//
// The conversion logic is:
//
// • nil gives a nil byte slice;
//
// • a []byte is returned unchanged, and a string is converted;
//
// • an io.Reader or io.ReadCloser is read to the end (and closed, if
// it is a Closer);
//
// • a json.RawMessage is returned unchanged;
//
// • any other value is encoded with encoding/json. This is how request
// payloads such as form structs and maps are normally passed.
func BodyBytes(body interface{}) ([]byte, error) {
	b, _, err := bodyBytes(body)
	return b, err
}

func bodyBytes(body interface{}) ([]byte, bool, error) {
	switch x := body.(type) {
	case nil:
		return nil, false, nil
	case string:
		return []byte(x), false, nil
	case []byte:
		return x, false, nil
	case json.RawMessage:
		return x, true, nil
	case io.ReadCloser:
		b, err := io.ReadAll(x)
		if err != nil {
			return nil, false, err
		}
		if err = x.Close(); err != nil {
			return nil, false, err
		}
		return b, false, nil
	case io.Reader:
		return bodyBytes(io.NopCloser(x))
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, false, fmt.Errorf("reqx/request: encoding body: %w", err)
		}
		return b, true, nil
	}
}
