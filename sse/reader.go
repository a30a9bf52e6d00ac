// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// MaxLineSize is the longest line a Reader accepts.
const MaxLineSize = 1 << 20

var (
	// ErrLineTooLong is returned by Reader.Next when a line exceeds
	// MaxLineSize.
	ErrLineTooLong = errors.New("reqx/sse: line too long")

	// ErrStopped is returned by Reader.Next once the reader's stop
	// function reports true.
	ErrStopped = errors.New("reqx/sse: reader stopped")
)

const (
	chunkedPrefix = "data: "
	defaultEvent  = "message"
	readSize      = 4096
)

// A Reader reads messages from a stream body, one per call to Next.
//
// The body may arrive in chunks split at arbitrary byte boundaries,
// including inside a line or inside a multi-byte character; a line is
// only interpreted once its terminating newline has arrived.
type Reader struct {
	mode    Mode
	scanner *bufio.Scanner
	stopped func() bool

	// event-stream record state
	event   string
	data    strings.Builder
	hasData bool
	lastID  string
	retry   time.Duration
	first   bool
}

// NewReader returns a Reader reading messages framed according to mode
// from r.
func NewReader(r io.Reader, mode Mode) *Reader {
	return newReader(r, mode, nil)
}

func newReader(r io.Reader, mode Mode, stopped func() bool) *Reader {
	if stopped == nil {
		stopped = func() bool { return false }
	}
	sr := &stopReader{r: r, stopped: stopped}
	s := bufio.NewScanner(sr)
	s.Buffer(make([]byte, 0, readSize), MaxLineSize)
	s.Split(scanTerminatedLines)
	return &Reader{
		mode:    mode,
		scanner: s,
		stopped: stopped,
		first:   true,
	}
}

// Next returns the next message. It returns io.EOF when the stream
// ends.
//
// A line not terminated by a newline when the stream ends is
// discarded, so a truncated "data: " line never becomes a message. In
// event-stream mode a record not terminated by a blank line is
// discarded as well.
func (r *Reader) Next() (Message, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if r.first {
			line = strings.TrimPrefix(line, "\uFEFF")
			r.first = false
		}
		var m Message
		var ok bool
		if r.mode == ModeChunked {
			m, ok = r.chunkedLine(line)
		} else {
			m, ok = r.eventStreamLine(line)
		}
		if ok {
			return m, nil
		}
	}

	err := r.scanner.Err()
	switch {
	case err == nil:
		return Message{}, io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		return Message{}, ErrLineTooLong
	default:
		return Message{}, err
	}
}

// scanTerminatedLines is bufio.ScanLines without the final unterminated
// line.
func scanTerminatedLines(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, dropCR(data[:i]), nil
	}
	if atEOF {
		return len(data), nil, nil
	}
	return 0, nil, nil
}

func dropCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}

func (r *Reader) chunkedLine(line string) (Message, bool) {
	if !strings.HasPrefix(line, chunkedPrefix) {
		return Message{}, false
	}
	return newMessage("", "", line[len(chunkedPrefix):], 0), true
}

func (r *Reader) eventStreamLine(line string) (Message, bool) {
	if line == "" {
		return r.dispatch()
	}
	if line[0] == ':' {
		return Message{}, false
	}

	field, value := line, ""
	if i := strings.IndexByte(line, ':'); i >= 0 {
		field, value = line[:i], line[i+1:]
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "event":
		r.event = value
	case "data":
		if r.hasData {
			r.data.WriteByte('\n')
		}
		r.data.WriteString(value)
		r.hasData = true
	case "id":
		if !strings.ContainsRune(value, 0) {
			r.lastID = value
		}
	case "retry":
		if ms, err := strconv.ParseUint(value, 10, 31); err == nil {
			r.retry = time.Duration(ms) * time.Millisecond
		}
	}
	return Message{}, false
}

func (r *Reader) dispatch() (Message, bool) {
	event, data, hasData := r.event, r.data.String(), r.hasData
	r.event = ""
	r.data.Reset()
	r.hasData = false
	if !hasData {
		return Message{}, false
	}
	if event == "" {
		event = defaultEvent
	}
	return newMessage(event, r.lastID, data, r.retry), true
}

type stopReader struct {
	r       io.Reader
	stopped func() bool
}

func (s *stopReader) Read(p []byte) (int, error) {
	if s.stopped() {
		return 0, ErrStopped
	}
	return s.r.Read(p)
}
