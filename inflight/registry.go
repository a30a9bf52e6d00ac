// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package inflight

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrSuperseded is the cancellation cause given to an in-flight
	// request when a newer request with the same fingerprint is
	// registered. It wraps context.Canceled.
	ErrSuperseded = fmt.Errorf("reqx/inflight: superseded by a newer request: %w", context.Canceled)

	// ErrCanceled is the cancellation cause given to an in-flight
	// request canceled explicitly through Registry.Cancel or
	// Registry.CancelAll. It wraps context.Canceled.
	ErrCanceled = fmt.Errorf("reqx/inflight: request canceled: %w", context.Canceled)
)

// A Handle is the cancellation handle of one in-flight request.
//
// The zero value is not usable; create handles with NewHandle.
type Handle struct {
	cancel func(cause error)
	once   sync.Once
}

// NewHandle returns a handle whose Cancel method invokes cancel. A
// context.CancelCauseFunc is the usual argument.
func NewHandle(cancel func(cause error)) *Handle {
	if cancel == nil {
		panic("reqx/inflight: nil cancel func")
	}
	return &Handle{cancel: cancel}
}

// Cancel invokes the handle's cancel function with the given cause.
// Only the first call has any effect. Cancel never blocks waiting for
// the request to acknowledge the cancellation.
func (h *Handle) Cancel(cause error) {
	h.once.Do(func() {
		h.cancel(cause)
	})
}

// A Registry maps request fingerprints to the cancellation handles of
// the requests currently in flight. It holds at most one handle per
// fingerprint.
//
// A Registry is safe for concurrent use by multiple goroutines. The
// zero value is an empty registry ready to use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Handle
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Handle)}
}

// Register makes h the owner of key. If another handle already owns
// key, it is canceled with cause ErrSuperseded before h takes its place
// and Register returns true.
//
// The cancel and the replacement happen under the same lock, so there
// is never a moment when both handles are considered the owner.
func (r *Registry) Register(key string, h *Handle) bool {
	if h == nil {
		panic("reqx/inflight: nil handle")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries == nil {
		r.entries = make(map[string]*Handle)
	}

	prev, ok := r.entries[key]
	if ok && prev != h {
		prev.Cancel(ErrSuperseded)
	}
	r.entries[key] = h
	return ok && prev != h
}

// Remove deletes the entry for key, but only while h still owns it. It
// reports whether an entry was removed. Removing an entry that was
// already superseded, canceled or removed is a no-op.
func (r *Registry) Remove(key string, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.entries[key]; ok && cur == h {
		delete(r.entries, key)
		return true
	}
	return false
}

// Cancel cancels and removes the entries for the given keys, using
// ErrCanceled as the cause. Unknown keys are ignored. The number of
// entries canceled is returned.
func (r *Registry) Cancel(keys ...string) int {
	r.mu.Lock()
	var handles []*Handle
	for _, key := range keys {
		if h, ok := r.entries[key]; ok {
			handles = append(handles, h)
			delete(r.entries, key)
		}
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Cancel(ErrCanceled)
	}
	return len(handles)
}

// CancelAll cancels every entry with cause ErrCanceled and empties the
// registry. It does not wait for the canceled requests to finish. The
// number of entries canceled is returned.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.entries))
	for _, h := range r.entries {
		handles = append(handles, h)
	}
	r.entries = make(map[string]*Handle)
	r.mu.Unlock()

	for _, h := range handles {
		h.Cancel(ErrCanceled)
	}
	return len(handles)
}

// Len returns the number of requests in flight.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Has reports whether a request with fingerprint key is in flight.
func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Keys returns the fingerprints of the requests in flight, sorted.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	r.mu.Unlock()

	sort.Strings(keys)
	return keys
}
