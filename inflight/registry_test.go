// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package inflight

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors(t *testing.T) {
	assert.True(t, errors.Is(ErrSuperseded, context.Canceled))
	assert.True(t, errors.Is(ErrCanceled, context.Canceled))
	assert.False(t, errors.Is(ErrSuperseded, ErrCanceled))
}

func TestNewHandle(t *testing.T) {
	assert.Panics(t, func() { NewHandle(nil) })
	c := &countingCancel{}
	h := NewHandle(c.cancel)
	h.Cancel(ErrCanceled)
	h.Cancel(ErrSuperseded)
	assert.Equal(t, 1, c.count())
	assert.Same(t, ErrCanceled, c.causes[0])
}

func TestHandleWithContext(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	h := NewHandle(cancel)
	h.Cancel(ErrSuperseded)
	<-ctx.Done()
	assert.Equal(t, context.Canceled, ctx.Err())
	assert.Same(t, ErrSuperseded, context.Cause(ctx))
}

func TestRegistry(t *testing.T) {
	t.Run("zero value", testRegistryZeroValue)
	t.Run("register", testRegistryRegister)
	t.Run("supersede", testRegistrySupersede)
	t.Run("remove", testRegistryRemove)
	t.Run("cancel", testRegistryCancel)
	t.Run("cancel all", testRegistryCancelAll)
	t.Run("concurrent", testRegistryConcurrent)
}

func testRegistryZeroValue(t *testing.T) {
	var r Registry
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Has("a"))
	assert.Empty(t, r.Keys())
	assert.Equal(t, 0, r.Cancel("a"))
	assert.Equal(t, 0, r.CancelAll())
	c := &countingCancel{}
	h := NewHandle(c.cancel)
	assert.False(t, r.Register("a", h))
	assert.True(t, r.Has("a"))
	assert.True(t, r.Remove("a", h))
	assert.Equal(t, 0, c.count())
}

func testRegistryRegister(t *testing.T) {
	r := New()
	assert.Panics(t, func() { r.Register("a", nil) })
	c1, c2 := &countingCancel{}, &countingCancel{}
	assert.False(t, r.Register("a", NewHandle(c1.cancel)))
	assert.False(t, r.Register("b", NewHandle(c2.cancel)))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"a", "b"}, r.Keys())
	assert.Equal(t, 0, c1.count())
	assert.Equal(t, 0, c2.count())
}

func testRegistrySupersede(t *testing.T) {
	r := New()
	c1, c2 := &countingCancel{}, &countingCancel{}
	h1, h2 := NewHandle(c1.cancel), NewHandle(c2.cancel)
	require.False(t, r.Register("get^/users", h1))
	assert.True(t, r.Register("get^/users", h2))
	assert.Equal(t, 1, c1.count())
	assert.Same(t, ErrSuperseded, c1.causes[0])
	assert.Equal(t, 0, c2.count())
	assert.Equal(t, 1, r.Len())
	t.Run("re-register same handle", func(t *testing.T) {
		assert.False(t, r.Register("get^/users", h2))
		assert.Equal(t, 0, c2.count())
	})
	t.Run("late removal by superseded owner", func(t *testing.T) {
		assert.False(t, r.Remove("get^/users", h1))
		assert.True(t, r.Has("get^/users"))
	})
	t.Run("removal by current owner", func(t *testing.T) {
		assert.True(t, r.Remove("get^/users", h2))
		assert.False(t, r.Has("get^/users"))
		assert.Equal(t, 0, c2.count())
	})
}

func testRegistryRemove(t *testing.T) {
	r := New()
	c := &countingCancel{}
	h := NewHandle(c.cancel)
	assert.False(t, r.Remove("missing", h))
	r.Register("a", h)
	assert.True(t, r.Remove("a", h))
	assert.False(t, r.Remove("a", h))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, c.count())
}

func testRegistryCancel(t *testing.T) {
	r := New()
	cs := []*countingCancel{{}, {}, {}}
	hs := make([]*Handle, len(cs))
	for i := range cs {
		hs[i] = NewHandle(cs[i].cancel)
		r.Register(fmt.Sprintf("k%d", i), hs[i])
	}
	assert.Equal(t, 1, r.Cancel("k0"))
	assert.Equal(t, 1, cs[0].count())
	assert.Same(t, ErrCanceled, cs[0].causes[0])
	assert.Equal(t, 1, r.Cancel("k0", "k2", "unknown"))
	assert.Equal(t, 1, cs[0].count())
	assert.Equal(t, 0, cs[1].count())
	assert.Equal(t, 1, cs[2].count())
	assert.Equal(t, []string{"k1"}, r.Keys())
	assert.False(t, r.Remove("k0", hs[0]))
	hs[0].Cancel(ErrCanceled)
	assert.Equal(t, 1, cs[0].count())
}

func testRegistryCancelAll(t *testing.T) {
	const n = 25
	r := New()
	cs := make([]*countingCancel, n)
	for i := range cs {
		cs[i] = &countingCancel{}
		r.Register(fmt.Sprintf("k%d", i), NewHandle(cs[i].cancel))
	}
	require.Equal(t, n, r.Len())
	assert.Equal(t, n, r.CancelAll())
	assert.Equal(t, 0, r.Len())
	for i := range cs {
		assert.Equal(t, 1, cs[i].count(), "handle %d", i)
	}
	assert.Equal(t, 0, r.CancelAll())
	for i := range cs {
		assert.Equal(t, 1, cs[i].count(), "handle %d", i)
	}
}

func testRegistryConcurrent(t *testing.T) {
	const n = 64
	r := New()
	cs := make([]*countingCancel, n)
	hs := make([]*Handle, n)
	for i := range cs {
		cs[i] = &countingCancel{}
		hs[i] = NewHandle(cs[i].cancel)
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Register("same", hs[i])
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, r.Len())
	canceled := 0
	for i := range cs {
		canceled += cs[i].count()
	}
	assert.Equal(t, n-1, canceled)
}

type countingCancel struct {
	mu     sync.Mutex
	causes []error
}

func (c *countingCancel) cancel(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.causes = append(c.causes, cause)
}

func (c *countingCancel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.causes)
}
