// Package querycache is a small keyed query cache with cancellation,
// invalidation and optimistic mutations.
//
// A Cache is an explicit object; nothing in this package is global.
package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Key identifies one cached query.
type Key string

// ErrSuperseded is returned by Fetch when a later fetch or a Cancel made its
// result obsolete. The result was discarded.
var ErrSuperseded = errors.New("querycache: fetch superseded")

// Fetcher loads the authoritative value of a query.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Cache holds one value of type T per key.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[Key]*entry[T]
	nextSub int
}

type entry[T any] struct {
	data    T
	hasData bool
	stale   bool
	err     error

	// gen increases on every fetch start and every Cancel. A fetch only
	// applies its result if gen is unchanged when it returns.
	gen    uint64
	cancel context.CancelFunc
	fetch  Fetcher[T]
	subs   map[int]func(T)
}

// New returns an empty cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{entries: make(map[Key]*entry[T])}
}

// entry must be called with c.mu held.
func (c *Cache[T]) entry(key Key) *entry[T] {
	e, ok := c.entries[key]
	if !ok {
		e = &entry[T]{subs: make(map[int]func(T))}
		c.entries[key] = e
	}
	return e
}

// Define sets the fetcher used to (re)load key.
func (c *Cache[T]) Define(key Key, fetch Fetcher[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry(key).fetch = fetch
}

// Get returns the cached value and whether one has been set.
func (c *Cache[T]) Get(key Key) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(key)
	return e.data, e.hasData
}

// Set replaces the cached value without touching in-flight fetches.
func (c *Cache[T]) Set(key Key, v T) {
	c.mu.Lock()
	subs := c.setLocked(c.entry(key), v)
	c.mu.Unlock()
	notify(subs, v)
}

// Err returns the error of the last completed fetch, if it failed.
func (c *Cache[T]) Err(key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry(key).err
}

// Stale reports whether key was invalidated and not yet refetched.
func (c *Cache[T]) Stale(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry(key).stale
}

// Subscribe calls fn with the new value after every change of key. fn may
// run on any goroutine and must not block.
func (c *Cache[T]) Subscribe(key Key, fn func(T)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.entry(key).subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.entry(key).subs, id)
	}
}

// Cancel aborts any in-flight fetch of key and discards its result.
func (c *Cache[T]) Cancel(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked(c.entry(key))
}

// Fetch loads key with its fetcher and stores the result. It blocks until
// the fetcher returns. A fetch that gets superseded returns ErrSuperseded.
func (c *Cache[T]) Fetch(ctx context.Context, key Key) error {
	c.mu.Lock()
	e := c.entry(key)
	if e.fetch == nil {
		c.mu.Unlock()
		return fmt.Errorf("querycache: no fetcher defined for %q", key)
	}
	c.cancelLocked(e)
	gen := e.gen
	fctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	fetch := e.fetch
	c.mu.Unlock()
	defer cancel()

	v, err := fetch(fctx)

	c.mu.Lock()
	if e.gen != gen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	e.cancel = nil
	if err != nil {
		e.err = err
		c.mu.Unlock()
		return err
	}
	e.stale = false
	e.err = nil
	subs := c.setLocked(e, v)
	c.mu.Unlock()

	notify(subs, v)
	return nil
}

// Invalidate marks key stale and refetches it.
func (c *Cache[T]) Invalidate(ctx context.Context, key Key) error {
	c.mu.Lock()
	c.entry(key).stale = true
	c.mu.Unlock()
	return c.Fetch(ctx, key)
}

// update cancels in-flight fetches of key and replaces its value with
// fn(current, ok) in one step, so no fetch can land in between.
func (c *Cache[T]) update(key Key, fn func(current T, ok bool) T) {
	c.mu.Lock()
	e := c.entry(key)
	c.cancelLocked(e)
	next := fn(e.data, e.hasData)
	subs := c.setLocked(e, next)
	c.mu.Unlock()

	notify(subs, next)
}

func (c *Cache[T]) cancelLocked(e *entry[T]) {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
}

func (c *Cache[T]) setLocked(e *entry[T], v T) []func(T) {
	e.data = v
	e.hasData = true
	subs := make([]func(T), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify[T any](subs []func(T), v T) {
	for _, fn := range subs {
		fn(v)
	}
}
