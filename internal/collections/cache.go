package collections

import (
	"context"
	"sync"
	"time"

	"github.com/gamify-app/gamify/internal/shared"
)

// fetchFunc loads a collection's contents from the backend.
type fetchFunc[E any] func(ctx context.Context) ([]E, error)

// entry caches one collection behind a single-flight fetch.
//
// Concurrent loads share the in-flight fetch. A fetch that exceeds the safety
// timeout releases its waiters with the cached data and bumps the generation
// counter so the late result is discarded when it finally lands. Clearing the
// entry bumps the generation the same way, which is how a sign-out during an
// in-flight fetch prevents one user's data from surfacing for the next.
//
// The cached slice never escapes: reads return copies and the stored slice is
// detached from the fetch result, so callers holding an earlier read are not
// affected when a mutation patches the entry in place.
type entry[E any] struct {
	minFetch time.Duration
	timeout  time.Duration
	now      func() time.Time
	after    func(time.Duration, func()) *time.Timer

	mu        sync.Mutex
	data      []E
	hasData   bool
	lastFetch time.Time
	gen       uint64
	inflight  *call[E]
}

// call is one in-flight fetch and the result its waiters share.
type call[E any] struct {
	done  chan struct{}
	once  sync.Once
	timer *time.Timer
	data  []E
	err   error
}

func (c *call[E]) complete(data []E, err error) {
	c.once.Do(func() {
		if c.timer != nil {
			c.timer.Stop()
		}
		c.data = data
		c.err = err
		close(c.done)
	})
}

func newEntry[E any](minFetch, timeout time.Duration) *entry[E] {
	return &entry[E]{
		minFetch: minFetch,
		timeout:  timeout,
		now:      time.Now,
		after:    time.AfterFunc,
	}
}

func cloneSlice[E any](s []E) []E {
	if s == nil {
		return nil
	}
	out := make([]E, len(s))
	copy(out, s)
	return out
}

// load returns the collection, fetching when the cache is cold or stale.
// A cached empty result does not count as fresh and is refetched.
//
// force bypasses the freshness window but still joins an in-flight fetch.
func (e *entry[E]) load(ctx context.Context, force bool, fetch fetchFunc[E]) ([]E, error) {
	e.mu.Lock()

	if c := e.inflight; c != nil {
		e.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return c.data, c.err
		}
	}

	if !force && len(e.data) > 0 && e.now().Sub(e.lastFetch) < e.minFetch {
		data := cloneSlice(e.data)
		e.mu.Unlock()
		return data, nil
	}

	c := &call[E]{done: make(chan struct{})}
	e.inflight = c
	e.gen++
	gen := e.gen
	c.timer = e.after(e.timeout, func() { e.expire(gen) })
	e.mu.Unlock()

	data, err := fetch(ctx)

	e.mu.Lock()
	if e.gen == gen {
		if err == nil {
			// Keep a private copy; the fetch result goes to the callers.
			e.data = cloneSlice(data)
			e.hasData = true
			e.lastFetch = e.now()
		}
		e.inflight = nil
		e.mu.Unlock()
		c.complete(data, err)
	} else {
		// Timed out or cleared while fetching. Waiters were already
		// released; the late result is dropped.
		e.mu.Unlock()
		c.complete(nil, shared.ErrFetchDiscarded)
	}

	return c.data, c.err
}

// expire releases the waiters of a fetch that outlived the safety timeout.
// They get whatever the cache held before, plus the timeout error, and the
// next load starts over.
func (e *entry[E]) expire(gen uint64) {
	e.mu.Lock()
	if e.gen != gen || e.inflight == nil {
		e.mu.Unlock()
		return
	}
	c := e.inflight
	e.inflight = nil
	e.gen++
	stale := cloneSlice(e.data)
	e.mu.Unlock()

	c.complete(stale, shared.ErrFetchTimeout)
}

// abandon discards an in-flight fetch without dropping the cached value.
// Waiters get a copy of whatever the cache held plus ErrSuspended, and the
// late result is dropped through the generation counter like an expired
// fetch.
func (e *entry[E]) abandon() {
	e.mu.Lock()
	c := e.inflight
	if c == nil {
		e.mu.Unlock()
		return
	}
	e.inflight = nil
	e.gen++
	stale := cloneSlice(e.data)
	e.mu.Unlock()

	c.complete(stale, shared.ErrSuspended)
}

// peek returns a copy of the cached value without fetching.
func (e *entry[E]) peek() ([]E, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneSlice(e.data), e.hasData
}

// update applies a mutation to the cached value and refreshes its timestamp,
// keeping the cache in step with a write that already reached the backend.
// fn receives the private slice and may edit it in place.
func (e *entry[E]) update(fn func([]E) []E) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.data = fn(e.data)
	e.hasData = true
	e.lastFetch = e.now()
}

// olderThan reports whether the cached value is absent or older than d.
func (e *entry[E]) olderThan(d time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasData {
		return true
	}
	return e.now().Sub(e.lastFetch) >= d
}

// clear drops the cached value and discards any in-flight fetch.
func (e *entry[E]) clear() {
	e.mu.Lock()
	e.data = nil
	e.hasData = false
	e.lastFetch = time.Time{}
	e.gen++
	c := e.inflight
	e.inflight = nil
	e.mu.Unlock()

	if c != nil {
		c.complete(nil, shared.ErrFetchDiscarded)
	}
}
