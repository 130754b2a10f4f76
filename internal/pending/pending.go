// Package pending correlates asynchronously dispatched work with its later
// completion.
//
// A Table maps correlation ids to Futures. Every entry leaves the table
// exactly once: on resolution, on timeout, on caller cancellation, or when
// the table is closed. A resolution for an id that is no longer present is a
// no-op, so late completions cannot leak entries or settle a Future twice.
//
// Dispatch runs its callback without holding the table. A resolution that
// beats its own registration is held while any Dispatch is in flight and
// claimed when the id registers.
package pending

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrTimeout     = errors.New("pending: timed out waiting for completion")
	ErrDuplicateID = errors.New("pending: correlation id already in flight")
	ErrClosed      = errors.New("pending: table closed")
)

// Future is the eventual outcome of one dispatched request.
type Future[V any] struct {
	done  chan struct{}
	once  sync.Once
	val   V
	err   error
	timer *time.Timer

	// release removes the entry from its table and reports whether this
	// call was the one that removed it.
	release func() bool
}

func newFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

func (f *Future[V]) settle(v V, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Done is closed once the Future has settled.
func (f *Future[V]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the Future settles or ctx is done. If ctx ends first the
// entry is removed from its table and ctx's error is returned.
func (f *Future[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		if f.release != nil && f.release() {
			var zero V
			f.settle(zero, ctx.Err())
		}
		<-f.done
	}
	return f.val, f.err
}

// Table holds in-flight requests keyed by correlation id.
type Table[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*Future[V]
	timeout time.Duration
	closed  bool

	// dispatching counts Dispatch callbacks still running; early holds
	// resolutions that arrived for unknown ids meanwhile.
	dispatching int
	early       map[K]earlyResult[V]
}

type earlyResult[V any] struct {
	val V
	at  time.Time
}

// New creates a table. A positive timeout bounds how long each entry may wait
// for resolution; zero disables the bound.
func New[K comparable, V any](timeout time.Duration) *Table[K, V] {
	return &Table[K, V]{
		entries: make(map[K]*Future[V]),
		early:   make(map[K]earlyResult[V]),
		timeout: timeout,
	}
}

// Register adds an entry for id.
func (t *Table[K, V]) Register(id K) (*Future[V], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.registerLocked(id)
}

// Dispatch calls fn and registers the id it returns. fn runs without the
// table locked, so concurrent dispatches do not wait on each other; a
// resolution for the id that arrives before fn returns settles the Future
// as soon as it is registered.
func (t *Table[K, V]) Dispatch(fn func() (K, error)) (K, *Future[V], error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		var zero K
		return zero, nil, ErrClosed
	}
	t.dispatching++
	t.mu.Unlock()

	id, err := fn()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.dispatching--
	defer t.pruneEarlyLocked()

	if err != nil {
		return id, nil, err
	}
	f, err := t.registerLocked(id)
	if err != nil {
		return id, nil, err
	}
	if e, ok := t.early[id]; ok {
		delete(t.early, id)
		delete(t.entries, id)
		if f.timer != nil {
			f.timer.Stop()
		}
		f.settle(e.val, nil)
	}
	return id, f, nil
}

// pruneEarlyLocked drops held resolutions nobody can claim: all of them once
// no Dispatch is running, and those older than the timeout otherwise.
func (t *Table[K, V]) pruneEarlyLocked() {
	if t.dispatching == 0 {
		clear(t.early)
		return
	}
	if t.timeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-t.timeout)
	for id, e := range t.early {
		if e.at.Before(cutoff) {
			delete(t.early, id)
		}
	}
}

func (t *Table[K, V]) registerLocked(id K) (*Future[V], error) {
	if t.closed {
		return nil, ErrClosed
	}
	if _, ok := t.entries[id]; ok {
		return nil, ErrDuplicateID
	}

	f := newFuture[V]()
	f.release = func() bool { return t.remove(id, f) }
	t.entries[id] = f

	if t.timeout > 0 {
		f.timer = time.AfterFunc(t.timeout, func() {
			if t.remove(id, f) {
				var zero V
				f.settle(zero, ErrTimeout)
			}
		})
	}
	return f, nil
}

// Resolve settles the entry for id with v. It reports false when id is not
// in the table; the value is then held only if a Dispatch is in flight that
// may still register id.
func (t *Table[K, V]) Resolve(id K, v V) bool {
	t.mu.Lock()
	f := t.takeLocked(id)
	if f == nil && t.dispatching > 0 && !t.closed {
		if _, ok := t.early[id]; !ok {
			t.early[id] = earlyResult[V]{val: v, at: time.Now()}
		}
	}
	t.mu.Unlock()

	if f == nil {
		return false
	}
	f.settle(v, nil)
	return true
}

// Fail settles the entry for id with err.
func (t *Table[K, V]) Fail(id K, err error) bool {
	f := t.take(id)
	if f == nil {
		return false
	}
	var zero V
	f.settle(zero, err)
	return true
}

// Len returns the number of in-flight entries.
func (t *Table[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close fails every in-flight entry with ErrClosed and rejects new ones.
func (t *Table[K, V]) Close() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[K]*Future[V])
	clear(t.early)
	t.closed = true
	t.mu.Unlock()

	var zero V
	for _, f := range entries {
		if f.timer != nil {
			f.timer.Stop()
		}
		f.settle(zero, ErrClosed)
	}
}

func (t *Table[K, V]) take(id K) *Future[V] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.takeLocked(id)
}

func (t *Table[K, V]) takeLocked(id K) *Future[V] {
	f, ok := t.entries[id]
	if !ok {
		return nil
	}
	delete(t.entries, id)
	if f.timer != nil {
		f.timer.Stop()
	}
	return f
}

func (t *Table[K, V]) remove(id K, f *Future[V]) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.entries[id]; !ok || cur != f {
		return false
	}
	delete(t.entries, id)
	if f.timer != nil {
		f.timer.Stop()
	}
	return true
}
