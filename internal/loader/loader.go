// Package loader runs an expensive initialization once and hands the result
// to every caller that asks for it.
package loader

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Func produces the value a Loader caches.
type Func[T any] func(ctx context.Context) (T, error)

// Loader runs its Func at most once successfully. Concurrent callers share a
// single in-flight call; a failed call is retried by the next caller.
type Loader[T any] struct {
	fn    Func[T]
	group singleflight.Group

	mu          sync.Mutex
	loaded      bool
	value       T
	subscribers []func(T)
}

// New returns a Loader for fn.
func New[T any](fn Func[T]) *Loader[T] {
	return &Loader[T]{fn: fn}
}

// Get returns the loaded value, running the Func if nothing has loaded yet.
// Cancelling ctx abandons the wait but not the shared call.
func (l *Loader[T]) Get(ctx context.Context) (T, error) {
	if v, ok := l.cached(); ok {
		return v, nil
	}

	ch := l.group.DoChan("load", func() (any, error) {
		if v, ok := l.cached(); ok {
			return v, nil
		}
		v, err := l.fn(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}

		l.mu.Lock()
		l.loaded = true
		l.value = v
		subs := l.subscribers
		l.subscribers = nil
		l.mu.Unlock()

		for _, notify := range subs {
			notify(v)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// OnLoad registers fn to receive the value once it is loaded. If the value is
// already available fn runs immediately.
func (l *Loader[T]) OnLoad(fn func(T)) {
	l.mu.Lock()
	if l.loaded {
		v := l.value
		l.mu.Unlock()
		fn(v)
		return
	}
	l.subscribers = append(l.subscribers, fn)
	l.mu.Unlock()
}

// Loaded reports whether a call has succeeded.
func (l *Loader[T]) Loaded() bool {
	_, ok := l.cached()
	return ok
}

func (l *Loader[T]) cached() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.loaded
}
