package concurrent

import (
	"context"
	"sync"
)

// Single is a lazy asynchronous computation producing one value or one error.
type Single[T any] struct {
	handle func(SingleSubscriber[T])
}

// NewSingle creates a Single whose subscription runs handle. handle must call
// OnSubscribe before any terminal signal.
func NewSingle[T any](handle func(SingleSubscriber[T])) *Single[T] {
	return &Single[T]{handle: handle}
}

// Success returns a Single that emits v.
func Success[T any](v T) *Single[T] {
	return NewSingle(func(sub SingleSubscriber[T]) {
		sub.OnSubscribe(IgnoreCancel)
		sub.OnSuccess(v)
	})
}

// FailedSingle returns a Single that fails with err.
func FailedSingle[T any](err error) *Single[T] {
	return NewSingle(func(sub SingleSubscriber[T]) {
		sub.OnSubscribe(IgnoreCancel)
		sub.OnError(err)
	})
}

// DeferSingle calls factory on every subscription and subscribes to its result.
func DeferSingle[T any](factory func() *Single[T]) *Single[T] {
	return NewSingle(func(sub SingleSubscriber[T]) {
		factory().Subscribe(sub)
	})
}

// Subscribe starts the computation. Registered SinglePlugins see the
// subscriber first. A panic in a plugin or in the producer is delivered to
// subscriber as a *PanicError.
func (s *Single[T]) Subscribe(subscriber SingleSubscriber[T]) {
	guard := &singleGuard[T]{dst: subscriber}
	defer func() {
		if r := recover(); r != nil && !guard.fail(panicError(r)) {
			reportLatePanic("single", r)
		}
	}()
	plugins := singlePlugins.load()
	if len(plugins) == 0 {
		s.handle(guard)
		return
	}
	singleChain(plugins).HandleSubscribe(erasedSingle[T]{guard}, func(wrapped SingleSubscriber[any]) {
		s.handle(restoreSingle[T](wrapped))
	})
}

// SubscribeFunc subscribes with callbacks; nil callbacks are ignored.
func (s *Single[T]) SubscribeFunc(onSuccess func(T), onError func(error)) Cancellable {
	sub := &funcSingleSubscriber[T]{onSuccess: onSuccess, onError: onError}
	s.Subscribe(sub)
	return sub
}

// OnErrorResume subscribes to the Single returned by fn when s fails.
func (s *Single[T]) OnErrorResume(fn func(error) *Single[T]) *Single[T] {
	return NewSingle(func(sub SingleSubscriber[T]) {
		r := &resumeSingle[T]{down: sub, fn: fn}
		sub.OnSubscribe(&r.cancel)
		s.Subscribe(r)
	})
}

// Await blocks until s terminates or ctx is done. It is meant for tests and
// for the edges of the program, never for the non-blocking path.
func (s *Single[T]) Await(ctx context.Context) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	c := s.SubscribeFunc(
		func(v T) { ch <- result{v: v} },
		func(err error) { ch <- result{err: err} },
	)
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		c.Cancel()
		var zero T
		return zero, ctx.Err()
	}
}

// MapSingle transforms the value of s with fn.
func MapSingle[T, R any](s *Single[T], fn func(T) R) *Single[R] {
	return NewSingle(func(sub SingleSubscriber[R]) {
		s.Subscribe(&mapSingle[T, R]{down: sub, fn: fn})
	})
}

type funcSingleSubscriber[T any] struct {
	mu        sync.Mutex
	c         Cancellable
	cancelled bool
	onSuccess func(T)
	onError   func(error)
}

func (f *funcSingleSubscriber[T]) OnSubscribe(c Cancellable) {
	f.mu.Lock()
	if f.cancelled {
		f.mu.Unlock()
		c.Cancel()
		return
	}
	f.c = c
	f.mu.Unlock()
}

func (f *funcSingleSubscriber[T]) OnSuccess(v T) {
	if f.onSuccess != nil {
		f.onSuccess(v)
	}
}

func (f *funcSingleSubscriber[T]) OnError(err error) {
	if f.onError != nil {
		f.onError(err)
	}
}

func (f *funcSingleSubscriber[T]) Cancel() {
	f.mu.Lock()
	f.cancelled = true
	c := f.c
	f.mu.Unlock()
	if c != nil {
		c.Cancel()
	}
}

type mapSingle[T, R any] struct {
	down SingleSubscriber[R]
	fn   func(T) R
}

func (m *mapSingle[T, R]) OnSubscribe(c Cancellable) { m.down.OnSubscribe(c) }

func (m *mapSingle[T, R]) OnSuccess(v T) {
	r, err := call(func() R { return m.fn(v) })
	if err != nil {
		m.down.OnError(err)
		return
	}
	m.down.OnSuccess(r)
}

func (m *mapSingle[T, R]) OnError(err error) { m.down.OnError(err) }

type resumeSingle[T any] struct {
	down   SingleSubscriber[T]
	fn     func(error) *Single[T]
	cancel SequentialCancellable
}

func (r *resumeSingle[T]) OnSubscribe(c Cancellable) { r.cancel.Set(c) }
func (r *resumeSingle[T]) OnSuccess(v T)             { r.down.OnSuccess(v) }

func (r *resumeSingle[T]) OnError(err error) {
	next, ferr := call(func() *Single[T] { return r.fn(err) })
	if ferr != nil {
		r.down.OnError(ferr)
		return
	}
	next.Subscribe(&resumedSingle[T]{r})
}

type resumedSingle[T any] struct{ r *resumeSingle[T] }

func (s *resumedSingle[T]) OnSubscribe(c Cancellable) { s.r.cancel.Set(c) }
func (s *resumedSingle[T]) OnSuccess(v T)             { s.r.down.OnSuccess(v) }
func (s *resumedSingle[T]) OnError(err error)         { s.r.down.OnError(err) }
