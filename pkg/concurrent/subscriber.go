package concurrent

import "sync/atomic"

// SingleSubscriber receives the signals of a Single.
type SingleSubscriber[T any] interface {
	OnSubscribe(c Cancellable)
	OnSuccess(v T)
	OnError(err error)
}

// CompletableSubscriber receives the signals of a Completable.
type CompletableSubscriber interface {
	OnSubscribe(c Cancellable)
	OnComplete()
	OnError(err error)
}

// Subscriber receives the signals of a Publisher.
type Subscriber[T any] interface {
	OnSubscribe(s Subscription)
	OnNext(v T)
	OnComplete()
	OnError(err error)
}

// cast converts an erased value back to T. A nil or mistyped value yields the
// zero value of T.
func cast[T any](v any) T {
	t, _ := v.(T)
	return t
}

// signalGuard enforces the handshake and terminal rules shared by all three
// producer kinds: one OnSubscribe, at most one terminal, nothing after
// cancellation.
type signalGuard struct {
	subscribed atomic.Bool
	terminated atomic.Bool
	cancelled  atomic.Bool
}

func (g *signalGuard) acceptSubscribe() bool { return g.subscribed.CompareAndSwap(false, true) }

func (g *signalGuard) acceptTerminal() bool {
	if g.cancelled.Load() {
		g.terminated.Store(true)
		return false
	}
	return g.terminated.CompareAndSwap(false, true)
}

func (g *signalGuard) live() bool { return !g.terminated.Load() && !g.cancelled.Load() }

// singleGuard sits directly in front of the caller's subscriber.
type singleGuard[T any] struct {
	signalGuard
	dst SingleSubscriber[T]
}

func (g *singleGuard[T]) OnSubscribe(c Cancellable) {
	if !g.acceptSubscribe() {
		c.Cancel()
		return
	}
	g.dst.OnSubscribe(CancellableFunc(func() {
		if g.cancelled.CompareAndSwap(false, true) {
			c.Cancel()
		}
	}))
}

func (g *singleGuard[T]) OnSuccess(v T) {
	if g.acceptTerminal() {
		g.dst.OnSuccess(v)
	}
}

func (g *singleGuard[T]) OnError(err error) {
	if g.acceptTerminal() {
		g.dst.OnError(err)
	}
}

// fail completes the handshake if needed and delivers err.
func (g *singleGuard[T]) fail(err error) bool {
	if g.acceptSubscribe() {
		g.dst.OnSubscribe(IgnoreCancel)
	}
	if !g.acceptTerminal() {
		return false
	}
	g.dst.OnError(err)
	return true
}

type completableGuard struct {
	signalGuard
	dst CompletableSubscriber
}

func (g *completableGuard) OnSubscribe(c Cancellable) {
	if !g.acceptSubscribe() {
		c.Cancel()
		return
	}
	g.dst.OnSubscribe(CancellableFunc(func() {
		if g.cancelled.CompareAndSwap(false, true) {
			c.Cancel()
		}
	}))
}

func (g *completableGuard) OnComplete() {
	if g.acceptTerminal() {
		g.dst.OnComplete()
	}
}

func (g *completableGuard) OnError(err error) {
	if g.acceptTerminal() {
		g.dst.OnError(err)
	}
}

func (g *completableGuard) fail(err error) bool {
	if g.acceptSubscribe() {
		g.dst.OnSubscribe(IgnoreCancel)
	}
	if !g.acceptTerminal() {
		return false
	}
	g.dst.OnError(err)
	return true
}

type publisherGuard[T any] struct {
	signalGuard
	dst      Subscriber[T]
	upstream Subscription
}

func (g *publisherGuard[T]) OnSubscribe(s Subscription) {
	if !g.acceptSubscribe() {
		s.Cancel()
		return
	}
	g.upstream = s
	g.dst.OnSubscribe(guardedSubscription[T]{g})
}

func (g *publisherGuard[T]) OnNext(v T) {
	if g.live() {
		g.dst.OnNext(v)
	}
}

func (g *publisherGuard[T]) OnComplete() {
	if g.acceptTerminal() {
		g.dst.OnComplete()
	}
}

func (g *publisherGuard[T]) OnError(err error) {
	if g.acceptTerminal() {
		g.dst.OnError(err)
	}
}

func (g *publisherGuard[T]) fail(err error) bool {
	if g.acceptSubscribe() {
		g.upstream = EmptySubscription
		g.dst.OnSubscribe(EmptySubscription)
	}
	if !g.acceptTerminal() {
		return false
	}
	g.dst.OnError(err)
	return true
}

// guardedSubscription validates demand before it reaches the producer.
type guardedSubscription[T any] struct {
	g *publisherGuard[T]
}

func (s guardedSubscription[T]) Request(n int64) {
	if n <= 0 {
		s.g.upstream.Cancel()
		if s.g.acceptTerminal() {
			s.g.dst.OnError(ErrInvalidDemand)
		}
		return
	}
	if s.g.live() {
		s.g.upstream.Request(n)
	}
}

func (s guardedSubscription[T]) Cancel() {
	if s.g.cancelled.CompareAndSwap(false, true) {
		s.g.upstream.Cancel()
	}
}

// Erasure adapters let plugins, which cannot be generic, see typed subscribers.

type erasedSingle[T any] struct{ dst SingleSubscriber[T] }

func (e erasedSingle[T]) OnSubscribe(c Cancellable) { e.dst.OnSubscribe(c) }
func (e erasedSingle[T]) OnSuccess(v any)          { e.dst.OnSuccess(cast[T](v)) }
func (e erasedSingle[T]) OnError(err error)         { e.dst.OnError(err) }

type typedSingle[T any] struct{ dst SingleSubscriber[any] }

func (t typedSingle[T]) OnSubscribe(c Cancellable) { t.dst.OnSubscribe(c) }
func (t typedSingle[T]) OnSuccess(v T)             { t.dst.OnSuccess(v) }
func (t typedSingle[T]) OnError(err error)         { t.dst.OnError(err) }

func restoreSingle[T any](s SingleSubscriber[any]) SingleSubscriber[T] {
	if e, ok := s.(erasedSingle[T]); ok {
		return e.dst
	}
	return typedSingle[T]{s}
}

type erasedPublisher[T any] struct{ dst Subscriber[T] }

func (e erasedPublisher[T]) OnSubscribe(s Subscription) { e.dst.OnSubscribe(s) }
func (e erasedPublisher[T]) OnNext(v any)               { e.dst.OnNext(cast[T](v)) }
func (e erasedPublisher[T]) OnComplete()                { e.dst.OnComplete() }
func (e erasedPublisher[T]) OnError(err error)          { e.dst.OnError(err) }

type typedPublisher[T any] struct{ dst Subscriber[any] }

func (t typedPublisher[T]) OnSubscribe(s Subscription) { t.dst.OnSubscribe(s) }
func (t typedPublisher[T]) OnNext(v T)                 { t.dst.OnNext(v) }
func (t typedPublisher[T]) OnComplete()                { t.dst.OnComplete() }
func (t typedPublisher[T]) OnError(err error)          { t.dst.OnError(err) }

func restorePublisher[T any](s Subscriber[any]) Subscriber[T] {
	if e, ok := s.(erasedPublisher[T]); ok {
		return e.dst
	}
	return typedPublisher[T]{s}
}
