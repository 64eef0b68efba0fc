package concurrent

import "sync"

// FlatMapPublisher subscribes to s and, on success, to the Publisher fn
// returns. Demand signalled before the inner Publisher exists is held and
// forwarded once it subscribes.
func FlatMapPublisher[T, R any](s *Single[T], fn func(T) *Publisher[R]) *Publisher[R] {
	return NewPublisher(func(sub Subscriber[R]) {
		f := &flatMapSubscription[T, R]{down: sub, fn: fn}
		sub.OnSubscribe(f)
		s.Subscribe(flatMapOuter[T, R]{f})
	})
}

type flatMapSubscription[T, R any] struct {
	down Subscriber[R]
	fn   func(T) *Publisher[R]

	mu        sync.Mutex
	outer     Cancellable
	inner     Subscription
	pending   int64
	cancelled bool
}

func (f *flatMapSubscription[T, R]) Request(n int64) {
	f.mu.Lock()
	if f.inner == nil {
		f.pending = AddDemand(f.pending, n)
		f.mu.Unlock()
		return
	}
	inner := f.inner
	f.mu.Unlock()
	inner.Request(n)
}

func (f *flatMapSubscription[T, R]) Cancel() {
	f.mu.Lock()
	if f.cancelled {
		f.mu.Unlock()
		return
	}
	f.cancelled = true
	outer, inner := f.outer, f.inner
	f.mu.Unlock()
	if outer != nil {
		outer.Cancel()
	}
	if inner != nil {
		inner.Cancel()
	}
}

type flatMapOuter[T, R any] struct{ f *flatMapSubscription[T, R] }

func (o flatMapOuter[T, R]) OnSubscribe(c Cancellable) {
	f := o.f
	f.mu.Lock()
	if f.cancelled {
		f.mu.Unlock()
		c.Cancel()
		return
	}
	f.outer = c
	f.mu.Unlock()
}

func (o flatMapOuter[T, R]) OnSuccess(v T) {
	next, err := call(func() *Publisher[R] { return o.f.fn(v) })
	if err != nil {
		o.f.down.OnError(err)
		return
	}
	next.Subscribe(flatMapInner[T, R]{o.f})
}

func (o flatMapOuter[T, R]) OnError(err error) { o.f.down.OnError(err) }

type flatMapInner[T, R any] struct{ f *flatMapSubscription[T, R] }

func (i flatMapInner[T, R]) OnSubscribe(s Subscription) {
	f := i.f
	f.mu.Lock()
	if f.cancelled {
		f.mu.Unlock()
		s.Cancel()
		return
	}
	f.inner = s
	n := f.pending
	f.pending = 0
	f.mu.Unlock()
	if n > 0 {
		s.Request(n)
	}
}

func (i flatMapInner[T, R]) OnNext(v R)        { i.f.down.OnNext(v) }
func (i flatMapInner[T, R]) OnComplete()       { i.f.down.OnComplete() }
func (i flatMapInner[T, R]) OnError(err error) { i.f.down.OnError(err) }
