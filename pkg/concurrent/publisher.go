package concurrent

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
)

// Publisher is a lazy asynchronous sequence of values. A Publisher never
// emits more items than its subscriber has requested.
type Publisher[T any] struct {
	handle func(Subscriber[T])
}

// NewPublisher creates a Publisher whose subscription runs handle.
func NewPublisher[T any](handle func(Subscriber[T])) *Publisher[T] {
	return &Publisher[T]{handle: handle}
}

// FromSlice returns a Publisher that emits items in order, then completes.
func FromSlice[T any](items ...T) *Publisher[T] {
	return NewPublisher(func(sub Subscriber[T]) {
		s := &sliceSubscription[T]{dst: sub, items: items}
		sub.OnSubscribe(s)
		s.drain()
	})
}

// Empty returns a Publisher that completes without items.
func Empty[T any]() *Publisher[T] {
	return NewPublisher(func(sub Subscriber[T]) {
		sub.OnSubscribe(EmptySubscription)
		sub.OnComplete()
	})
}

// FailedPublisher returns a Publisher that fails with err.
func FailedPublisher[T any](err error) *Publisher[T] {
	return NewPublisher(func(sub Subscriber[T]) {
		sub.OnSubscribe(EmptySubscription)
		sub.OnError(err)
	})
}

// DeferPublisher calls factory on every subscription.
func DeferPublisher[T any](factory func() *Publisher[T]) *Publisher[T] {
	return NewPublisher(func(sub Subscriber[T]) {
		factory().Subscribe(sub)
	})
}

// Subscribe starts the sequence, routed through registered PublisherPlugins.
func (p *Publisher[T]) Subscribe(subscriber Subscriber[T]) {
	guard := &publisherGuard[T]{dst: subscriber}
	defer func() {
		if r := recover(); r != nil && !guard.fail(panicError(r)) {
			reportLatePanic("publisher", r)
		}
	}()
	plugins := publisherPlugins.load()
	if len(plugins) == 0 {
		p.handle(guard)
		return
	}
	publisherChain(plugins).HandleSubscribe(erasedPublisher[T]{guard}, func(wrapped Subscriber[any]) {
		p.handle(restorePublisher[T](wrapped))
	})
}

// Collect requests every item and returns them once p completes.
func (p *Publisher[T]) Collect(ctx context.Context) ([]T, error) {
	var (
		mu    sync.Mutex
		items []T
	)
	err := p.forEach(func(v T) {
		mu.Lock()
		items = append(items, v)
		mu.Unlock()
	}).Await(ctx)
	mu.Lock()
	defer mu.Unlock()
	return items, err
}

// ConcatWith subscribes to next once p completes. The result completes when
// next completes.
func (p *Publisher[T]) ConcatWith(next *Completable) *Publisher[T] {
	return NewPublisher(func(sub Subscriber[T]) {
		p.Subscribe(&concatSubscriber[T]{down: sub, next: next})
	})
}

// IgnoreElements requests all items, discards them and relays the terminal.
func (p *Publisher[T]) IgnoreElements() *Completable {
	return p.forEach(nil)
}

// Repeat resubscribes to p each time it completes while pred returns true for
// the number of completed rounds. Outstanding demand carries across rounds.
func (p *Publisher[T]) Repeat(pred func(count int) bool) *Publisher[T] {
	return NewPublisher(func(sub Subscriber[T]) {
		r := &repeatSubscription[T]{src: p, pred: pred, down: sub}
		sub.OnSubscribe(r)
		r.subscribeNext()
	})
}

// EnsureLast emits last() before completing unless the final item of p
// already satisfies isLast.
func (p *Publisher[T]) EnsureLast(isLast func(T) bool, last func() T) *Publisher[T] {
	return NewPublisher(func(sub Subscriber[T]) {
		p.Subscribe(&ensureLastSubscriber[T]{down: sub, isLast: isLast, last: last})
	})
}

// MapPublisher transforms every item of p with fn.
func MapPublisher[T, R any](p *Publisher[T], fn func(T) R) *Publisher[R] {
	return NewPublisher(func(sub Subscriber[R]) {
		p.Subscribe(&mapSubscriber[T, R]{down: sub, fn: fn})
	})
}

func (p *Publisher[T]) forEach(fn func(T)) *Completable {
	return NewCompletable(func(sub CompletableSubscriber) {
		p.Subscribe(&forEachSubscriber[T]{down: sub, fn: fn})
	})
}

type sliceSubscription[T any] struct {
	dst       Subscriber[T]
	items     []T
	idx       int
	demand    atomic.Int64
	wip       atomic.Int32
	cancelled atomic.Bool
}

func (s *sliceSubscription[T]) Request(n int64) {
	addDemandAtomic(&s.demand, n)
	s.drain()
}

func (s *sliceSubscription[T]) Cancel() { s.cancelled.Store(true) }

// drain emits while demand lasts. Only one goroutine drains at a time; calls
// that arrive during a drain are folded into it through wip.
func (s *sliceSubscription[T]) drain() {
	if s.wip.Add(1) != 1 {
		return
	}
	missed := int32(1)
	for {
		for s.demand.Load() > 0 && s.idx < len(s.items) {
			if s.cancelled.Load() {
				return
			}
			v := s.items[s.idx]
			s.idx++
			takeDemandAtomic(&s.demand)
			s.dst.OnNext(v)
		}
		if s.cancelled.Load() {
			return
		}
		if s.idx == len(s.items) {
			s.cancelled.Store(true)
			s.dst.OnComplete()
			return
		}
		missed = s.wip.Add(-missed)
		if missed == 0 {
			return
		}
	}
}

type forEachSubscriber[T any] struct {
	down CompletableSubscriber
	fn   func(T)
}

func (f *forEachSubscriber[T]) OnSubscribe(s Subscription) {
	f.down.OnSubscribe(s)
	s.Request(math.MaxInt64)
}

func (f *forEachSubscriber[T]) OnNext(v T) {
	if f.fn != nil {
		f.fn(v)
	}
}

func (f *forEachSubscriber[T]) OnComplete()       { f.down.OnComplete() }
func (f *forEachSubscriber[T]) OnError(err error) { f.down.OnError(err) }

type mapSubscriber[T, R any] struct {
	down     Subscriber[R]
	fn       func(T) R
	upstream Subscription
	failed   bool
}

func (m *mapSubscriber[T, R]) OnSubscribe(s Subscription) {
	m.upstream = s
	m.down.OnSubscribe(s)
}

func (m *mapSubscriber[T, R]) OnNext(v T) {
	if m.failed {
		return
	}
	r, err := call(func() R { return m.fn(v) })
	if err != nil {
		m.failed = true
		m.upstream.Cancel()
		m.down.OnError(err)
		return
	}
	m.down.OnNext(r)
}

func (m *mapSubscriber[T, R]) OnComplete()       { m.down.OnComplete() }
func (m *mapSubscriber[T, R]) OnError(err error) { m.down.OnError(err) }

type concatSubscriber[T any] struct {
	down     Subscriber[T]
	next     *Completable
	upstream Subscription
	cancel   SequentialCancellable
}

func (c *concatSubscriber[T]) OnSubscribe(s Subscription) {
	c.upstream = s
	c.cancel.Set(s)
	c.down.OnSubscribe(c)
}

func (c *concatSubscriber[T]) Request(n int64)   { c.upstream.Request(n) }
func (c *concatSubscriber[T]) Cancel()           { c.cancel.Cancel() }
func (c *concatSubscriber[T]) OnNext(v T)        { c.down.OnNext(v) }
func (c *concatSubscriber[T]) OnError(err error) { c.down.OnError(err) }

func (c *concatSubscriber[T]) OnComplete() {
	c.next.Subscribe(concatTail[T]{c})
}

type concatTail[T any] struct{ c *concatSubscriber[T] }

func (t concatTail[T]) OnSubscribe(c Cancellable) { t.c.cancel.Set(c) }
func (t concatTail[T]) OnComplete()               { t.c.down.OnComplete() }
func (t concatTail[T]) OnError(err error)         { t.c.down.OnError(err) }

type repeatSubscription[T any] struct {
	src  *Publisher[T]
	pred func(int) bool
	down Subscriber[T]
	wip  atomic.Int32

	mu          sync.Mutex
	current     Subscription
	outstanding int64
	rounds      int
	cancelled   bool
}

func (r *repeatSubscription[T]) Request(n int64) {
	r.mu.Lock()
	r.outstanding = AddDemand(r.outstanding, n)
	cur := r.current
	r.mu.Unlock()
	if cur != nil {
		cur.Request(n)
	}
}

func (r *repeatSubscription[T]) Cancel() {
	r.mu.Lock()
	r.cancelled = true
	cur := r.current
	r.current = nil
	r.mu.Unlock()
	if cur != nil {
		cur.Cancel()
	}
}

// subscribeNext trampolines resubscription so synchronous sources do not grow
// the stack with every round.
func (r *repeatSubscription[T]) subscribeNext() {
	if r.wip.Add(1) != 1 {
		return
	}
	for {
		r.src.Subscribe(repeatRound[T]{r})
		if r.wip.Add(-1) == 0 {
			return
		}
	}
}

type repeatRound[T any] struct{ r *repeatSubscription[T] }

func (rr repeatRound[T]) OnSubscribe(s Subscription) {
	r := rr.r
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		s.Cancel()
		return
	}
	r.current = s
	n := r.outstanding
	r.mu.Unlock()
	if n > 0 {
		s.Request(n)
	}
}

func (rr repeatRound[T]) OnNext(v T) {
	r := rr.r
	r.mu.Lock()
	r.outstanding = takeDemand(r.outstanding)
	r.mu.Unlock()
	r.down.OnNext(v)
}

func (rr repeatRound[T]) OnComplete() {
	r := rr.r
	r.mu.Lock()
	r.current = nil
	r.rounds++
	rounds, cancelled := r.rounds, r.cancelled
	r.mu.Unlock()
	if cancelled {
		return
	}
	again, err := call(func() bool { return r.pred(rounds) })
	if err != nil {
		r.down.OnError(err)
		return
	}
	if !again {
		r.down.OnComplete()
		return
	}
	r.subscribeNext()
}

func (rr repeatRound[T]) OnError(err error) { rr.r.down.OnError(err) }

type ensureLastSubscriber[T any] struct {
	down     Subscriber[T]
	isLast   func(T) bool
	last     func() T
	upstream Subscription

	mu          sync.Mutex
	outstanding int64
	sawLast     bool
	pending     bool
	done        bool
}

func (e *ensureLastSubscriber[T]) OnSubscribe(s Subscription) {
	e.upstream = s
	e.down.OnSubscribe(e)
}

func (e *ensureLastSubscriber[T]) Request(n int64) {
	e.mu.Lock()
	if e.pending {
		e.pending = false
		e.done = true
		e.mu.Unlock()
		e.emitLast()
		return
	}
	e.outstanding = AddDemand(e.outstanding, n)
	done := e.done
	e.mu.Unlock()
	if !done {
		e.upstream.Request(n)
	}
}

func (e *ensureLastSubscriber[T]) Cancel() { e.upstream.Cancel() }

func (e *ensureLastSubscriber[T]) OnNext(v T) {
	e.mu.Lock()
	e.outstanding = takeDemand(e.outstanding)
	e.mu.Unlock()
	last := e.isLast(v)
	e.mu.Lock()
	e.sawLast = last
	e.mu.Unlock()
	e.down.OnNext(v)
}

func (e *ensureLastSubscriber[T]) OnComplete() {
	e.mu.Lock()
	if e.sawLast {
		e.done = true
		e.mu.Unlock()
		e.down.OnComplete()
		return
	}
	if e.outstanding == 0 {
		e.pending = true
		e.mu.Unlock()
		return
	}
	e.outstanding = takeDemand(e.outstanding)
	e.done = true
	e.mu.Unlock()
	e.emitLast()
}

func (e *ensureLastSubscriber[T]) OnError(err error) { e.down.OnError(err) }

func (e *ensureLastSubscriber[T]) emitLast() {
	v, err := call(e.last)
	if err != nil {
		e.down.OnError(err)
		return
	}
	e.down.OnNext(v)
	e.down.OnComplete()
}
