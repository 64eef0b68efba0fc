package concurrent

import (
	"context"
	"sync"
)

// Completable is a lazy asynchronous computation that only completes or fails.
type Completable struct {
	handle func(CompletableSubscriber)
}

// NewCompletable creates a Completable whose subscription runs handle.
func NewCompletable(handle func(CompletableSubscriber)) *Completable {
	return &Completable{handle: handle}
}

// Completed returns a Completable that completes immediately.
func Completed() *Completable {
	return NewCompletable(func(sub CompletableSubscriber) {
		sub.OnSubscribe(IgnoreCancel)
		sub.OnComplete()
	})
}

// FailedCompletable returns a Completable that fails with err.
func FailedCompletable(err error) *Completable {
	return NewCompletable(func(sub CompletableSubscriber) {
		sub.OnSubscribe(IgnoreCancel)
		sub.OnError(err)
	})
}

// DeferCompletable calls factory on every subscription.
func DeferCompletable(factory func() *Completable) *Completable {
	return NewCompletable(func(sub CompletableSubscriber) {
		factory().Subscribe(sub)
	})
}

// FromFunc returns a Completable running fn synchronously on subscribe.
func FromFunc(fn func() error) *Completable {
	return NewCompletable(func(sub CompletableSubscriber) {
		sub.OnSubscribe(IgnoreCancel)
		if err := fn(); err != nil {
			sub.OnError(err)
			return
		}
		sub.OnComplete()
	})
}

// Subscribe starts the computation, routed through registered CompletablePlugins.
func (c *Completable) Subscribe(subscriber CompletableSubscriber) {
	guard := &completableGuard{dst: subscriber}
	defer func() {
		if r := recover(); r != nil && !guard.fail(panicError(r)) {
			reportLatePanic("completable", r)
		}
	}()
	plugins := completablePlugins.load()
	if len(plugins) == 0 {
		c.handle(guard)
		return
	}
	completableChain(plugins).HandleSubscribe(guard, func(wrapped CompletableSubscriber) {
		c.handle(wrapped)
	})
}

// SubscribeFunc subscribes with callbacks; nil callbacks are ignored.
func (c *Completable) SubscribeFunc(onComplete func(), onError func(error)) Cancellable {
	sub := &funcCompletableSubscriber{onComplete: onComplete, onError: onError}
	c.Subscribe(sub)
	return sub
}

// AndThen subscribes to next after c completes.
func (c *Completable) AndThen(next *Completable) *Completable {
	return NewCompletable(func(sub CompletableSubscriber) {
		a := &andThen{down: sub, next: next}
		sub.OnSubscribe(&a.cancel)
		c.Subscribe(a)
	})
}

// OnErrorResume subscribes to the Completable returned by fn when c fails.
func (c *Completable) OnErrorResume(fn func(error) *Completable) *Completable {
	return NewCompletable(func(sub CompletableSubscriber) {
		r := &resumeCompletable{down: sub, fn: fn}
		sub.OnSubscribe(&r.cancel)
		c.Subscribe(r)
	})
}

// Await blocks until c terminates or ctx is done.
func (c *Completable) Await(ctx context.Context) error {
	ch := make(chan error, 1)
	h := c.SubscribeFunc(func() { ch <- nil }, func(err error) { ch <- err })
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		h.Cancel()
		return ctx.Err()
	}
}

type funcCompletableSubscriber struct {
	mu         sync.Mutex
	c          Cancellable
	cancelled  bool
	onComplete func()
	onError    func(error)
}

func (f *funcCompletableSubscriber) OnSubscribe(c Cancellable) {
	f.mu.Lock()
	if f.cancelled {
		f.mu.Unlock()
		c.Cancel()
		return
	}
	f.c = c
	f.mu.Unlock()
}

func (f *funcCompletableSubscriber) OnComplete() {
	if f.onComplete != nil {
		f.onComplete()
	}
}

func (f *funcCompletableSubscriber) OnError(err error) {
	if f.onError != nil {
		f.onError(err)
	}
}

func (f *funcCompletableSubscriber) Cancel() {
	f.mu.Lock()
	f.cancelled = true
	c := f.c
	f.mu.Unlock()
	if c != nil {
		c.Cancel()
	}
}

type andThen struct {
	down   CompletableSubscriber
	next   *Completable
	cancel SequentialCancellable
}

func (a *andThen) OnSubscribe(c Cancellable) { a.cancel.Set(c) }
func (a *andThen) OnComplete()               { a.next.Subscribe(forwardCompletable{a.down, &a.cancel}) }
func (a *andThen) OnError(err error)         { a.down.OnError(err) }

type resumeCompletable struct {
	down   CompletableSubscriber
	fn     func(error) *Completable
	cancel SequentialCancellable
}

func (r *resumeCompletable) OnSubscribe(c Cancellable) { r.cancel.Set(c) }
func (r *resumeCompletable) OnComplete()               { r.down.OnComplete() }

func (r *resumeCompletable) OnError(err error) {
	next, ferr := call(func() *Completable { return r.fn(err) })
	if ferr != nil {
		r.down.OnError(ferr)
		return
	}
	next.Subscribe(forwardCompletable{r.down, &r.cancel})
}

// forwardCompletable relays a follow-up stage to an already subscribed
// downstream, publishing the stage's Cancellable into cancel.
type forwardCompletable struct {
	down   CompletableSubscriber
	cancel *SequentialCancellable
}

func (f forwardCompletable) OnSubscribe(c Cancellable) { f.cancel.Set(c) }
func (f forwardCompletable) OnComplete()               { f.down.OnComplete() }
func (f forwardCompletable) OnError(err error)         { f.down.OnError(err) }
