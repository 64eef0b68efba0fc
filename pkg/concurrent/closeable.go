package concurrent

import "sync"

// AsyncCloseable is a resource closed through a Completable.
type AsyncCloseable interface {
	CloseAsync() *Completable
}

// ListenableAsyncCloseable also exposes a Completable that terminates once the
// resource is closed, however the close was triggered.
type ListenableAsyncCloseable interface {
	AsyncCloseable
	OnClose() *Completable
}

// AsyncCloseFunc adapts a function to AsyncCloseable.
type AsyncCloseFunc func() *Completable

// CloseAsync calls f.
func (f AsyncCloseFunc) CloseAsync() *Completable { return f() }

// ToListenableAsyncCloseable makes c listenable. Closing the result more than
// once closes c once.
func ToListenableAsyncCloseable(c AsyncCloseable) ListenableAsyncCloseable {
	return &listenableCloseable{delegate: c, done: NewCompletableProcessor()}
}

type listenableCloseable struct {
	delegate AsyncCloseable
	once     sync.Once
	done     *CompletableProcessor
}

func (l *listenableCloseable) CloseAsync() *Completable {
	return NewCompletable(func(sub CompletableSubscriber) {
		l.once.Do(func() {
			l.delegate.CloseAsync().SubscribeFunc(l.done.Complete, l.done.Fail)
		})
		l.done.Completable().Subscribe(sub)
	})
}

func (l *listenableCloseable) OnClose() *Completable { return l.done.Completable() }

// CompositeCloseable closes its members one after another in the order they
// were added. A failing member does not stop the rest; the first error is
// reported once all members are closed.
type CompositeCloseable struct {
	mu      sync.Mutex
	members []AsyncCloseable
}

// NewCompositeCloseable returns an empty CompositeCloseable.
func NewCompositeCloseable() *CompositeCloseable {
	return &CompositeCloseable{}
}

// Concat appends members and returns c.
func (c *CompositeCloseable) Concat(members ...AsyncCloseable) *CompositeCloseable {
	c.mu.Lock()
	c.members = append(c.members, members...)
	c.mu.Unlock()
	return c
}

// CloseAsync implements AsyncCloseable.
func (c *CompositeCloseable) CloseAsync() *Completable {
	return DeferCompletable(func() *Completable {
		c.mu.Lock()
		members := append([]AsyncCloseable(nil), c.members...)
		c.mu.Unlock()

		var (
			mu    sync.Mutex
			first error
		)
		record := func(err error) *Completable {
			mu.Lock()
			if first == nil {
				first = err
			}
			mu.Unlock()
			return Completed()
		}
		chain := Completed()
		for _, m := range members {
			chain = chain.AndThen(DeferCompletable(func() *Completable {
				return m.CloseAsync()
			}).OnErrorResume(record))
		}
		return chain.AndThen(FromFunc(func() error {
			mu.Lock()
			defer mu.Unlock()
			return first
		}))
	})
}

// CompletableProcessor is a Completable that is terminated from the outside.
// Subscribers arriving after termination see the stored result.
type CompletableProcessor struct {
	mu      sync.Mutex
	done    bool
	err     error
	waiters []*waiter
}

type waiter struct{ sub CompletableSubscriber }

// NewCompletableProcessor returns a pending CompletableProcessor.
func NewCompletableProcessor() *CompletableProcessor {
	return &CompletableProcessor{}
}

// Complete terminates p successfully. Only the first Complete or Fail counts.
func (p *CompletableProcessor) Complete() { p.terminate(nil) }

// Fail terminates p with err.
func (p *CompletableProcessor) Fail(err error) { p.terminate(err) }

func (p *CompletableProcessor) terminate(err error) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	p.err = err
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()
	for _, w := range waiters {
		deliver(w.sub, err)
	}
}

// Done reports whether p has terminated.
func (p *CompletableProcessor) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Completable returns a view of p.
func (p *CompletableProcessor) Completable() *Completable {
	return NewCompletable(func(sub CompletableSubscriber) {
		w := &waiter{sub: sub}
		sub.OnSubscribe(CancellableFunc(func() { p.drop(w) }))
		p.mu.Lock()
		if p.done {
			err := p.err
			p.mu.Unlock()
			deliver(sub, err)
			return
		}
		p.waiters = append(p.waiters, w)
		p.mu.Unlock()
	})
}

func (p *CompletableProcessor) drop(target *waiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == target {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

func deliver(sub CompletableSubscriber, err error) {
	if err != nil {
		sub.OnError(err)
		return
	}
	sub.OnComplete()
}
