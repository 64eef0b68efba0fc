package concurrent

import (
	"sync"
	"time"
)

// Executor runs tasks off the calling goroutine.
type Executor interface {
	// Execute runs task asynchronously. The returned Cancellable prevents the
	// task from starting if it has not yet.
	Execute(task func()) (Cancellable, error)

	// Schedule returns a Completable that completes d after it is subscribed.
	// Cancelling the subscription stops the timer.
	Schedule(d time.Duration) *Completable

	// CloseAsync stops accepting tasks and completes once running tasks end.
	CloseAsync() *Completable
}

// NewExecutor returns an Executor that starts one goroutine per task.
func NewExecutor() *GoExecutor {
	return &GoExecutor{}
}

// GoExecutor is the default goroutine-backed Executor.
type GoExecutor struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	timers map[*pendingTimer]struct{}
}

type pendingTimer struct {
	sub   CompletableSubscriber
	timer *time.Timer
}

// Execute runs task on a new goroutine.
func (e *GoExecutor) Execute(task func()) (Cancellable, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrExecutorClosed
	}
	e.wg.Add(1)
	e.mu.Unlock()

	var once sync.Once
	claim := func() bool {
		claimed := false
		once.Do(func() { claimed = true })
		return claimed
	}
	go func() {
		defer e.wg.Done()
		if !claim() {
			return
		}
		if _, err := call(func() struct{} { task(); return struct{}{} }); err != nil {
			reportLatePanic("executor", err)
		}
	}()
	return CancellableFunc(func() { claim() }), nil
}

// Schedule implements Executor.
func (e *GoExecutor) Schedule(d time.Duration) *Completable {
	return NewCompletable(func(sub CompletableSubscriber) {
		p := &pendingTimer{sub: sub}
		sub.OnSubscribe(CancellableFunc(func() { e.stop(p) }))

		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			sub.OnError(ErrExecutorClosed)
			return
		}
		defer e.mu.Unlock()
		if e.timers == nil {
			e.timers = make(map[*pendingTimer]struct{})
		}
		e.timers[p] = struct{}{}
		p.timer = time.AfterFunc(d, func() {
			if e.untrack(p) {
				sub.OnComplete()
			}
		})
	})
}

// untrack removes p and reports whether it was still pending.
func (e *GoExecutor) untrack(p *pendingTimer) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.timers[p]; !ok {
		return false
	}
	delete(e.timers, p)
	return true
}

func (e *GoExecutor) stop(p *pendingTimer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.timers[p]; !ok {
		return
	}
	delete(e.timers, p)
	p.timer.Stop()
}

// CloseAsync implements Executor. Pending timers are stopped and their
// subscribers fail with ErrExecutorClosed.
func (e *GoExecutor) CloseAsync() *Completable {
	return NewCompletable(func(sub CompletableSubscriber) {
		sub.OnSubscribe(IgnoreCancel)
		e.mu.Lock()
		e.closed = true
		stopped := make([]*pendingTimer, 0, len(e.timers))
		for p := range e.timers {
			p.timer.Stop()
			stopped = append(stopped, p)
		}
		e.timers = nil
		e.mu.Unlock()
		for _, p := range stopped {
			p.sub.OnError(ErrExecutorClosed)
		}
		go func() {
			e.wg.Wait()
			sub.OnComplete()
		}()
	})
}

// FromBlocking runs fn on executor and emits its result.
func FromBlocking[T any](executor Executor, fn func() (T, error)) *Single[T] {
	return NewSingle(func(sub SingleSubscriber[T]) {
		var cancel SequentialCancellable
		sub.OnSubscribe(&cancel)
		type result struct {
			v   T
			err error
		}
		c, err := executor.Execute(func() {
			r, perr := call(func() result {
				v, err := fn()
				return result{v, err}
			})
			switch {
			case perr != nil:
				sub.OnError(perr)
			case r.err != nil:
				sub.OnError(r.err)
			default:
				sub.OnSuccess(r.v)
			}
		})
		if err != nil {
			sub.OnError(err)
			return
		}
		cancel.Set(c)
	})
}
