package concurrent

import (
	"math"
	"sync"
	"sync/atomic"
)

// Cancellable requests that a producer stops emitting and releases its
// resources. Cancel is idempotent.
type Cancellable interface {
	Cancel()
}

// CancellableFunc adapts a function to Cancellable.
type CancellableFunc func()

// Cancel calls f.
func (f CancellableFunc) Cancel() { f() }

// IgnoreCancel is a Cancellable that does nothing.
var IgnoreCancel Cancellable = CancellableFunc(func() {})

// Subscription is the handle a Publisher gives its subscriber. Request signals
// how many more items the subscriber can accept.
type Subscription interface {
	Cancellable
	Request(n int64)
}

type noopSubscription struct{}

func (noopSubscription) Request(int64) {}
func (noopSubscription) Cancel()       {}

// EmptySubscription is a Subscription that ignores requests and cancellation.
var EmptySubscription Subscription = noopSubscription{}

// SequentialCancellable holds the Cancellable of the current stage of a
// multi-stage operation. Once cancelled, every later Set cancels immediately.
type SequentialCancellable struct {
	mu        sync.Mutex
	current   Cancellable
	cancelled bool
}

// Set replaces the current Cancellable.
func (s *SequentialCancellable) Set(c Cancellable) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		c.Cancel()
		return
	}
	s.current = c
	s.mu.Unlock()
}

// Cancel cancels the current Cancellable and all future ones.
func (s *SequentialCancellable) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	c := s.current
	s.current = nil
	s.mu.Unlock()
	if c != nil {
		c.Cancel()
	}
}

// Cancelled reports whether Cancel was called.
func (s *SequentialCancellable) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// AddDemand adds n to cur, saturating at math.MaxInt64 (unbounded).
func AddDemand(cur, n int64) int64 {
	if cur == math.MaxInt64 || n == math.MaxInt64 {
		return math.MaxInt64
	}
	r := cur + n
	if r < 0 {
		return math.MaxInt64
	}
	return r
}

// takeDemand consumes one unit of demand unless it is unbounded.
func takeDemand(cur int64) int64 {
	if cur == math.MaxInt64 {
		return cur
	}
	return cur - 1
}

func addDemandAtomic(d *atomic.Int64, n int64) {
	for {
		cur := d.Load()
		if d.CompareAndSwap(cur, AddDemand(cur, n)) {
			return
		}
	}
}

func takeDemandAtomic(d *atomic.Int64) {
	for {
		cur := d.Load()
		if cur == math.MaxInt64 || d.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}
