package transport

import (
	"fmt"
	"sync"

	"github.com/yndnr/rxhttp-go/internal/core/domain"
	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

// FlushStrategy decides when buffered bytes are written to the socket.
// Buffered bytes are always flushed when the written stream terminates.
type FlushStrategy interface {
	// ShouldFlush is called after item has been encoded. pending counts the
	// items encoded since the last flush, item included.
	ShouldFlush(item any, pending int) bool
}

type flushFunc func(item any, pending int) bool

func (f flushFunc) ShouldFlush(item any, pending int) bool { return f(item, pending) }

// FlushOnEach flushes after every item.
var FlushOnEach FlushStrategy = flushFunc(func(any, int) bool { return true })

// FlushOnEnd flushes at the end of every message body.
var FlushOnEnd FlushStrategy = flushFunc(func(item any, _ int) bool { return domain.IsLastChunk(item) })

// FlushBatch flushes every n items and at the end of every message body.
func FlushBatch(n int) FlushStrategy {
	if n <= 1 {
		return FlushOnEach
	}
	return flushFunc(func(item any, pending int) bool {
		return pending >= n || domain.IsLastChunk(item)
	})
}

// Write encodes every item of src, requesting one item at a time. The result
// completes once src completes and its bytes are flushed. A failed write or a
// cancelled result closes the connection.
func (c *Connection) Write(src *concurrent.Publisher[any], strategy FlushStrategy) *concurrent.Completable {
	if strategy == nil {
		strategy = FlushOnEach
	}
	return concurrent.NewCompletable(func(sub concurrent.CompletableSubscriber) {
		w := &writeSubscriber{c: c, down: sub, strategy: strategy}
		sub.OnSubscribe(w)
		src.Subscribe(w)
	})
}

type writeSubscriber struct {
	c        *Connection
	down     concurrent.CompletableSubscriber
	strategy FlushStrategy

	mu        sync.Mutex
	upstream  concurrent.Subscription
	cancelled bool
	failed    bool
	pending   int
}

func (w *writeSubscriber) OnSubscribe(s concurrent.Subscription) {
	w.mu.Lock()
	w.upstream = s
	cancelled := w.cancelled
	w.mu.Unlock()
	if cancelled {
		s.Cancel()
		return
	}
	s.Request(1)
}

func (w *writeSubscriber) OnNext(item any) {
	if err := w.write(item); err != nil {
		w.mu.Lock()
		w.failed = true
		upstream := w.upstream
		w.mu.Unlock()
		upstream.Cancel()
		w.c.closeNow()
		w.down.OnError(err)
		return
	}
	w.mu.Lock()
	upstream := w.upstream
	failed := w.failed || w.cancelled
	w.mu.Unlock()
	if !failed {
		upstream.Request(1)
	}
}

func (w *writeSubscriber) write(item any) error {
	if err := w.c.encode(item); err != nil {
		return err
	}
	w.pending++
	if !w.strategy.ShouldFlush(item, w.pending) {
		return nil
	}
	w.pending = 0
	return w.c.flush()
}

func (w *writeSubscriber) OnComplete() {
	if w.isFailed() {
		return
	}
	if err := w.c.flush(); err != nil {
		w.c.closeNow()
		w.down.OnError(err)
		return
	}
	w.down.OnComplete()
}

func (w *writeSubscriber) OnError(err error) {
	if w.isFailed() {
		return
	}
	// Bytes already encoded belong to a response the peer may still use.
	_ = w.c.flush()
	w.down.OnError(err)
}

func (w *writeSubscriber) isFailed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failed
}

// Cancel stops writing and closes the connection.
func (w *writeSubscriber) Cancel() {
	w.mu.Lock()
	if w.cancelled {
		w.mu.Unlock()
		return
	}
	w.cancelled = true
	upstream := w.upstream
	w.mu.Unlock()
	if upstream != nil {
		upstream.Cancel()
	}
	w.c.closeNow()
}

func typeName(v any) string { return fmt.Sprintf("%T", v) }
