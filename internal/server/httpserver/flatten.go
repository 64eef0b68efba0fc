package httpserver

import (
	"fmt"
	"math"
	"sync"

	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

// Flatten emits meta followed by every item of body as one object stream.
// body is subscribed after meta has been requested and delivered.
func Flatten[M, P any](meta M, body *concurrent.Publisher[P]) *concurrent.Publisher[any] {
	return concurrent.NewPublisher(func(sub concurrent.Subscriber[any]) {
		sub.OnSubscribe(&flattenSubscription[M, P]{down: sub, meta: meta, body: body})
	})
}

type flattenSubscription[M, P any] struct {
	down concurrent.Subscriber[any]
	meta M
	body *concurrent.Publisher[P]

	mu        sync.Mutex
	metaSent  bool
	upstream  concurrent.Subscription
	pending   int64
	cancelled bool
}

func (f *flattenSubscription[M, P]) Request(n int64) {
	f.mu.Lock()
	if f.cancelled {
		f.mu.Unlock()
		return
	}
	if !f.metaSent {
		f.metaSent = true
		if n != math.MaxInt64 {
			n--
		}
		f.pending = concurrent.AddDemand(f.pending, n)
		f.mu.Unlock()
		f.down.OnNext(f.meta)
		f.body.Subscribe(flattenBody[M, P]{f})
		return
	}
	upstream := f.upstream
	if upstream == nil {
		f.pending = concurrent.AddDemand(f.pending, n)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	upstream.Request(n)
}

func (f *flattenSubscription[M, P]) Cancel() {
	f.mu.Lock()
	if f.cancelled {
		f.mu.Unlock()
		return
	}
	f.cancelled = true
	upstream := f.upstream
	f.mu.Unlock()
	if upstream != nil {
		upstream.Cancel()
	}
}

type flattenBody[M, P any] struct{ f *flattenSubscription[M, P] }

func (b flattenBody[M, P]) OnSubscribe(s concurrent.Subscription) {
	f := b.f
	f.mu.Lock()
	if f.cancelled {
		f.mu.Unlock()
		s.Cancel()
		return
	}
	f.upstream = s
	n := f.pending
	f.pending = 0
	f.mu.Unlock()
	if n > 0 {
		s.Request(n)
	}
}

func (b flattenBody[M, P]) OnNext(v P)        { b.f.down.OnNext(v) }
func (b flattenBody[M, P]) OnComplete()       { b.f.down.OnComplete() }
func (b flattenBody[M, P]) OnError(err error) { b.f.down.OnError(err) }

func typeName(v any) string { return fmt.Sprintf("%T", v) }
