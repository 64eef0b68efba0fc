package httpserver

import (
	"math"
	"sync"

	"github.com/yndnr/rxhttp-go/internal/core/domain"
	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

// Splice splits src into its leading meta item of type M and a body
// Publisher of the P items that follow, combined by pack.
//
// The body Publisher accepts one subscriber; later subscribers fail with
// concurrent.ErrDuplicateSubscribe. Body items that arrive before the body is
// subscribed, including up to prefetch items requested together with the
// meta, are buffered and replayed in order.
//
// Cancelling the result before the meta cancels src. Cancelling it after the
// meta discards a body nobody has subscribed to yet: src is cancelled and a
// later body subscriber fails with domain.ErrBodyDiscarded. A subscribed body
// is left alone.
func Splice[M, P, R any](src *concurrent.Publisher[any], prefetch int, pack func(M, *concurrent.Publisher[P]) R) *concurrent.Single[R] {
	if prefetch < 0 {
		prefetch = 0
	}
	return concurrent.NewSingle(func(sub concurrent.SingleSubscriber[R]) {
		s := &splicer[M, P, R]{down: sub, pack: pack, credit: int64(prefetch)}
		sub.OnSubscribe(concurrent.CancellableFunc(s.cancelOuter))
		src.Subscribe(s)
	})
}

type spliceState int

const (
	awaitingMeta spliceState = iota
	metaDelivered
	spliceTerminated
)

type splicer[M, P, R any] struct {
	down concurrent.SingleSubscriber[R]
	pack func(M, *concurrent.Publisher[P]) R

	mu       sync.Mutex
	state    spliceState
	upstream concurrent.Subscription
	// An outer cancel that arrived before the upstream subscription.
	cancelPending bool
	// Requested from upstream with the meta but not yet owed to the body.
	credit int64

	body *spliceBody[P]
}

func (s *splicer[M, P, R]) cancelOuter() {
	s.mu.Lock()
	if s.state != awaitingMeta {
		body := s.body
		s.mu.Unlock()
		if body != nil && body.discard() {
			s.cancelUpstream()
		}
		return
	}
	s.state = spliceTerminated
	upstream := s.upstream
	if upstream == nil {
		s.cancelPending = true
	}
	s.mu.Unlock()
	if upstream != nil {
		upstream.Cancel()
	}
}

func (s *splicer[M, P, R]) OnSubscribe(sub concurrent.Subscription) {
	s.mu.Lock()
	s.upstream = sub
	cancelled := s.cancelPending
	s.mu.Unlock()
	if cancelled {
		sub.Cancel()
		return
	}
	sub.Request(1 + s.credit)
}

func (s *splicer[M, P, R]) OnNext(item any) {
	s.mu.Lock()
	switch s.state {
	case awaitingMeta:
		meta, ok := item.(M)
		if !ok {
			s.state = spliceTerminated
			upstream := s.upstream
			s.mu.Unlock()
			upstream.Cancel()
			s.down.OnError(domain.ErrUnexpectedItem.WithDetails("first item is " + typeName(item)))
			return
		}
		s.state = metaDelivered
		s.body = &spliceBody[P]{splicer: s}
		body := concurrent.NewPublisher(s.body.subscribe)
		s.mu.Unlock()
		s.down.OnSuccess(s.pack(meta, body))
	case metaDelivered:
		body := s.body
		s.mu.Unlock()
		chunk, ok := item.(P)
		if !ok {
			s.upstream.Cancel()
			body.terminate(domain.ErrUnexpectedItem.WithDetails("body item is " + typeName(item)))
			return
		}
		body.push(chunk)
	default:
		s.mu.Unlock()
	}
}

func (s *splicer[M, P, R]) OnComplete() { s.onTerminal(nil) }

func (s *splicer[M, P, R]) OnError(err error) { s.onTerminal(err) }

func (s *splicer[M, P, R]) onTerminal(err error) {
	s.mu.Lock()
	switch s.state {
	case awaitingMeta:
		s.state = spliceTerminated
		s.mu.Unlock()
		if err == nil {
			err = domain.ErrNoMeta
		}
		s.down.OnError(err)
	case metaDelivered:
		s.state = spliceTerminated
		body := s.body
		s.mu.Unlock()
		body.terminate(err)
	default:
		s.mu.Unlock()
	}
}

// forward converts body demand into upstream demand, spending prefetch
// credit first.
func (s *splicer[M, P, R]) forward(n int64) {
	s.mu.Lock()
	fromCredit := min(n, s.credit)
	s.credit -= fromCredit
	upstream := s.upstream
	s.mu.Unlock()
	if n -= fromCredit; n > 0 {
		upstream.Request(n)
	}
}

func (s *splicer[M, P, R]) cancelUpstream() {
	s.mu.Lock()
	upstream := s.upstream
	s.mu.Unlock()
	upstream.Cancel()
}

// upstreamControl is what the body needs from its splicer.
type upstreamControl interface {
	forward(n int64)
	cancelUpstream()
}

// spliceBody buffers body items until its single subscriber asks for them.
// The buffer only ever holds items upstream was asked for.
type spliceBody[P any] struct {
	splicer upstreamControl

	mu         sync.Mutex
	sub        concurrent.Subscriber[P]
	queue      []P
	demand     int64
	cancelled  bool
	discarded  bool
	terminated bool
	err        error
	delivered  bool
	emitting   bool
	missed     bool
}

func (b *spliceBody[P]) subscribe(sub concurrent.Subscriber[P]) {
	b.mu.Lock()
	if b.sub != nil {
		b.mu.Unlock()
		sub.OnSubscribe(concurrent.EmptySubscription)
		sub.OnError(concurrent.ErrDuplicateSubscribe)
		return
	}
	if b.discarded {
		b.mu.Unlock()
		sub.OnSubscribe(concurrent.EmptySubscription)
		sub.OnError(domain.ErrBodyDiscarded)
		return
	}
	b.sub = sub
	b.mu.Unlock()
	sub.OnSubscribe(bodySubscription[P]{b})
	b.drain()
}

// discard drops a body that has no subscriber. It reports whether upstream
// still has to be cancelled.
func (b *spliceBody[P]) discard() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil || b.discarded {
		return false
	}
	b.discarded = true
	b.cancelled = true
	b.queue = nil
	return !b.terminated
}

func (b *spliceBody[P]) push(item P) {
	b.mu.Lock()
	if b.cancelled {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, item)
	b.mu.Unlock()
	b.drain()
}

func (b *spliceBody[P]) terminate(err error) {
	b.mu.Lock()
	if b.terminated {
		b.mu.Unlock()
		return
	}
	b.terminated = true
	b.err = err
	b.mu.Unlock()
	b.drain()
}

// drain emits buffered items while demand lasts and delivers the terminal
// once the buffer is empty. Calls made during a drain are folded into it.
func (b *spliceBody[P]) drain() {
	b.mu.Lock()
	if b.emitting {
		b.missed = true
		b.mu.Unlock()
		return
	}
	b.emitting = true
	for {
		b.missed = false
		for b.sub != nil && !b.cancelled && b.demand > 0 && len(b.queue) > 0 {
			item := b.queue[0]
			var zero P
			b.queue[0] = zero
			b.queue = b.queue[1:]
			if b.demand != math.MaxInt64 {
				b.demand--
			}
			sub := b.sub
			b.mu.Unlock()
			sub.OnNext(item)
			b.mu.Lock()
		}
		if b.sub != nil && !b.cancelled && !b.delivered && b.terminated && len(b.queue) == 0 {
			b.delivered = true
			sub, err := b.sub, b.err
			b.mu.Unlock()
			if err != nil {
				sub.OnError(err)
			} else {
				sub.OnComplete()
			}
			b.mu.Lock()
		}
		if !b.missed {
			b.emitting = false
			b.mu.Unlock()
			return
		}
	}
}

type bodySubscription[P any] struct{ b *spliceBody[P] }

func (s bodySubscription[P]) Request(n int64) {
	b := s.b
	b.mu.Lock()
	if b.cancelled {
		b.mu.Unlock()
		return
	}
	b.demand = concurrent.AddDemand(b.demand, n)
	done := b.terminated
	b.mu.Unlock()
	b.drain()
	if !done {
		b.splicer.forward(n)
	}
}

func (s bodySubscription[P]) Cancel() {
	b := s.b
	b.mu.Lock()
	if b.cancelled {
		b.mu.Unlock()
		return
	}
	b.cancelled = true
	b.queue = nil
	done := b.terminated
	b.mu.Unlock()
	if !done {
		b.splicer.cancelUpstream()
	}
}
