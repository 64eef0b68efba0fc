package tracer

import "github.com/yndnr/rxhttp-go/pkg/concurrent"

type singleTracer SubscriptionTracer

func (t *singleTracer) HandleSubscribe(sub concurrent.SingleSubscriber[any], subscribe func(concurrent.SingleSubscriber[any])) {
	subscribe(&tracedSingle{down: sub, span: (*SubscriptionTracer)(t).begin(KindSingle)})
}

type tracedSingle struct {
	down concurrent.SingleSubscriber[any]
	span *span
}

func (s *tracedSingle) OnSubscribe(c concurrent.Cancellable) { s.down.OnSubscribe(s.span.cancellable(c)) }

func (s *tracedSingle) OnSuccess(v any) {
	s.span.end("complete", nil)
	s.down.OnSuccess(v)
}

func (s *tracedSingle) OnError(err error) {
	s.span.end("error", err)
	s.down.OnError(err)
}

type completableTracer SubscriptionTracer

func (t *completableTracer) HandleSubscribe(sub concurrent.CompletableSubscriber, subscribe func(concurrent.CompletableSubscriber)) {
	subscribe(&tracedCompletable{down: sub, span: (*SubscriptionTracer)(t).begin(KindCompletable)})
}

type tracedCompletable struct {
	down concurrent.CompletableSubscriber
	span *span
}

func (s *tracedCompletable) OnSubscribe(c concurrent.Cancellable) {
	s.down.OnSubscribe(s.span.cancellable(c))
}

func (s *tracedCompletable) OnComplete() {
	s.span.end("complete", nil)
	s.down.OnComplete()
}

func (s *tracedCompletable) OnError(err error) {
	s.span.end("error", err)
	s.down.OnError(err)
}

type publisherTracer SubscriptionTracer

func (t *publisherTracer) HandleSubscribe(sub concurrent.Subscriber[any], subscribe func(concurrent.Subscriber[any])) {
	subscribe(&tracedPublisher{down: sub, span: (*SubscriptionTracer)(t).begin(KindPublisher)})
}

type tracedPublisher struct {
	down concurrent.Subscriber[any]
	span *span
}

func (s *tracedPublisher) OnSubscribe(sub concurrent.Subscription) {
	s.down.OnSubscribe(tracedSubscription{Subscription: sub, span: s.span})
}

func (s *tracedPublisher) OnNext(v any) { s.down.OnNext(v) }

func (s *tracedPublisher) OnComplete() {
	s.span.end("complete", nil)
	s.down.OnComplete()
}

func (s *tracedPublisher) OnError(err error) {
	s.span.end("error", err)
	s.down.OnError(err)
}

type tracedSubscription struct {
	concurrent.Subscription
	span *span
}

func (t tracedSubscription) Cancel() {
	t.span.end("cancel", nil)
	t.Subscription.Cancel()
}
