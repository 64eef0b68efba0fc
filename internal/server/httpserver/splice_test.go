package httpserver

import (
	"errors"
	"testing"

	"github.com/yndnr/rxhttp-go/internal/core/domain"
	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

type splicedPair struct {
	meta string
	body *concurrent.Publisher[int]
}

func pair(meta string, body *concurrent.Publisher[int]) splicedPair {
	return splicedPair{meta: meta, body: body}
}

type singleResult struct {
	v   splicedPair
	err error
	n   int
}

func subscribeSplice(src *manualSource, prefetch int) (*singleResult, concurrent.Cancellable) {
	res := &singleResult{}
	c := Splice(src.publisher(), prefetch, pair).SubscribeFunc(
		func(v splicedPair) { res.v = v; res.n++ },
		func(err error) { res.err = err; res.n++ },
	)
	return res, c
}

func TestSpliceDeliversMetaAndBody(t *testing.T) {
	src := &manualSource{}
	res, _ := subscribeSplice(src, 0)

	if requested, _ := src.state(); requested != 1 {
		t.Fatalf("initial demand = %d, want 1", requested)
	}
	src.emit("meta")
	if res.n != 1 || res.err != nil || res.v.meta != "meta" {
		t.Fatalf("outer result = %+v", res)
	}

	body := newRecorder[int]()
	res.v.body.Subscribe(body)
	body.request(10)
	if requested, _ := src.state(); requested != 11 {
		t.Errorf("demand after body request = %d, want 11", requested)
	}

	src.emit(1, 2, 3)
	src.complete()
	body.wait(t)
	items, completes, errs := body.snapshot()
	if len(items) != 3 || items[0] != 1 || items[2] != 3 || completes != 1 || len(errs) != 0 {
		t.Errorf("body = %v completes=%d errs=%v", items, completes, errs)
	}
}

func TestSpliceSecondBodySubscriberFails(t *testing.T) {
	src := &manualSource{}
	res, _ := subscribeSplice(src, 0)
	src.emit("meta")

	first := newRecorder[int]()
	res.v.body.Subscribe(first)
	first.request(5)

	second := newRecorder[int]()
	res.v.body.Subscribe(second)
	second.wait(t)
	if _, _, errs := second.snapshot(); len(errs) != 1 || !errors.Is(errs[0], concurrent.ErrDuplicateSubscribe) {
		t.Fatalf("second subscriber errors = %v, want ErrDuplicateSubscribe", errs)
	}

	src.emit(7)
	src.complete()
	first.wait(t)
	if items, completes, errs := first.snapshot(); len(items) != 1 || completes != 1 || len(errs) != 0 {
		t.Errorf("first subscriber = %v completes=%d errs=%v", items, completes, errs)
	}
	if _, cancelled := src.state(); cancelled {
		t.Error("duplicate subscription cancelled the source")
	}
}

func TestSpliceTerminalBeforeMeta(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		end  func(*manualSource)
		want error
	}{
		{"error", func(s *manualSource) { s.fail(boom) }, boom},
		{"complete", func(s *manualSource) { s.complete() }, domain.ErrNoMeta},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &manualSource{}
			res, _ := subscribeSplice(src, 0)
			tt.end(src)
			if res.n != 1 || !errors.Is(res.err, tt.want) {
				t.Errorf("outer = %+v, want error %v", res, tt.want)
			}
			if res.v.body != nil {
				t.Error("a body was produced")
			}
		})
	}
}

func TestSpliceRejectsNonMetaFirstItem(t *testing.T) {
	src := &manualSource{}
	res, _ := subscribeSplice(src, 0)
	src.emit(42)

	if !errors.Is(res.err, domain.ErrUnexpectedItem) {
		t.Errorf("outer error = %v, want ErrUnexpectedItem", res.err)
	}
	if _, cancelled := src.state(); !cancelled {
		t.Error("source not cancelled")
	}
}

func TestSpliceBuffersPrefetchedItems(t *testing.T) {
	src := &manualSource{}
	res, _ := subscribeSplice(src, 2)
	if requested, _ := src.state(); requested != 3 {
		t.Fatalf("initial demand = %d, want 3", requested)
	}
	src.emit("meta", 1, 2)
	src.complete()

	body := newRecorder[int]()
	res.v.body.Subscribe(body)
	body.request(1)
	if items, completes, _ := body.snapshot(); len(items) != 1 || items[0] != 1 || completes != 0 {
		t.Fatalf("after request(1): %v completes=%d", items, completes)
	}
	body.request(1)
	body.wait(t)
	if items, completes, _ := body.snapshot(); len(items) != 2 || items[1] != 2 || completes != 1 {
		t.Errorf("after request(2): %v completes=%d", items, completes)
	}
	if requested, _ := src.state(); requested != 3 {
		t.Errorf("prefetched items were requested again: demand = %d, want 3", requested)
	}
}

func TestSpliceNeverExceedsDemand(t *testing.T) {
	src := &manualSource{}
	res, _ := subscribeSplice(src, 0)
	src.emit("meta")

	body := newRecorder[int]()
	res.v.body.Subscribe(body)
	body.request(2)
	requested, _ := src.state()
	// Only the meta and what the body asked for may be produced.
	if requested != 3 {
		t.Fatalf("demand = %d, want 3", requested)
	}
	src.emit(1, 2)
	if items, _, _ := body.snapshot(); len(items) != 2 {
		t.Errorf("delivered %d items, want 2", len(items))
	}
}

func TestSpliceCancel(t *testing.T) {
	t.Run("before meta cancels source", func(t *testing.T) {
		src := &manualSource{}
		_, c := subscribeSplice(src, 0)
		c.Cancel()
		if _, cancelled := src.state(); !cancelled {
			t.Error("source not cancelled")
		}
	})

	t.Run("after meta leaves subscribed body alive", func(t *testing.T) {
		src := &manualSource{}
		res, c := subscribeSplice(src, 0)
		src.emit("meta")

		body := newRecorder[int]()
		res.v.body.Subscribe(body)
		c.Cancel()
		if _, cancelled := src.state(); cancelled {
			t.Fatal("outer cancel cancelled the source of a subscribed body")
		}

		body.request(1)
		src.emit(7)
		if items, _, _ := body.snapshot(); len(items) != 1 || items[0] != 7 {
			t.Errorf("body items = %v, want [7]", items)
		}
		body.cancel()
		if _, cancelled := src.state(); !cancelled {
			t.Error("body cancel did not cancel the source")
		}
	})

	t.Run("after meta discards unsubscribed body", func(t *testing.T) {
		src := &manualSource{}
		res, c := subscribeSplice(src, 1)
		src.emit("meta", 1)
		c.Cancel()
		if _, cancelled := src.state(); !cancelled {
			t.Fatal("outer cancel with an unsubscribed body did not cancel the source")
		}

		body := newRecorder[int]()
		res.v.body.Subscribe(body)
		body.wait(t)
		items, completes, errs := body.snapshot()
		if len(items) != 0 || completes != 0 || len(errs) != 1 || !errors.Is(errs[0], domain.ErrBodyDiscarded) {
			t.Errorf("late body = %v completes=%d errs=%v, want ErrBodyDiscarded", items, completes, errs)
		}
	})

	t.Run("after complete does not cancel", func(t *testing.T) {
		src := &manualSource{}
		_, c := subscribeSplice(src, 0)
		src.emit("meta")
		src.complete()
		c.Cancel()
		if _, cancelled := src.state(); cancelled {
			t.Error("outer cancel after the source completed cancelled it")
		}
	})
}

func TestSpliceBodyErrorPropagates(t *testing.T) {
	src := &manualSource{}
	res, _ := subscribeSplice(src, 0)
	src.emit("meta")

	body := newRecorder[int]()
	res.v.body.Subscribe(body)
	body.request(1)
	boom := errors.New("reset")
	src.fail(boom)
	body.wait(t)
	if _, _, errs := body.snapshot(); len(errs) != 1 || !errors.Is(errs[0], boom) {
		t.Errorf("body errors = %v, want reset", errs)
	}
}

func TestSpliceRejectsMistypedBodyItem(t *testing.T) {
	src := &manualSource{}
	res, _ := subscribeSplice(src, 0)
	src.emit("meta")

	body := newRecorder[int]()
	res.v.body.Subscribe(body)
	body.request(1)
	src.emit("not an int")
	body.wait(t)
	if _, _, errs := body.snapshot(); len(errs) != 1 || !errors.Is(errs[0], domain.ErrUnexpectedItem) {
		t.Errorf("body errors = %v, want ErrUnexpectedItem", errs)
	}
}

func TestFlattenEmitsMetaFirst(t *testing.T) {
	rec := newRecorder[any]()
	Flatten("meta", concurrent.FromSlice(1, 2)).Subscribe(rec)

	rec.request(1)
	if items, _, _ := rec.snapshot(); len(items) != 1 || items[0] != "meta" {
		t.Fatalf("after request(1): %v, want [meta]", items)
	}
	rec.request(5)
	rec.wait(t)
	items, completes, _ := rec.snapshot()
	if len(items) != 3 || items[1] != 1 || items[2] != 2 || completes != 1 {
		t.Errorf("items = %v completes=%d, want [meta 1 2] and completion", items, completes)
	}
}

func TestFlattenCancelBeforeBody(t *testing.T) {
	subscribed := false
	body := concurrent.NewPublisher(func(sub concurrent.Subscriber[int]) {
		subscribed = true
		sub.OnSubscribe(concurrent.EmptySubscription)
	})
	rec := newRecorder[any]()
	Flatten("meta", body).Subscribe(rec)
	rec.cancel()
	rec.request(1)
	if subscribed {
		t.Error("body subscribed after cancel")
	}
}
