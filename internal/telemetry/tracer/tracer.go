// Package tracer traces producer subscriptions through the plugin registry.
//
// A SubscriptionTracer implements the Single, Completable and Publisher
// plugin kinds. Every subscription gets a ULID span id; the subscription and
// its terminal signal (complete, error or cancel) are counted in the metric
// registry and logged at debug level.
package tracer

import (
	"log/slog"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/rxhttp-go/internal/telemetry/logger"
	"github.com/yndnr/rxhttp-go/internal/telemetry/metric"
	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

// Producer kinds used as metric labels.
const (
	KindSingle      = "single"
	KindCompletable = "completable"
	KindPublisher   = "publisher"
)

// SubscriptionTracer records subscriptions. Register it with Install.
type SubscriptionTracer struct {
	logger  *slog.Logger
	metrics *metric.Registry
	active  atomic.Int64
}

// New creates a tracer. A nil logger uses slog.Default; a nil registry
// disables metrics.
func New(log *slog.Logger, metrics *metric.Registry) *SubscriptionTracer {
	if log == nil {
		log = slog.Default()
	}
	return &SubscriptionTracer{logger: log, metrics: metrics}
}

// Install registers t for all three producer kinds and returns a function
// that removes it again.
func (t *SubscriptionTracer) Install() (uninstall func()) {
	s, c, p := (*singleTracer)(t), (*completableTracer)(t), (*publisherTracer)(t)
	concurrent.AddSinglePlugin(s)
	concurrent.AddCompletablePlugin(c)
	concurrent.AddPublisherPlugin(p)
	return func() {
		concurrent.RemoveSinglePlugin(s)
		concurrent.RemoveCompletablePlugin(c)
		concurrent.RemovePublisherPlugin(p)
	}
}

// Active returns the number of traced subscriptions without a terminal signal.
func (t *SubscriptionTracer) Active() int64 {
	return t.active.Load()
}

func (t *SubscriptionTracer) begin(kind string) *span {
	t.active.Add(1)
	t.metrics.Subscribed(kind)
	s := &span{tracer: t, kind: kind, id: ulid.Make().String()}
	t.logger.Debug("subscribe", "kind", kind, logger.KeySpanID, s.id)
	return s
}

// span tracks one subscription. Only the first terminal signal is recorded.
type span struct {
	tracer *SubscriptionTracer
	kind   string
	id     string
	ended  atomic.Bool
}

func (s *span) end(signal string, err error) {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	s.tracer.active.Add(-1)
	s.tracer.metrics.Terminated(s.kind, signal)
	attrs := append([]any{"kind", s.kind, logger.KeySpanID, s.id, "signal", signal}, logger.Err(err)...)
	s.tracer.logger.Debug("terminate", attrs...)
}

func (s *span) cancellable(c concurrent.Cancellable) concurrent.Cancellable {
	return concurrent.CancellableFunc(func() {
		s.end("cancel", nil)
		c.Cancel()
	})
}
