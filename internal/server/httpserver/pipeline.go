package httpserver

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/yndnr/rxhttp-go/internal/core/domain"
	"github.com/yndnr/rxhttp-go/internal/telemetry/logger"
	"github.com/yndnr/rxhttp-go/internal/telemetry/metric"
	"github.com/yndnr/rxhttp-go/internal/transport"
	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

// pipeline serves the exchanges of one connection, strictly one after
// another. The next request is not read before the previous response and the
// rest of its request body have been written and drained.
type pipeline struct {
	conn       *transport.Connection
	service    Service
	executor   concurrent.Executor
	graceDelay time.Duration
	prefetch   int
	metrics    *metric.Registry
	logger     *slog.Logger
}

// run returns the connection's lifetime. It completes once the connection has
// been closed by keep-alive policy and fails on transport or protocol errors,
// including the peer closing between requests (domain.ErrNoMeta).
func (p *pipeline) run() *concurrent.Completable {
	requests := Splice(p.conn.Read(), p.prefetch, domain.NewRequest)
	responses := concurrent.FlatMapPublisher(requests, p.exchange).
		Repeat(func(int) bool { return !p.conn.Closing() })
	return p.conn.Write(responses, transport.FlushOnEach)
}

// exchange serves one request.
func (p *pipeline) exchange(req *domain.Request) *concurrent.Publisher[any] {
	start := time.Now()
	keepAlive := domain.KeepAliveFor(req.RequestMeta)

	handled := concurrent.DeferSingle(func() *concurrent.Single[*domain.Response] {
		if s := p.service.Handle(p.conn, req); s != nil {
			return s
		}
		return concurrent.FailedSingle[*domain.Response](domain.ErrHandlerFailed.WithDetails("service returned no response"))
	}).OnErrorResume(func(err error) *concurrent.Single[*domain.Response] {
		p.handlerFailed(req, err)
		return concurrent.Success(errorResponse(req.RequestMeta))
	})

	shaped := concurrent.MapSingle(handled, func(resp *domain.Response) *domain.Response {
		if resp == nil {
			p.handlerFailed(req, domain.ErrHandlerFailed.WithDetails("nil response"))
			resp = errorResponse(req.RequestMeta)
		}
		return p.shape(req, keepAlive, resp)
	})

	return concurrent.FlatMapPublisher(shaped, func(resp *domain.Response) *concurrent.Publisher[any] {
		closing := keepAlive.ShouldClose(req.RequestMeta, resp.ResponseMeta)
		return Flatten(resp.ResponseMeta, resp.Body).ConcatWith(concurrent.DeferCompletable(func() *concurrent.Completable {
			p.metrics.ObserveExchange(string(req.Method), strconv.Itoa(int(resp.Status)), time.Since(start).Seconds())
			if !closing {
				return concurrent.Completed()
			}
			// Give the peer a moment to read the final bytes before the socket goes away.
			return p.executor.Schedule(p.graceDelay).AndThen(p.conn.CloseAsync())
		}))
	})
}

// shape fixes up the response headers and makes its body end with a last
// chunk followed by the drain of whatever request body is left.
func (p *pipeline) shape(req *domain.Request, keepAlive domain.KeepAlive, resp *domain.Response) *domain.Response {
	if resp.Version == (domain.Version{}) {
		resp.Version = req.Version
	}
	if resp.Headers == nil {
		resp.Headers = &domain.Headers{}
	}
	if resp.Body == nil {
		resp.Body = concurrent.Empty[domain.PayloadChunk]()
	}
	domain.AddTransferEncodingIfNecessary(req.RequestMeta, resp.ResponseMeta)
	keepAlive.AddConnectionHeaderIfNecessary(resp.ResponseMeta)

	drain := req.Body.IgnoreElements().OnErrorResume(func(err error) *concurrent.Completable {
		// The service subscribed to the body itself, or it was discarded.
		// Nothing is left to drain.
		if errors.Is(err, concurrent.ErrDuplicateSubscribe) || errors.Is(err, domain.ErrBodyDiscarded) {
			return concurrent.Completed()
		}
		return concurrent.FailedCompletable(err)
	})
	return resp.TransformBody(func(body *concurrent.Publisher[domain.PayloadChunk]) *concurrent.Publisher[domain.PayloadChunk] {
		return body.EnsureLast(isLastChunk, domain.EmptyLastChunk).ConcatWith(drain)
	})
}

func isLastChunk(c domain.PayloadChunk) bool { return domain.IsLastChunk(c) }

func (p *pipeline) handlerFailed(req *domain.Request, err error) {
	p.metrics.HandlerFailed()
	attrs := append(logger.Request(req.Method, req.Target), logger.Err(domain.ErrHandlerFailed.WithCause(err))...)
	p.logger.Error("handler failed", attrs...)
}

// ended logs how the connection's lifetime ended.
func (p *pipeline) ended(err error) {
	log := p.logger
	var ne net.Error
	switch {
	case err == nil:
		log.Debug("connection closed")
	case errors.Is(err, domain.ErrNoMeta), errors.Is(err, io.EOF):
		log.Debug("peer closed connection")
	case p.conn.Closing(), errors.Is(err, net.ErrClosed):
		log.Debug("connection closed during exchange", logger.Err(err)...)
	case errors.As(err, &ne) && ne.Timeout():
		log.Debug("connection timed out")
	case domain.IsDomainError(err, ""):
		log.Warn("protocol error", logger.Err(err)...)
	default:
		log.Debug("connection failed", logger.Err(err)...)
	}
}
