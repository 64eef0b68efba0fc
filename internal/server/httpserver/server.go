package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/yndnr/rxhttp-go/internal/telemetry/logger"
	"github.com/yndnr/rxhttp-go/internal/telemetry/metric"
	"github.com/yndnr/rxhttp-go/internal/transport"
	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

// DefaultCloseGraceDelay is the pause between the last byte of a response
// that ends the connection and the close of its socket.
const DefaultCloseGraceDelay = 100 * time.Millisecond

// Config holds the HTTP server configuration.
type Config struct {
	// Addr is the TCP listen address.
	Addr string
	// CloseGraceDelay is the pause before a connection is closed after a
	// response that ends it. Zero selects DefaultCloseGraceDelay.
	CloseGraceDelay time.Duration
	// Transport tunes every accepted connection.
	Transport transport.Options
	// SplicePrefetch is the number of request body items read together with
	// the request head.
	SplicePrefetch int
	// Filter admits connections. Nil accepts all.
	Filter ConnectionFilter
	// Executor runs blocking reads and timers. Nil creates one owned by the
	// server and closed with it.
	Executor concurrent.Executor
	// Metrics receives connection and exchange metrics. Nil disables them.
	Metrics *metric.Registry
	Logger  *slog.Logger
}

// ServerContext is a bound server.
type ServerContext struct {
	cfg      Config
	service  Service
	acceptor *transport.Acceptor
	logger   *slog.Logger
	closing  *concurrent.CompletableProcessor
	closer   concurrent.ListenableAsyncCloseable
}

// Bind listens on cfg.Addr and starts serving service.
func Bind(cfg Config, service Service) (*ServerContext, error) {
	if service == nil {
		return nil, errors.New("httpserver: nil service")
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	return Serve(ln, cfg, service), nil
}

// Serve starts serving service on an existing listener.
func Serve(ln net.Listener, cfg Config, service Service) *ServerContext {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CloseGraceDelay <= 0 {
		cfg.CloseGraceDelay = DefaultCloseGraceDelay
	}
	if cfg.Filter == nil {
		cfg.Filter = AcceptAll()
	}

	composite := concurrent.NewCompositeCloseable()
	ownExecutor := cfg.Executor == nil
	if ownExecutor {
		cfg.Executor = concurrent.NewExecutor()
	}

	s := &ServerContext{
		cfg:     cfg,
		service: service,
		logger:  cfg.Logger,
		closing: concurrent.NewCompletableProcessor(),
	}
	s.acceptor = transport.NewAcceptor(ln, cfg.Executor, cfg.Transport, cfg.Logger)

	composite.Concat(s.acceptor, concurrent.AsyncCloseFunc(s.acceptor.CloseConnections))
	if c, ok := service.(concurrent.AsyncCloseable); ok {
		composite.Concat(c)
	}
	if ownExecutor {
		composite.Concat(cfg.Executor)
	}
	s.closer = concurrent.ToListenableAsyncCloseable(concurrent.AsyncCloseFunc(func() *concurrent.Completable {
		return concurrent.DeferCompletable(func() *concurrent.Completable {
			s.closing.Complete()
			s.logger.Info("http server closing", "address", s.ListenAddress().String())
			return composite.CloseAsync()
		})
	}))

	s.logger.Info("http server listening", "address", s.ListenAddress().String())
	s.acceptor.Start(s.serve)
	return s
}

// ListenAddress returns the bound address.
func (s *ServerContext) ListenAddress() net.Addr { return s.acceptor.Addr() }

// LiveConnections returns the number of open connections.
func (s *ServerContext) LiveConnections() int { return s.acceptor.Live() }

// Stats reports server state for metric.NewCollector.
func (s *ServerContext) Stats() metric.Stats {
	single, completable, publisher := concurrent.PluginCounts()
	return metric.Stats{
		LiveConnections: s.LiveConnections(),
		Plugins: map[string]int{
			"single":      single,
			"completable": completable,
			"publisher":   publisher,
		},
	}
}

// CloseAsync stops accepting, closes every connection, then closes the
// service and the server-owned executor.
func (s *ServerContext) CloseAsync() *concurrent.Completable { return s.closer.CloseAsync() }

// OnClose completes once the server is closed.
func (s *ServerContext) OnClose() *concurrent.Completable { return s.closer.OnClose() }

// OnClosing completes as soon as the server starts closing.
func (s *ServerContext) OnClosing() *concurrent.Completable { return s.closing.Completable() }

// Shutdown closes the server and waits for it, or for ctx.
func (s *ServerContext) Shutdown(ctx context.Context) error {
	return s.CloseAsync().Await(ctx)
}

// serve runs the admission filter and, if it accepts, the pipeline.
func (s *ServerContext) serve(c *transport.Connection) {
	log := c.Logger()
	filter := s.cfg.Filter
	concurrent.DeferSingle(func() *concurrent.Single[bool] {
		return filter.Filter(c)
	}).SubscribeFunc(func(accepted bool) {
		if !accepted {
			log.Debug("connection rejected")
			s.cfg.Metrics.ConnectionRejected("filter")
			c.CloseAsync().SubscribeFunc(nil, nil)
			return
		}
		s.cfg.Metrics.ConnectionAccepted()
		c.OnClose().SubscribeFunc(s.cfg.Metrics.ConnectionClosed, func(error) { s.cfg.Metrics.ConnectionClosed() })
		log.Debug("connection accepted")

		p := &pipeline{
			conn:       c,
			service:    s.service,
			executor:   s.cfg.Executor,
			graceDelay: s.cfg.CloseGraceDelay,
			prefetch:   s.cfg.SplicePrefetch,
			metrics:    s.cfg.Metrics,
			logger:     log,
		}
		p.run().SubscribeFunc(func() {
			p.ended(nil)
			c.CloseAsync().SubscribeFunc(nil, nil)
		}, func(err error) {
			p.ended(err)
			c.CloseAsync().SubscribeFunc(nil, nil)
		})
	}, func(err error) {
		log.Warn("connection filter failed", logger.Err(err)...)
		s.cfg.Metrics.ConnectionRejected("error")
		c.CloseAsync().SubscribeFunc(nil, nil)
	})
}
