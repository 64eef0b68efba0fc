// Package transport carries HTTP/1.x message objects over TCP connections.
//
// A Connection exposes its inbound side as a Publisher of decoded objects,
// one request per subscription, and accepts an outbound Publisher of
// response objects to encode. Reads happen only while there is demand.
package transport

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/rxhttp-go/internal/core/domain"
	"github.com/yndnr/rxhttp-go/internal/telemetry/logger"
	"github.com/yndnr/rxhttp-go/internal/transport/http1"
	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

// ConnectionContext describes an accepted connection.
type ConnectionContext interface {
	concurrent.ListenableAsyncCloseable

	// ID uniquely identifies the connection within the process.
	ID() string
	RemoteAddr() net.Addr
	LocalAddr() net.Addr
}

// Options tunes a Connection. Zero durations disable the matching deadline.
type Options struct {
	// ReadTimeout bounds each read while a request is in progress.
	ReadTimeout time.Duration
	// IdleTimeout bounds the wait for the first byte of the next request.
	IdleTimeout time.Duration
	// WriteTimeout bounds each write.
	WriteTimeout time.Duration

	MaxHeaderSize int
	MaxChunkSize  int
}

// Connection is one HTTP/1.x connection.
type Connection struct {
	id       string
	conn     net.Conn
	opts     Options
	executor concurrent.Executor
	logger   *slog.Logger
	closer   concurrent.ListenableAsyncCloseable
	closing  atomic.Bool

	readMu  sync.Mutex
	dec     *http1.Decoder
	// Set when a subscription was cancelled in the middle of a request. The
	// rest of that request is read and dropped before the next one.
	discard atomic.Bool
	writeMu sync.Mutex
	enc     *http1.Encoder

	// Methods of decoded requests awaiting their response, in order.
	methodMu sync.Mutex
	methods  []domain.Method

	// Set while the current request expects 100 Continue and neither the
	// interim nor the final response head has been written. Guarded by writeMu.
	continuePending bool
}

// NewConnection wraps conn. Blocking reads run on executor.
func NewConnection(conn net.Conn, executor concurrent.Executor, opts Options, log *slog.Logger) *Connection {
	if log == nil {
		log = slog.Default()
	}
	c := &Connection{
		id:       ulid.Make().String(),
		conn:     conn,
		opts:     opts,
		executor: executor,
		dec:      http1.NewDecoder(bufio.NewReader(conn), opts.MaxHeaderSize, opts.MaxChunkSize),
		enc:      http1.NewEncoder(bufio.NewWriter(conn)),
	}
	c.logger = log.With(logger.Connection(c.id, conn.RemoteAddr())...)
	c.closer = concurrent.ToListenableAsyncCloseable(concurrent.AsyncCloseFunc(func() *concurrent.Completable {
		return concurrent.FromFunc(func() error {
			c.closing.Store(true)
			if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				return err
			}
			return nil
		})
	}))
	return c
}

// ID implements ConnectionContext.
func (c *Connection) ID() string { return c.id }

// RemoteAddr implements ConnectionContext.
func (c *Connection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// LocalAddr implements ConnectionContext.
func (c *Connection) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// CloseAsync closes the underlying socket. Closing twice closes once.
func (c *Connection) CloseAsync() *concurrent.Completable { return c.closer.CloseAsync() }

// OnClose completes once the connection is closed.
func (c *Connection) OnClose() *concurrent.Completable { return c.closer.OnClose() }

// Closing reports whether a close has been started.
func (c *Connection) Closing() bool { return c.closing.Load() }

// Logger returns the connection-scoped logger.
func (c *Connection) Logger() *slog.Logger { return c.logger }

func (c *Connection) closeNow() {
	c.CloseAsync().SubscribeFunc(func() {}, func(err error) {
		c.logger.Debug("close failed", logger.Err(err)...)
	})
}

// Read returns the inbound side. Every subscription delivers the objects of
// the next request, ending with its *domain.LastChunk, then completes. A peer
// that closes between requests completes the subscription with no items.
//
// Cancelling a subscription before it delivered anything closes the
// connection. Cancelling it after the request meta keeps the connection: the
// unread part of the request is discarded when the next request is read.
func (c *Connection) Read() *concurrent.Publisher[any] {
	return concurrent.NewPublisher(func(sub concurrent.Subscriber[any]) {
		s := &readSubscription{c: c, down: sub}
		sub.OnSubscribe(s)
	})
}

// next decodes one object.
func (c *Connection) next() (any, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.discard.Swap(false) {
		if err := c.skipRequest(); err != nil {
			return nil, err
		}
	}

	// The idle timeout covers the wait for the first byte only. Once a
	// request has started, the tighter read timeout applies.
	if c.dec.AtBoundary() {
		if err := c.conn.SetReadDeadline(deadline(c.opts.IdleTimeout)); err != nil {
			return nil, err
		}
		if err := c.dec.Await(); err != nil {
			return nil, err
		}
	}
	if err := c.conn.SetReadDeadline(deadline(c.opts.ReadTimeout)); err != nil {
		return nil, err
	}
	item, err := c.dec.Next()
	if err != nil {
		return nil, err
	}
	if meta, ok := item.(*domain.RequestMeta); ok {
		c.methodMu.Lock()
		c.methods = append(c.methods, meta.Method)
		c.methodMu.Unlock()
		if meta.Version.AtLeast(domain.HTTP11) && meta.Headers.ContainsToken(domain.HeaderExpect, domain.ValueContinue) {
			c.writeMu.Lock()
			c.continuePending = true
			c.writeMu.Unlock()
			c.dec.OnBodyDemand(c.writeContinue)
		}
	}
	return item, nil
}

// writeContinue sends the interim response unless the final response head
// went out first. A body read after that happens without the interim.
// skipRequest drops body items until the current request has been read.
func (c *Connection) skipRequest() error {
	for !c.dec.AtBoundary() {
		if err := c.conn.SetReadDeadline(deadline(c.opts.ReadTimeout)); err != nil {
			return err
		}
		if _, err := c.dec.Next(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) writeContinue() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.continuePending {
		return nil
	}
	c.continuePending = false
	if err := c.conn.SetWriteDeadline(deadline(c.opts.WriteTimeout)); err != nil {
		return err
	}
	if err := c.enc.WriteContinue(); err != nil {
		return err
	}
	return c.enc.Flush()
}

func (c *Connection) popMethod() domain.Method {
	c.methodMu.Lock()
	defer c.methodMu.Unlock()
	if len(c.methods) == 0 {
		return domain.MethodGet
	}
	m := c.methods[0]
	c.methods = c.methods[1:]
	return m
}

// encode writes one outbound object.
func (c *Connection) encode(item any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline(c.opts.WriteTimeout)); err != nil {
		return err
	}
	switch v := item.(type) {
	case *domain.ResponseMeta:
		method := domain.MethodGet
		if !v.Status.Informational() {
			method = c.popMethod()
		}
		if v.Status == domain.StatusContinue || !v.Status.Informational() {
			c.continuePending = false
		}
		return c.enc.EncodeMeta(v, method)
	case domain.PayloadChunk:
		return c.enc.EncodeChunk(v)
	default:
		return domain.ErrUnexpectedItem.WithDetails("cannot encode " + typeName(item))
	}
}

func (c *Connection) flush() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.enc.Flush()
}

func deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

type readSubscription struct {
	c    *Connection
	down concurrent.Subscriber[any]

	mu      sync.Mutex
	demand  int64
	running bool
	done    bool
	started bool
}

func (s *readSubscription) Request(n int64) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.demand = concurrent.AddDemand(s.demand, n)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if _, err := s.c.executor.Execute(s.loop); err != nil {
		s.finish(err)
	}
}

func (s *readSubscription) Cancel() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	started := s.started
	s.mu.Unlock()
	if !started {
		s.c.closeNow()
		return
	}
	s.c.discard.Store(true)
}

func (s *readSubscription) loop() {
	for {
		s.mu.Lock()
		if s.done || s.demand == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		if s.demand != math.MaxInt64 {
			s.demand--
		}
		s.mu.Unlock()

		item, err := s.c.next()
		if errors.Is(err, io.EOF) {
			s.finish(nil)
			return
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.c.logger.Debug("read timeout")
			}
			s.finish(err)
			return
		}
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		s.down.OnNext(item)
		if domain.IsLastChunk(item) {
			s.finish(nil)
			return
		}
	}
}

func (s *readSubscription) finish(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()
	if err != nil {
		s.down.OnError(err)
		return
	}
	s.down.OnComplete()
}
