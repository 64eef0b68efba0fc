package transport

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/yndnr/rxhttp-go/internal/telemetry/logger"
	"github.com/yndnr/rxhttp-go/pkg/cmap"
	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

// Acceptor accepts TCP connections and hands each one to a handler. It tracks
// live connections until they close.
type Acceptor struct {
	ln       net.Listener
	executor concurrent.Executor
	opts     Options
	logger   *slog.Logger
	conns    *cmap.Map[*Connection]
	running  atomic.Bool
	wg       sync.WaitGroup
	closer   concurrent.ListenableAsyncCloseable
}

// Listen opens a TCP listener on addr.
func Listen(addr string, executor concurrent.Executor, opts Options, log *slog.Logger) (*Acceptor, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewAcceptor(ln, executor, opts, log), nil
}

// NewAcceptor wraps an existing listener.
func NewAcceptor(ln net.Listener, executor concurrent.Executor, opts Options, log *slog.Logger) *Acceptor {
	if log == nil {
		log = slog.Default()
	}
	a := &Acceptor{
		ln:       ln,
		executor: executor,
		opts:     opts,
		logger:   log,
		conns:    cmap.New[*Connection](),
	}
	a.closer = concurrent.ToListenableAsyncCloseable(concurrent.AsyncCloseFunc(a.closeListener))
	return a
}

// Addr returns the listen address.
func (a *Acceptor) Addr() net.Addr { return a.ln.Addr() }

// Live returns the number of tracked connections.
func (a *Acceptor) Live() int { return a.conns.Count() }

// Start runs the accept loop in the background. handle is called on the
// executor for every accepted connection.
func (a *Acceptor) Start(handle func(*Connection)) {
	if !a.running.CompareAndSwap(false, true) {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.acceptLoop(handle); err != nil {
			a.logger.Error("accept loop stopped", append([]any{"address", a.Addr().String()}, logger.Err(err)...)...)
		}
	}()
}

func (a *Acceptor) acceptLoop(handle func(*Connection)) error {
	for {
		nc, err := a.ln.Accept()
		if err != nil {
			if !a.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		c := NewConnection(nc, a.executor, a.opts, a.logger)
		a.conns.Set(c.ID(), c)
		c.OnClose().SubscribeFunc(func() { a.conns.Delete(c.ID()) }, func(error) { a.conns.Delete(c.ID()) })

		if _, err := a.executor.Execute(func() { handle(c) }); err != nil {
			c.logger.Debug("dropping connection", logger.Err(err)...)
			c.closeNow()
		}
	}
}

// CloseAsync stops accepting. Live connections are left open.
func (a *Acceptor) CloseAsync() *concurrent.Completable { return a.closer.CloseAsync() }

// OnClose completes once the listener is closed.
func (a *Acceptor) OnClose() *concurrent.Completable { return a.closer.OnClose() }

func (a *Acceptor) closeListener() *concurrent.Completable {
	return concurrent.FromFunc(func() error {
		a.running.Store(false)
		err := a.ln.Close()
		a.wg.Wait()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})
}

// CloseConnections closes every tracked connection and completes when all of
// them are closed.
func (a *Acceptor) CloseConnections() *concurrent.Completable {
	return concurrent.DeferCompletable(func() *concurrent.Completable {
		composite := concurrent.NewCompositeCloseable()
		for _, c := range a.conns.Values() {
			composite.Concat(c)
		}
		return composite.CloseAsync()
	})
}
