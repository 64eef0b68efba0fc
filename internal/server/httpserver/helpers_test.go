package httpserver

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

// recorder is a Subscriber that records every signal it receives.
type recorder[T any] struct {
	mu        sync.Mutex
	sub       concurrent.Subscription
	items     []T
	completes int
	errs      []error
	done      chan struct{}
	once      sync.Once
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{done: make(chan struct{})}
}

func (r *recorder[T]) OnSubscribe(s concurrent.Subscription) {
	r.mu.Lock()
	r.sub = s
	r.mu.Unlock()
}

func (r *recorder[T]) OnNext(v T) {
	r.mu.Lock()
	r.items = append(r.items, v)
	r.mu.Unlock()
}

func (r *recorder[T]) OnComplete() {
	r.mu.Lock()
	r.completes++
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *recorder[T]) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *recorder[T]) request(n int64) {
	r.mu.Lock()
	s := r.sub
	r.mu.Unlock()
	s.Request(n)
}

func (r *recorder[T]) cancel() {
	r.mu.Lock()
	s := r.sub
	r.mu.Unlock()
	s.Cancel()
}

func (r *recorder[T]) snapshot() ([]T, int, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.items...), r.completes, append([]error(nil), r.errs...)
}

func (r *recorder[T]) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal signal")
	}
}

// manualSource is a Publisher driven by the test. It records demand and
// cancellation and emits only what the test tells it to.
type manualSource struct {
	mu        sync.Mutex
	sub       concurrent.Subscriber[any]
	requested int64
	cancelled bool
}

func (s *manualSource) publisher() *concurrent.Publisher[any] {
	return concurrent.NewPublisher(func(sub concurrent.Subscriber[any]) {
		s.mu.Lock()
		s.sub = sub
		s.mu.Unlock()
		sub.OnSubscribe(s)
	})
}

func (s *manualSource) Request(n int64) {
	s.mu.Lock()
	s.requested = concurrent.AddDemand(s.requested, n)
	s.mu.Unlock()
}

func (s *manualSource) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
}

func (s *manualSource) state() (requested int64, cancelled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requested, s.cancelled
}

func (s *manualSource) emit(items ...any) {
	for _, v := range items {
		s.sub.OnNext(v)
	}
}

func (s *manualSource) complete()        { s.sub.OnComplete() }
func (s *manualSource) fail(err error)   { s.sub.OnError(err) }

// fakeConn is a ConnectionContext with a fixed remote address.
type fakeConn struct {
	remote net.Addr
}

func newFakeConn(ip string) *fakeConn {
	return &fakeConn{remote: &net.TCPAddr{IP: net.ParseIP(ip), Port: 40000}}
}

func (f *fakeConn) ID() string                           { return "fake" }
func (f *fakeConn) RemoteAddr() net.Addr                 { return f.remote }
func (f *fakeConn) LocalAddr() net.Addr                  { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 80} }
func (f *fakeConn) CloseAsync() *concurrent.Completable { return concurrent.Completed() }
func (f *fakeConn) OnClose() *concurrent.Completable    { return concurrent.Completed() }
