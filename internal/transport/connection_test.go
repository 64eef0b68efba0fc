package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/rxhttp-go/internal/core/domain"
	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

func newPipe(t *testing.T, opts Options) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	c := NewConnection(server, concurrent.NewExecutor(), opts, nil)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return c, client
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestConnectionReadsOneRequestPerSubscription(t *testing.T) {
	c, client := newPipe(t, Options{})
	go func() {
		io.WriteString(client, "GET /1 HTTP/1.1\r\n\r\nPOST /2 HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc")
	}()

	ctx := testContext(t)
	first, err := c.Read().Collect(ctx)
	if err != nil {
		t.Fatalf("first Collect() error = %v", err)
	}
	if len(first) != 2 || first[0].(*domain.RequestMeta).Target != "/1" || !domain.IsLastChunk(first[1]) {
		t.Fatalf("first request = %#v", first)
	}

	second, err := c.Read().Collect(ctx)
	if err != nil {
		t.Fatalf("second Collect() error = %v", err)
	}
	if len(second) != 2 || second[0].(*domain.RequestMeta).Target != "/2" {
		t.Fatalf("second request = %#v", second)
	}
	if got := string(second[1].(*domain.LastChunk).Data); got != "abc" {
		t.Errorf("body = %q, want abc", got)
	}
}

func TestConnectionReadCompletesEmptyOnPeerClose(t *testing.T) {
	c, client := newPipe(t, Options{})
	client.Close()

	items, err := c.Read().Collect(testContext(t))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want 0", len(items))
	}
}

func TestConnectionReadFailsOnMalformedInput(t *testing.T) {
	c, client := newPipe(t, Options{})
	go io.WriteString(client, "NOT HTTP\r\n\r\n")

	_, err := c.Read().Collect(testContext(t))
	if !domain.IsDomainError(err, domain.ErrMalformedMessage.Code) {
		t.Errorf("Collect() error = %v, want malformed message", err)
	}
}

func TestConnectionIdleTimeout(t *testing.T) {
	c, _ := newPipe(t, Options{IdleTimeout: 50 * time.Millisecond})

	_, err := c.Read().Collect(testContext(t))
	var ne net.Error
	if err == nil || !errors.As(err, &ne) || !ne.Timeout() {
		t.Errorf("Collect() error = %v, want timeout", err)
	}
}

func TestConnectionWriteEncodesResponse(t *testing.T) {
	c, client := newPipe(t, Options{})

	meta := domain.NewResponseMeta(domain.HTTP11, domain.StatusOK)
	meta.Headers.Set(domain.HeaderContentLength, "5")
	src := concurrent.FromSlice[any](meta, &domain.LastChunk{Data: []byte("hello")})

	errc := make(chan error, 1)
	go func() { errc <- c.Write(src, FlushOnEnd).Await(context.Background()) }()

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	if err != nil {
		t.Fatalf("ReadResponse() error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || string(body) != "hello" {
		t.Errorf("response = %d %q, want 200 hello", resp.StatusCode, body)
	}
	if err := <-errc; err != nil {
		t.Errorf("Write() error = %v", err)
	}
}

func TestConnectionWriteRejectsUnknownItem(t *testing.T) {
	c, _ := newPipe(t, Options{})
	err := c.Write(concurrent.FromSlice[any]("bogus"), FlushOnEach).Await(testContext(t))
	if !domain.IsDomainError(err, domain.ErrUnexpectedItem.Code) {
		t.Errorf("Write() error = %v, want unexpected item", err)
	}
	if err := c.OnClose().Await(testContext(t)); err != nil {
		t.Errorf("OnClose() error = %v", err)
	}
}

type cancelOnSubscribe struct{}

func (cancelOnSubscribe) OnSubscribe(s concurrent.Subscription) { s.Cancel() }
func (cancelOnSubscribe) OnNext(any)                            {}
func (cancelOnSubscribe) OnComplete()                           {}
func (cancelOnSubscribe) OnError(error)                         {}

func TestConnectionCancelReadCloses(t *testing.T) {
	c, _ := newPipe(t, Options{})
	c.Read().Subscribe(cancelOnSubscribe{})

	if err := c.OnClose().Await(testContext(t)); err != nil {
		t.Fatalf("OnClose() error = %v", err)
	}
	if !c.Closing() {
		t.Error("Closing() = false after cancel")
	}
}

type stepSubscriber struct {
	sub   concurrent.Subscription
	items chan any
}

func (s *stepSubscriber) OnSubscribe(sub concurrent.Subscription) { s.sub = sub; sub.Request(1) }
func (s *stepSubscriber) OnNext(v any)                            { s.items <- v }
func (s *stepSubscriber) OnComplete()                             { close(s.items) }
func (s *stepSubscriber) OnError(error)                           { close(s.items) }

func TestConnectionExpectContinueOnBodyDemand(t *testing.T) {
	c, client := newPipe(t, Options{})
	go io.WriteString(client, "POST / HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 2\r\n\r\n")

	s := &stepSubscriber{items: make(chan any, 4)}
	c.Read().Subscribe(s)
	if _, ok := (<-s.items).(*domain.RequestMeta); !ok {
		t.Fatal("first item is not request meta")
	}

	s.sub.Request(1)
	br := bufio.NewReader(client)
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("reading interim response: %v", err)
	}
	if !strings.HasPrefix(line, "HTTP/1.1 100") {
		t.Fatalf("interim status line = %q", line)
	}
	br.ReadString('\n')

	io.WriteString(client, "ok")
	last, ok := (<-s.items).(*domain.LastChunk)
	if !ok || string(last.Data) != "ok" {
		t.Errorf("body item = %#v, want last chunk ok", last)
	}
}

func TestConnectionCancelAfterMetaDiscardsRequest(t *testing.T) {
	c, client := newPipe(t, Options{MaxChunkSize: 2})
	go io.WriteString(client, "POST /1 HTTP/1.1\r\nContent-Length: 6\r\n\r\nabcdefGET /2 HTTP/1.1\r\n\r\n")

	s := &stepSubscriber{items: make(chan any, 4)}
	c.Read().Subscribe(s)
	if _, ok := (<-s.items).(*domain.RequestMeta); !ok {
		t.Fatal("first item is not request meta")
	}
	s.sub.Cancel()
	if c.Closing() {
		t.Fatal("cancel after meta closed the connection")
	}

	next, err := c.Read().Collect(testContext(t))
	if err != nil {
		t.Fatalf("next Collect() error = %v", err)
	}
	if len(next) != 2 || next[0].(*domain.RequestMeta).Target != "/2" {
		t.Fatalf("next request = %#v, want GET /2", next)
	}
}

func TestConnectionContinueSkippedAfterFinalResponse(t *testing.T) {
	c, client := newPipe(t, Options{})
	go io.WriteString(client, "POST / HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 2\r\n\r\n")

	s := &stepSubscriber{items: make(chan any, 4)}
	c.Read().Subscribe(s)
	if _, ok := (<-s.items).(*domain.RequestMeta); !ok {
		t.Fatal("first item is not request meta")
	}

	meta := domain.NewResponseMeta(domain.HTTP11, domain.StatusOK)
	meta.Headers.Set(domain.HeaderContentLength, "0")
	errc := make(chan error, 1)
	go func() {
		errc <- c.Write(concurrent.FromSlice[any](meta, domain.EmptyLastChunk()), FlushOnEnd).Await(context.Background())
	}()
	br := bufio.NewReader(client)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		t.Fatalf("ReadResponse() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// Reading the body now must not send the interim response.
	s.sub.Request(1)
	go io.WriteString(client, "ok")
	last, ok := (<-s.items).(*domain.LastChunk)
	if !ok || string(last.Data) != "ok" {
		t.Fatalf("body item = %#v, want last chunk ok", last)
	}
	_ = client.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if n, _ := br.Read(make([]byte, 1)); n != 0 {
		t.Error("interim response written after the final response")
	}
}

func TestFlushStrategies(t *testing.T) {
	last := domain.EmptyLastChunk()
	tests := []struct {
		name     string
		strategy FlushStrategy
		item     any
		pending  int
		want     bool
	}{
		{"each", FlushOnEach, domain.Chunk("a"), 1, true},
		{"end chunk", FlushOnEnd, domain.Chunk("a"), 5, false},
		{"end last", FlushOnEnd, last, 1, true},
		{"batch below", FlushBatch(3), domain.Chunk("a"), 2, false},
		{"batch reached", FlushBatch(3), domain.Chunk("a"), 3, true},
		{"batch last", FlushBatch(3), last, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.strategy.ShouldFlush(tt.item, tt.pending); got != tt.want {
				t.Errorf("ShouldFlush() = %v, want %v", got, tt.want)
			}
		})
	}
}
