package http1

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/yndnr/rxhttp-go/internal/core/domain"
)

func decodeAll(t *testing.T, d *Decoder) []any {
	t.Helper()
	var out []any
	for {
		item, err := d.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		out = append(out, item)
	}
}

func newDecoder(raw string) *Decoder {
	return NewDecoder(bufio.NewReader(strings.NewReader(raw)), 0, 0)
}

func TestDecoderRequestWithoutBody(t *testing.T) {
	d := newDecoder("GET /a HTTP/1.1\r\nHost: x\r\nX-Multi: 1\r\nX-Multi: 2\r\n\r\n")
	items := decodeAll(t, d)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	meta, ok := items[0].(*domain.RequestMeta)
	if !ok {
		t.Fatalf("items[0] = %T, want *domain.RequestMeta", items[0])
	}
	if meta.Method != domain.MethodGet || meta.Target != "/a" || meta.Version != domain.HTTP11 {
		t.Errorf("meta = %s %s %s", meta.Method, meta.Target, meta.Version)
	}
	if got := meta.Headers.Values("x-multi"); len(got) != 2 {
		t.Errorf("X-Multi = %v, want 2 values", got)
	}
	last, ok := items[1].(*domain.LastChunk)
	if !ok || len(last.Data) != 0 {
		t.Errorf("items[1] = %#v, want empty last chunk", items[1])
	}
	if !d.AtBoundary() {
		t.Error("decoder not at boundary after last chunk")
	}
}

func TestDecoderFixedLengthBody(t *testing.T) {
	raw := "POST /e HTTP/1.1\r\nContent-Length: 10\r\n\r\n0123456789"
	d := NewDecoder(bufio.NewReader(strings.NewReader(raw)), 0, 4)
	items := decodeAll(t, d)

	var body []byte
	for _, item := range items[1:] {
		body = append(body, item.(domain.PayloadChunk).Content()...)
	}
	if string(body) != "0123456789" {
		t.Errorf("body = %q, want 0123456789", body)
	}
	if len(items) != 4 {
		t.Errorf("got %d items, want meta plus 3 chunks of at most 4 bytes", len(items))
	}
	if !domain.IsLastChunk(items[len(items)-1]) {
		t.Error("last item is not a last chunk")
	}
}

func TestDecoderChunkedBodyWithTrailers(t *testing.T) {
	raw := "POST /c HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5;ext=1\r\nhello\r\n6\r\n world\r\n0\r\nX-Sum: abc\r\n\r\n"
	items := decodeAll(t, newDecoder(raw))
	if len(items) != 4 {
		t.Fatalf("got %d items, want 4", len(items))
	}
	if got := string(items[1].(domain.Chunk)); got != "hello" {
		t.Errorf("chunk 1 = %q, want hello", got)
	}
	if got := string(items[2].(domain.Chunk)); got != " world" {
		t.Errorf("chunk 2 = %q, want ' world'", got)
	}
	last := items[3].(*domain.LastChunk)
	if v, _ := last.Trailers.Get("X-Sum"); v != "abc" {
		t.Errorf("trailer X-Sum = %q, want abc", v)
	}
}

func TestDecoderPipelinedRequests(t *testing.T) {
	raw := "GET /1 HTTP/1.1\r\n\r\nPOST /2 HTTP/1.1\r\nContent-Length: 2\r\n\r\nhiGET /3 HTTP/1.0\r\n\r\n"
	items := decodeAll(t, newDecoder(raw))

	var targets []string
	for _, item := range items {
		if meta, ok := item.(*domain.RequestMeta); ok {
			targets = append(targets, meta.Target)
		}
	}
	if strings.Join(targets, ",") != "/1,/2,/3" {
		t.Errorf("targets = %v, want [/1 /2 /3]", targets)
	}
}

func TestDecoderErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *domain.DomainError
	}{
		{"bad request line", "GARBAGE\r\n\r\n", domain.ErrMalformedMessage},
		{"bad version", "GET / HTTP/2.0\r\n\r\n", domain.ErrMalformedMessage},
		{"no colon", "GET / HTTP/1.1\r\nBroken\r\n\r\n", domain.ErrMalformedMessage},
		{"smuggling", "POST / HTTP/1.1\r\nContent-Length: 1\r\nTransfer-Encoding: chunked\r\n\r\n", domain.ErrMalformedMessage},
		{"bad length", "POST / HTTP/1.1\r\nContent-Length: -1\r\n\r\n", domain.ErrMalformedMessage},
		{"gzip only", "POST / HTTP/1.1\r\nTransfer-Encoding: gzip\r\n\r\n", domain.ErrMalformedMessage},
		{"headers too large", "GET / HTTP/1.1\r\nX: " + strings.Repeat("a", 200) + "\r\n\r\n", domain.ErrHeaderTooLarge},
		{"chunk too large", "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\nffff\r\n", domain.ErrChunkTooLarge},
		{"truncated body", "POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nab", domain.ErrMalformedMessage},
		{"truncated head", "GET / HTTP/1.1\r\nHost", domain.ErrMalformedMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(bufio.NewReader(strings.NewReader(tt.raw)), 128, 1024)
			var err error
			for err == nil {
				_, err = d.Next()
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecoderCleanEOF(t *testing.T) {
	d := newDecoder("")
	if _, err := d.Next(); err != io.EOF {
		t.Errorf("Next() on empty input = %v, want io.EOF", err)
	}
}

func TestDecoderBodyDemandHook(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 2\r\n\r\nok"
	d := newDecoder(raw)
	if _, err := d.Next(); err != nil {
		t.Fatal(err)
	}
	calls := 0
	d.OnBodyDemand(func() error { calls++; return nil })
	if _, err := d.Next(); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("hook calls = %d, want 1", calls)
	}
}

func encode(t *testing.T, method domain.Method, meta *domain.ResponseMeta, chunks ...domain.PayloadChunk) string {
	t.Helper()
	var buf bytes.Buffer
	e := NewEncoder(bufio.NewWriter(&buf))
	if err := e.EncodeMeta(meta, method); err != nil {
		t.Fatal(err)
	}
	for _, c := range chunks {
		if err := e.EncodeChunk(c); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestEncoderChunked(t *testing.T) {
	meta := domain.NewResponseMeta(domain.HTTP11, domain.StatusOK)
	meta.Headers.Add(domain.HeaderTransferEncoding, domain.ValueChunked)
	got := encode(t, domain.MethodGet, meta,
		domain.Chunk("abc"), domain.Chunk(""),
		&domain.LastChunk{Trailers: domain.NewHeaders("X-Done", "1")})

	want := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n0\r\nX-Done: 1\r\n\r\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEncoderContentLength(t *testing.T) {
	meta := domain.NewResponseMeta(domain.HTTP10, domain.StatusInternalServerError)
	meta.Headers.Add(domain.HeaderContentLength, "0")
	got := encode(t, domain.MethodGet, meta, domain.EmptyLastChunk())

	want := "HTTP/1.0 500 Internal Server Error\r\nContent-Length: 0\r\n\r\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEncoderHeadSuppressesBody(t *testing.T) {
	meta := domain.NewResponseMeta(domain.HTTP11, domain.StatusOK)
	meta.Headers.Add(domain.HeaderContentLength, "5")
	got := encode(t, domain.MethodHead, meta, &domain.LastChunk{Data: []byte("hello")})

	if strings.Contains(got, "hello") {
		t.Errorf("HEAD response carried a body: %q", got)
	}
}

func TestEncoderSanitizesFields(t *testing.T) {
	meta := domain.NewResponseMeta(domain.HTTP11, domain.StatusNoContent)
	meta.Headers.Add("X-Evil", "a\r\nSet-Cookie: x").Add("Bad Name", "v")
	got := encode(t, domain.MethodGet, meta, domain.EmptyLastChunk())

	if strings.Contains(got, "\r\nSet-Cookie") || strings.Contains(got, "Bad Name") {
		t.Errorf("unsanitized output %q", got)
	}
}

func TestEncoderRejectsBodyBeforeMeta(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(bufio.NewWriter(&buf))
	if err := e.EncodeChunk(domain.Chunk("x")); !errors.Is(err, domain.ErrUnexpectedItem) {
		t.Errorf("EncodeChunk before meta = %v, want ErrUnexpectedItem", err)
	}
}
