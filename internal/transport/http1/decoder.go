// Package http1 converts between HTTP/1.x bytes and the message objects of
// internal/core/domain.
//
// A decoded request is a *domain.RequestMeta followed by zero or more
// domain.Chunk items and exactly one *domain.LastChunk. Requests without a
// body still end with an empty LastChunk.
package http1

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/yndnr/rxhttp-go/internal/core/domain"
)

// Default limits.
const (
	DefaultMaxHeaderSize = 16 << 10
	DefaultMaxChunkSize  = 1 << 20
)

type decodeState int

const (
	stateMeta decodeState = iota
	stateEmptyBody
	stateFixed
	stateChunked
)

// Decoder reads request objects from a buffered reader. It is not safe for
// concurrent use.
type Decoder struct {
	r            *bufio.Reader
	maxHeader    int
	maxChunk     int
	state        decodeState
	remaining    int64
	onBodyDemand func() error
}

// NewDecoder returns a Decoder. Non-positive limits select the defaults.
func NewDecoder(r *bufio.Reader, maxHeaderSize, maxChunkSize int) *Decoder {
	if maxHeaderSize <= 0 {
		maxHeaderSize = DefaultMaxHeaderSize
	}
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	return &Decoder{r: r, maxHeader: maxHeaderSize, maxChunk: maxChunkSize}
}

// AtBoundary reports whether the next object is the meta of a new request.
func (d *Decoder) AtBoundary() bool { return d.state == stateMeta }

// Await blocks until the first byte of the next request is buffered. It
// returns io.EOF if the peer closed the stream instead.
func (d *Decoder) Await() error {
	_, err := d.r.Peek(1)
	return err
}

// Next returns the next decoded object. It returns io.EOF when the peer closed
// the stream cleanly between requests, and a domain protocol error otherwise.
func (d *Decoder) Next() (any, error) {
	switch d.state {
	case stateMeta:
		return d.readMeta()
	case stateEmptyBody:
		d.state = stateMeta
		return domain.EmptyLastChunk(), nil
	case stateFixed:
		return d.readFixed()
	default:
		return d.readChunk()
	}
}

func (d *Decoder) readMeta() (any, error) {
	budget := d.maxHeader
	line, err := d.readLine(&budget)
	// Tolerate empty lines before the request line.
	for err == nil && line == "" {
		line, err = d.readLine(&budget)
	}
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, truncated(err)
	}

	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, domain.ErrMalformedMessage.WithDetails("invalid request line " + strconv.Quote(line))
	}
	version, err := domain.ParseVersion(parts[2])
	if err != nil {
		return nil, err
	}
	meta := domain.NewRequestMeta(domain.Method(parts[0]), parts[1], version)
	if err := d.readFields(meta.Headers, &budget); err != nil {
		return nil, err
	}
	if err := d.selectBody(meta); err != nil {
		return nil, err
	}
	d.onBodyDemand = nil
	return meta, nil
}

func (d *Decoder) selectBody(meta *domain.RequestMeta) error {
	n, hasLength, err := domain.ContentLength(meta.Headers)
	if err != nil {
		return err
	}
	if meta.Headers.Has(domain.HeaderTransferEncoding) {
		if hasLength {
			return domain.ErrMalformedMessage.WithDetails("both content-length and transfer-encoding")
		}
		values := meta.Headers.Values(domain.HeaderTransferEncoding)
		last := strings.TrimSpace(values[len(values)-1])
		if i := strings.LastIndexByte(last, ','); i >= 0 {
			last = strings.TrimSpace(last[i+1:])
		}
		if !strings.EqualFold(last, domain.ValueChunked) {
			return domain.ErrMalformedMessage.WithDetails("unsupported transfer-encoding " + strconv.Quote(last))
		}
		d.state = stateChunked
		return nil
	}
	if hasLength && n > 0 {
		d.state = stateFixed
		d.remaining = n
		return nil
	}
	d.state = stateEmptyBody
	return nil
}

// OnBodyDemand installs fn to run once, before the first body bytes of the
// current request are read. It is cleared by the next request meta.
func (d *Decoder) OnBodyDemand(fn func() error) { d.onBodyDemand = fn }

func (d *Decoder) bodyDemanded() error {
	if fn := d.onBodyDemand; fn != nil {
		d.onBodyDemand = nil
		return fn()
	}
	return nil
}

func (d *Decoder) readFixed() (any, error) {
	if err := d.bodyDemanded(); err != nil {
		return nil, err
	}
	size := d.remaining
	if size > int64(d.maxChunk) {
		size = int64(d.maxChunk)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, truncated(err)
	}
	d.remaining -= size
	if d.remaining == 0 {
		d.state = stateMeta
		return &domain.LastChunk{Data: buf}, nil
	}
	return domain.Chunk(buf), nil
}

func (d *Decoder) readChunk() (any, error) {
	if err := d.bodyDemanded(); err != nil {
		return nil, err
	}
	budget := d.maxHeader
	line, err := d.readLine(&budget)
	if err != nil {
		return nil, truncated(err)
	}
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	size, err := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
	if err != nil || size < 0 {
		return nil, domain.ErrMalformedMessage.WithDetails("invalid chunk size " + strconv.Quote(line))
	}
	if size > int64(d.maxChunk) {
		return nil, domain.ErrChunkTooLarge.WithDetails(fmt.Sprintf("chunk of %d bytes exceeds %d", size, d.maxChunk))
	}

	if size == 0 {
		trailers := &domain.Headers{}
		if err := d.readFields(trailers, &budget); err != nil {
			return nil, err
		}
		d.state = stateMeta
		last := &domain.LastChunk{}
		if trailers.Len() > 0 {
			last.Trailers = trailers
		}
		return last, nil
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, truncated(err)
	}
	if err := d.expectCRLF(); err != nil {
		return nil, err
	}
	return domain.Chunk(buf), nil
}

// readFields reads header fields up to the empty line ending the section.
func (d *Decoder) readFields(h *domain.Headers, budget *int) error {
	for {
		line, err := d.readLine(budget)
		if err != nil {
			return truncated(err)
		}
		if line == "" {
			return nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			return domain.ErrMalformedMessage.WithDetails("obsolete line folding")
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return domain.ErrMalformedMessage.WithDetails("invalid header line " + strconv.Quote(line))
		}
		name := line[:i]
		if strings.ContainsAny(name, " \t") {
			return domain.ErrMalformedMessage.WithDetails("whitespace in header name " + strconv.Quote(name))
		}
		h.Add(name, strings.TrimSpace(line[i+1:]))
	}
}

// readLine reads one CRLF (or bare LF) terminated line, charging its length
// against budget.
func (d *Decoder) readLine(budget *int) (string, error) {
	var sb strings.Builder
	for {
		frag, err := d.r.ReadSlice('\n')
		*budget -= len(frag)
		if *budget < 0 {
			return "", domain.ErrHeaderTooLarge.WithDetails(fmt.Sprintf("limit is %d bytes", d.maxHeader))
		}
		sb.Write(frag)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && sb.Len() > 0 {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	line := sb.String()
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

func (d *Decoder) expectCRLF() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return truncated(err)
	}
	if b == '\r' {
		if b, err = d.r.ReadByte(); err != nil {
			return truncated(err)
		}
	}
	if b != '\n' {
		return domain.ErrMalformedMessage.WithDetails("missing CRLF after chunk data")
	}
	return nil
}

// truncated reports an EOF in the middle of a message as a protocol error.
func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.ErrMalformedMessage.WithDetails("message truncated").WithCause(io.ErrUnexpectedEOF)
	}
	return err
}
