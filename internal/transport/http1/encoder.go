package http1

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/yndnr/rxhttp-go/internal/core/domain"
)

type bodyMode int

const (
	bodyNone bodyMode = iota
	bodyRaw
	bodyChunked
)

// Encoder writes response objects to a buffered writer. It is not safe for
// concurrent use.
type Encoder struct {
	w    *bufio.Writer
	mode bodyMode
	open bool
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w *bufio.Writer) *Encoder {
	return &Encoder{w: w}
}

// Flush writes buffered bytes to the underlying writer.
func (e *Encoder) Flush() error { return e.w.Flush() }

// WriteContinue writes an interim 100 Continue response.
func (e *Encoder) WriteContinue() error {
	_, err := e.w.WriteString("HTTP/1.1 100 Continue\r\n\r\n")
	return err
}

// EncodeMeta writes the status line and header section of a response to a
// request with the given method. Informational responses leave the encoder
// waiting for the final response.
func (e *Encoder) EncodeMeta(meta *domain.ResponseMeta, method domain.Method) error {
	if e.open {
		return domain.ErrUnexpectedItem.WithDetails("response meta before previous body ended")
	}
	reason := meta.Status.Text()
	if reason == "" {
		reason = "status " + strconv.Itoa(int(meta.Status))
	}
	if _, err := fmt.Fprintf(e.w, "%s %d %s\r\n", meta.Version, int(meta.Status), reason); err != nil {
		return err
	}
	if err := e.writeFields(meta.Headers); err != nil {
		return err
	}
	if _, err := e.w.WriteString("\r\n"); err != nil {
		return err
	}
	if meta.Status.Informational() {
		return nil
	}

	e.open = true
	switch {
	case !domain.BodyAllowed(method, meta.Status):
		e.mode = bodyNone
	case domain.IsChunked(meta.Headers):
		e.mode = bodyChunked
	default:
		e.mode = bodyRaw
	}
	return nil
}

// EncodeChunk writes one body item. A *domain.LastChunk ends the body.
func (e *Encoder) EncodeChunk(chunk domain.PayloadChunk) error {
	if !e.open {
		return domain.ErrUnexpectedItem.WithDetails("body item before response meta")
	}
	last, isLast := chunk.(*domain.LastChunk)
	data := chunk.Content()

	switch e.mode {
	case bodyRaw:
		if _, err := e.w.Write(data); err != nil {
			return err
		}
	case bodyChunked:
		if len(data) > 0 {
			if _, err := fmt.Fprintf(e.w, "%x\r\n", len(data)); err != nil {
				return err
			}
			if _, err := e.w.Write(data); err != nil {
				return err
			}
			if _, err := e.w.WriteString("\r\n"); err != nil {
				return err
			}
		}
		if isLast {
			if _, err := e.w.WriteString("0\r\n"); err != nil {
				return err
			}
			if err := e.writeFields(last.Trailers); err != nil {
				return err
			}
			if _, err := e.w.WriteString("\r\n"); err != nil {
				return err
			}
		}
	}

	if isLast {
		e.open = false
		e.mode = bodyNone
	}
	return nil
}

func (e *Encoder) writeFields(h *domain.Headers) error {
	var err error
	h.Range(func(name, value string) bool {
		if !validFieldName(name) {
			return true
		}
		_, err = fmt.Fprintf(e.w, "%s: %s\r\n", name, sanitizeFieldValue(value))
		return err == nil
	})
	return err
}

func validFieldName(k string) bool {
	if k == "" {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			continue
		}
		switch c {
		case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
			continue
		}
		return false
	}
	return true
}

// sanitizeFieldValue removes CR, LF and control characters other than HTAB.
func sanitizeFieldValue(v string) string {
	clean := true
	for i := 0; i < len(v); i++ {
		if c := v[i]; c == 0x7f || (c < 0x20 && c != '\t') {
			clean = false
			break
		}
	}
	if clean {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == 0x7f || (c < 0x20 && c != '\t') {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
