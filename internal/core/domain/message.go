package domain

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

// Version is an HTTP protocol version.
type Version struct {
	Major, Minor int
}

// Supported protocol versions.
var (
	HTTP10 = Version{1, 0}
	HTTP11 = Version{1, 1}
)

func (v Version) String() string {
	return "HTTP/" + strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// AtLeast reports whether v is other or newer.
func (v Version) AtLeast(other Version) bool {
	return v.Major > other.Major || (v.Major == other.Major && v.Minor >= other.Minor)
}

// ParseVersion parses "HTTP/1.0" or "HTTP/1.1".
func ParseVersion(s string) (Version, error) {
	switch s {
	case "HTTP/1.1":
		return HTTP11, nil
	case "HTTP/1.0":
		return HTTP10, nil
	}
	return Version{}, ErrMalformedMessage.WithDetails(fmt.Sprintf("unsupported version %q", s))
}

// Method is an HTTP request method.
type Method string

// Request methods.
const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodOptions Method = "OPTIONS"
	MethodConnect Method = "CONNECT"
	MethodTrace   Method = "TRACE"
)

// Status is an HTTP response status code.
type Status int

// Response statuses used by the server itself.
const (
	StatusContinue            Status = 100
	StatusOK                  Status = 200
	StatusNoContent           Status = 204
	StatusNotModified         Status = 304
	StatusBadRequest          Status = 400
	StatusNotFound            Status = 404
	StatusMethodNotAllowed    Status = 405
	StatusInternalServerError Status = 500
)

// Text returns the standard reason phrase.
func (s Status) Text() string { return http.StatusText(int(s)) }

// Informational reports whether s is 1xx.
func (s Status) Informational() bool { return s >= 100 && s < 200 }

// RequestMeta is the request line and header section of a request.
type RequestMeta struct {
	Method  Method
	Target  string
	Version Version
	Headers *Headers
}

// NewRequestMeta returns a RequestMeta with empty headers.
func NewRequestMeta(method Method, target string, version Version) *RequestMeta {
	return &RequestMeta{Method: method, Target: target, Version: version, Headers: &Headers{}}
}

// ResponseMeta is the status line and header section of a response.
type ResponseMeta struct {
	Version Version
	Status  Status
	Headers *Headers
}

// NewResponseMeta returns a ResponseMeta with empty headers.
func NewResponseMeta(version Version, status Status) *ResponseMeta {
	return &ResponseMeta{Version: version, Status: status, Headers: &Headers{}}
}

// PayloadChunk is one item of a message body.
type PayloadChunk interface {
	Content() []byte
}

// Chunk is a body item carrying bytes.
type Chunk []byte

// Content implements PayloadChunk.
func (c Chunk) Content() []byte { return c }

// LastChunk marks the end of a body. It may carry the final bytes and
// trailer fields.
type LastChunk struct {
	Data     []byte
	Trailers *Headers
}

// Content implements PayloadChunk.
func (c *LastChunk) Content() []byte { return c.Data }

// EmptyLastChunk returns a LastChunk with no bytes and no trailers.
func EmptyLastChunk() PayloadChunk { return &LastChunk{} }

// IsLastChunk reports whether item terminates a body.
func IsLastChunk(item any) bool {
	_, ok := item.(*LastChunk)
	return ok
}

// Request is a received request: its meta plus a single-subscriber body.
type Request struct {
	*RequestMeta
	Body *concurrent.Publisher[PayloadChunk]
}

// NewRequest combines meta and body.
func NewRequest(meta *RequestMeta, body *concurrent.Publisher[PayloadChunk]) *Request {
	return &Request{RequestMeta: meta, Body: body}
}

// Response is a response produced by a service.
type Response struct {
	*ResponseMeta
	Body *concurrent.Publisher[PayloadChunk]
}

// NewResponse returns a response with an empty body.
func NewResponse(version Version, status Status) *Response {
	return &Response{
		ResponseMeta: NewResponseMeta(version, status),
		Body:         concurrent.Empty[PayloadChunk](),
	}
}

// WithBytes replaces the body with b and sets Content-Length.
func (r *Response) WithBytes(b []byte) *Response {
	r.Headers.Set(HeaderContentLength, strconv.Itoa(len(b)))
	r.Body = concurrent.FromSlice[PayloadChunk](&LastChunk{Data: b})
	return r
}

// WithBody replaces the body with a stream of unknown length.
func (r *Response) WithBody(body *concurrent.Publisher[PayloadChunk]) *Response {
	r.Headers.Del(HeaderContentLength)
	r.Body = body
	return r
}

// TransformBody replaces the body with fn applied to it.
func (r *Response) TransformBody(fn func(*concurrent.Publisher[PayloadChunk]) *concurrent.Publisher[PayloadChunk]) *Response {
	r.Body = fn(r.Body)
	return r
}
