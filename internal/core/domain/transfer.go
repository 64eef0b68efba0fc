package domain

import (
	"strconv"
	"strings"
)

// BodyAllowed reports whether a response to method with status may carry a
// body.
func BodyAllowed(method Method, status Status) bool {
	return method != MethodHead &&
		!status.Informational() &&
		status != StatusNoContent &&
		status != StatusNotModified
}

// IsChunked reports whether h declares chunked transfer coding.
func IsChunked(h *Headers) bool {
	return h.ContainsToken(HeaderTransferEncoding, ValueChunked)
}

// ContentLength returns the declared body length. ok is false when the header
// is absent.
func ContentLength(h *Headers) (n int64, ok bool, err error) {
	v, ok := h.Get(HeaderContentLength)
	if !ok {
		return 0, false, nil
	}
	n, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, true, ErrMalformedMessage.WithDetails("invalid content-length " + strconv.Quote(v))
	}
	return n, true, nil
}

// AddTransferEncodingIfNecessary marks resp as chunked when its body length is
// unknown and the exchange permits a body. HTTP/1.0 clients do not understand
// chunked coding; their responses stay close-delimited instead.
func AddTransferEncodingIfNecessary(req *RequestMeta, resp *ResponseMeta) {
	if !req.Version.AtLeast(HTTP11) || !resp.Version.AtLeast(HTTP11) {
		return
	}
	if IsChunked(resp.Headers) || resp.Headers.Has(HeaderContentLength) {
		return
	}
	if !BodyAllowed(req.Method, resp.Status) {
		return
	}
	resp.Headers.Add(HeaderTransferEncoding, ValueChunked)
}

// CloseDelimited reports whether the end of resp's body can only be signalled
// by closing the connection.
func CloseDelimited(req *RequestMeta, resp *ResponseMeta) bool {
	if !BodyAllowed(req.Method, resp.Status) {
		return false
	}
	return !IsChunked(resp.Headers) && !resp.Headers.Has(HeaderContentLength)
}
