package domain

// KeepAlive is the connection reuse decision for one exchange, derived from
// the request's version and Connection header.
type KeepAlive struct {
	close  bool
	header string
}

// Keep-alive outcomes. The header is only written when it differs from the
// protocol version's implicit default.
var (
	keepAliveImplicit  = KeepAlive{}
	keepAliveAnnounced = KeepAlive{header: ValueKeepAlive}
	closeAnnounced     = KeepAlive{close: true, header: ValueClose}
	closeImplicit      = KeepAlive{close: true}
)

// KeepAliveFor decides whether the connection survives the exchange started
// by req. HTTP/1.1 stays open unless the client asked to close; HTTP/1.0
// closes unless the client asked to keep alive.
func KeepAliveFor(req *RequestMeta) KeepAlive {
	if req.Version.AtLeast(HTTP11) {
		if req.Headers.ContainsToken(HeaderConnection, ValueClose) {
			return closeAnnounced
		}
		return keepAliveImplicit
	}
	if req.Headers.ContainsToken(HeaderConnection, ValueKeepAlive) {
		return keepAliveAnnounced
	}
	return closeImplicit
}

// Close reports whether the client's request asks for the connection to close.
func (k KeepAlive) Close() bool { return k.close }

// AddConnectionHeaderIfNecessary annotates resp when the decision differs from
// the version default. A Connection: close set by the service is left alone.
func (k KeepAlive) AddConnectionHeaderIfNecessary(resp *ResponseMeta) {
	if k.header == "" || resp.Headers.ContainsToken(HeaderConnection, ValueClose) {
		return
	}
	resp.Headers.Set(HeaderConnection, k.header)
}

// ShouldClose reports whether the connection must close once resp is written:
// the client asked for it, the service asked for it, or the response body is
// delimited by closing the connection.
func (k KeepAlive) ShouldClose(req *RequestMeta, resp *ResponseMeta) bool {
	return k.close ||
		resp.Headers.ContainsToken(HeaderConnection, ValueClose) ||
		CloseDelimited(req, resp)
}
