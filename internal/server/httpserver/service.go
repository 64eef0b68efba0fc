package httpserver

import (
	"github.com/yndnr/rxhttp-go/internal/core/domain"
	"github.com/yndnr/rxhttp-go/internal/transport"
	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

// Service answers requests. The request body may be consumed, ignored or
// cancelled. An ignored body is drained after the response is written. The
// unread rest of a cancelled body is discarded before the next request is
// read. Neither closes the connection.
//
// An error signalled by the returned Single, or a panic, becomes a 500
// response and the connection stays usable. A Service that also implements
// concurrent.AsyncCloseable is closed with its server.
type Service interface {
	Handle(ctx transport.ConnectionContext, req *domain.Request) *concurrent.Single[*domain.Response]
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx transport.ConnectionContext, req *domain.Request) *concurrent.Single[*domain.Response]

// Handle calls f.
func (f ServiceFunc) Handle(ctx transport.ConnectionContext, req *domain.Request) *concurrent.Single[*domain.Response] {
	return f(ctx, req)
}

// errorResponse is sent when the service fails.
func errorResponse(req *domain.RequestMeta) *domain.Response {
	resp := domain.NewResponse(req.Version, domain.StatusInternalServerError)
	resp.Headers.Set(domain.HeaderContentLength, "0")
	resp.Body = concurrent.FromSlice(domain.EmptyLastChunk())
	return resp
}
