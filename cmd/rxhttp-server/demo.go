package main

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/yndnr/rxhttp-go/internal/core/domain"
	"github.com/yndnr/rxhttp-go/internal/infra/buildinfo"
	"github.com/yndnr/rxhttp-go/internal/server/httpserver"
	"github.com/yndnr/rxhttp-go/internal/transport"
	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

// maxDelay caps the /delay endpoint.
const maxDelay = 10 * time.Second

type demoService struct {
	executor concurrent.Executor
}

func newDemoService(executor concurrent.Executor) httpserver.Service {
	return &demoService{executor: executor}
}

func (d *demoService) Handle(_ transport.ConnectionContext, req *domain.Request) *concurrent.Single[*domain.Response] {
	target, err := url.ParseRequestURI(req.Target)
	if err != nil {
		return concurrent.Success(text(req, domain.StatusBadRequest, "bad request target\n"))
	}

	switch target.Path {
	case "/":
		if !allowed(req, domain.MethodGet, domain.MethodHead) {
			return concurrent.Success(notAllowed(req, "GET, HEAD"))
		}
		return concurrent.Success(text(req, domain.StatusOK, "hello from rxhttp\n"))

	case "/health":
		body, _ := json.Marshal(map[string]any{"status": "ok", "build": buildinfo.Get()})
		resp := domain.NewResponse(req.Version, domain.StatusOK).WithBytes(body)
		resp.Headers.Set(domain.HeaderContentType, "application/json")
		return concurrent.Success(resp)

	case "/echo":
		if !allowed(req, domain.MethodPost, domain.MethodPut) {
			return concurrent.Success(notAllowed(req, "POST, PUT"))
		}
		resp := domain.NewResponse(req.Version, domain.StatusOK).WithBody(req.Body)
		if ct, ok := req.Headers.Get(domain.HeaderContentType); ok {
			resp.Headers.Set(domain.HeaderContentType, ct)
		}
		return concurrent.Success(resp)

	case "/delay":
		ms, err := strconv.Atoi(target.Query().Get("ms"))
		if err != nil || ms < 0 {
			return concurrent.Success(text(req, domain.StatusBadRequest, "ms must be a non-negative integer\n"))
		}
		delay := min(time.Duration(ms)*time.Millisecond, maxDelay)
		return concurrent.FromBlocking(d.executor, func() (*domain.Response, error) {
			time.Sleep(delay)
			return text(req, domain.StatusOK, "waited "+delay.String()+"\n"), nil
		})
	}
	return concurrent.Success(text(req, domain.StatusNotFound, "not found\n"))
}

func allowed(req *domain.Request, methods ...domain.Method) bool {
	for _, m := range methods {
		if req.Method == m {
			return true
		}
	}
	return false
}

func text(req *domain.Request, status domain.Status, body string) *domain.Response {
	resp := domain.NewResponse(req.Version, status).WithBytes([]byte(body))
	resp.Headers.Set(domain.HeaderContentType, "text/plain; charset=utf-8")
	return resp
}

func notAllowed(req *domain.Request, allow string) *domain.Response {
	resp := text(req, domain.StatusMethodNotAllowed, "method not allowed\n")
	resp.Headers.Set("Allow", allow)
	return resp
}
