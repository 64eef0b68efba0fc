package httpserver

import (
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/rxhttp-go/internal/transport"
	"github.com/yndnr/rxhttp-go/pkg/cmap"
	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

// ConnectionFilter decides whether an accepted connection is served. A false
// result or an error closes the connection before any bytes are read.
type ConnectionFilter interface {
	Filter(ctx transport.ConnectionContext) *concurrent.Single[bool]
}

// FilterFunc adapts a function to ConnectionFilter.
type FilterFunc func(ctx transport.ConnectionContext) *concurrent.Single[bool]

// Filter calls f.
func (f FilterFunc) Filter(ctx transport.ConnectionContext) *concurrent.Single[bool] { return f(ctx) }

// AcceptAll accepts every connection.
func AcceptAll() ConnectionFilter {
	return FilterFunc(func(transport.ConnectionContext) *concurrent.Single[bool] {
		return concurrent.Success(true)
	})
}

// NetworkACL accepts connections whose remote IP matches allowList. Entries
// are single IPs or CIDR blocks; invalid entries are logged and skipped. An
// empty allowList accepts everything.
func NetworkACL(allowList []string, logger *slog.Logger) ConnectionFilter {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		networks  []*net.IPNet
		singleIPs []net.IP
	)
	for _, entry := range allowList {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn("invalid CIDR in allowlist", "entry", entry, "error", err)
				continue
			}
			networks = append(networks, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			logger.Warn("invalid IP in allowlist", "entry", entry)
			continue
		}
		singleIPs = append(singleIPs, ip)
	}

	return FilterFunc(func(ctx transport.ConnectionContext) *concurrent.Single[bool] {
		if len(networks) == 0 && len(singleIPs) == 0 {
			return concurrent.Success(true)
		}
		ip := net.ParseIP(remoteHost(ctx.RemoteAddr()))
		if ip == nil {
			return concurrent.Success(false)
		}
		for _, allowed := range singleIPs {
			if allowed.Equal(ip) {
				return concurrent.Success(true)
			}
		}
		for _, network := range networks {
			if network.Contains(ip) {
				return concurrent.Success(true)
			}
		}
		logger.Warn("connection denied by network ACL", "client_ip", ip.String())
		return concurrent.Success(false)
	})
}

// RateLimit accepts at most perSecond new connections per remote IP, with
// bursts of up to burst. A non-positive perSecond disables the limit.
//
// Limiters whose bucket has refilled completely carry no state and are
// dropped by a sweep that runs at most once per refill period.
func RateLimit(perSecond float64, burst int) ConnectionFilter {
	if perSecond <= 0 {
		return AcceptAll()
	}
	if burst <= 0 {
		burst = max(1, int(perSecond))
	}
	return newRateLimiter(perSecond, burst, time.Now)
}

type rateLimiter struct {
	limit    rate.Limit
	burst    int
	interval time.Duration
	now      func() time.Time
	limiters *cmap.Map[*rate.Limiter]
	// Unix nanoseconds of the last sweep.
	lastSweep atomic.Int64
}

func newRateLimiter(perSecond float64, burst int, now func() time.Time) *rateLimiter {
	interval := time.Duration(float64(burst) / perSecond * float64(time.Second))
	r := &rateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		interval: max(interval, time.Second),
		now:      now,
		limiters: cmap.New[*rate.Limiter](),
	}
	r.lastSweep.Store(now().UnixNano())
	return r
}

func (r *rateLimiter) Filter(ctx transport.ConnectionContext) *concurrent.Single[bool] {
	now := r.now()
	r.maybeSweep(now)

	host := remoteHost(ctx.RemoteAddr())
	limiter, ok := r.limiters.Get(host)
	if !ok {
		r.limiters.SetIfAbsent(host, rate.NewLimiter(r.limit, r.burst))
		limiter, _ = r.limiters.Get(host)
	}
	return concurrent.Success(limiter.AllowN(now, 1))
}

func (r *rateLimiter) maybeSweep(now time.Time) {
	last := r.lastSweep.Load()
	if now.UnixNano()-last < int64(r.interval) || !r.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	var idle []string
	r.limiters.Range(func(host string, l *rate.Limiter) bool {
		if l.TokensAt(now) >= float64(r.burst) {
			idle = append(idle, host)
		}
		return true
	})
	for _, host := range idle {
		r.limiters.Delete(host)
	}
}

// ChainFilters accepts a connection only if every filter accepts it. Filters
// run in order and the first rejection or error ends the chain.
func ChainFilters(filters ...ConnectionFilter) ConnectionFilter {
	switch len(filters) {
	case 0:
		return AcceptAll()
	case 1:
		return filters[0]
	}
	return filterChain(filters)
}

type filterChain []ConnectionFilter

func (c filterChain) Filter(ctx transport.ConnectionContext) *concurrent.Single[bool] {
	return concurrent.NewSingle(func(sub concurrent.SingleSubscriber[bool]) {
		st := &chainStage{chain: c, ctx: ctx, down: sub}
		sub.OnSubscribe(&st.stage)
		st.run()
	})
}

type chainStage struct {
	chain filterChain
	ctx   transport.ConnectionContext
	down  concurrent.SingleSubscriber[bool]
	stage concurrent.SequentialCancellable
	i     int
}

func (s *chainStage) run() {
	f := s.chain[s.i]
	concurrent.DeferSingle(func() *concurrent.Single[bool] { return f.Filter(s.ctx) }).Subscribe(s)
}

func (s *chainStage) OnSubscribe(c concurrent.Cancellable) { s.stage.Set(c) }

func (s *chainStage) OnSuccess(accepted bool) {
	if !accepted || s.i == len(s.chain)-1 {
		s.down.OnSuccess(accepted)
		return
	}
	s.i++
	s.run()
}

func (s *chainStage) OnError(err error) { s.down.OnError(err) }

func remoteHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
