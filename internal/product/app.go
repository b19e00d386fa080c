package product

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ProductStore/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string

	RateLimit RateLimitDeps
}

// RateLimitDeps configures the limiter on POST/PUT/DELETE. RPS <= 0 leaves
// mutations unlimited.
type RateLimitDeps struct {
	RPS            float64
	Burst          int
	TrustedProxies []string
}

// NewHandler serves the product API for s. A Registry instruments the store
// and the request path; s itself is left untouched.
func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	srv := *s
	if srv.Log == nil {
		srv.Log = deps.Log
	}
	if deps.Registry != nil {
		srv.Store = Instrument(srv.Store, deps.Registry)
	}
	if srv.Limiter == nil {
		srv.Limiter = newMutationLimiter(deps.RateLimit, srv.logger())
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(kit.Recoverer)
	r.Use(kit.Logging(deps.Log))

	if deps.Registry != nil {
		metrics := kit.NewMetrics(deps.Registry)
		r.Use(metrics.Middleware(deps.Service, kit.ChiRoutePatternOrPath))

		if deps.MetricsEnabled {
			r.With(kit.MetricsAuth(deps.MetricsToken)).
				Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
		}
	}

	r.Mount("/", srv.Routes())
	return r
}

func newMutationLimiter(d RateLimitDeps, log *zap.Logger) *kit.IPRateLimiter {
	if d.RPS <= 0 {
		return nil
	}

	l := kit.NewIPRateLimiter(d.RPS, d.Burst)
	if err := l.TrustProxies(d.TrustedProxies); err != nil {
		log.Warn("ignoring trusted proxies", zap.Error(err))
	}
	log.Info("mutation rate limit enabled",
		zap.Float64("rps", d.RPS), zap.Int("burst", d.Burst),
		zap.Strings("trusted_proxies", d.TrustedProxies))
	return l
}
