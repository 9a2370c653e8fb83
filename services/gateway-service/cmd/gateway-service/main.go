package main

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookpro/libs/config"
	"github.com/md-rashed-zaman/bookpro/libs/grpcx"
	"github.com/md-rashed-zaman/bookpro/libs/httpx"
	otelx "github.com/md-rashed-zaman/bookpro/libs/otel"
	"github.com/md-rashed-zaman/bookpro/libs/redisx"
	"github.com/md-rashed-zaman/bookpro/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() { _ = runtime.Within(5*time.Second, otelShutdown) }()
	}

	var checks []runtime.ReadyCheck
	if addr := config.String("SCHEDULING_GRPC_ADDR", ""); addr != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "scheduling", Check: grpcx.HealthCheck(addr, grpcx.DialOptions{})})
	}

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	var rateLimitMW httpx.Middleware
	if rdb := redisx.Open(redisx.OptionsFromEnv()); rdb != nil {
		defer func() { _ = rdb.Close() }()
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, config.Int("RATE_LIMIT_BURST", limitPerMinute))
		rateLimitMW = rl.Middleware(httpx.ClientIP)
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	registerRoutes(mux, mustParseURL(config.String("SCHEDULING_URL", "http://scheduling-service:8085")), logger)

	handler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,Idempotency-Key"),
			ExposedHeaders:   config.List("CORS_EXPOSED_HEADERS", "X-Request-Id,Idempotent-Replayed"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE_SECONDS", 600*time.Second),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT_SECONDS", 10*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	if err := runtime.ServeHTTP(ctx, logger, ":"+port, handler); err != nil {
		logger.Error("http server error", "err", err)
	}
}

// publicPrefixes are the scheduling routes reachable from outside. /internal/ stays private.
var publicPrefixes = []string{
	"/api/v1/availability",
	"/api/v1/resource-map",
	"/api/v1/bookings",
}

func registerRoutes(mux *http.ServeMux, schedulingURL *url.URL, logger *slog.Logger) {
	proxy := httputil.NewSingleHostReverseProxy(schedulingURL)
	proxy.Transport = otelhttp.NewTransport(http.DefaultTransport)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		httpx.LoggerFromContext(r.Context(), logger).Error("upstream request failed", "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "scheduling service unavailable")
	}
	for _, prefix := range publicPrefixes {
		registerProxy(mux, prefix, proxy)
	}
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
