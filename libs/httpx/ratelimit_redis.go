package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter counts hits per key in a fixed Redis window so every replica
// shares one budget.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
}

// Decision is the outcome of one counted hit.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// The script returns the hit count and the window's remaining lifetime in ms.
var fixedWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix}
}

// Middleware limits by client address. When Redis fails, failOpen lets the
// request through; otherwise it is answered with 503.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := rl.Take(r.Context(), ClientIP(r))
			if err != nil {
				logger.Warn("redis rate limiter error", "err", err)
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusServiceUnavailable, "RATE_LIMITER_UNAVAILABLE", "rate limiter unavailable")
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				secs := int((d.ResetIn + time.Second - 1) / time.Second)
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Allow counts one hit against key and reports whether it fits the window budget.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	d, err := rl.Take(ctx, key)
	return d.Allowed, err
}

func (rl *RedisRateLimiter) Take(ctx context.Context, key string) (Decision, error) {
	res, err := fixedWindow.Run(ctx, rl.rdb, []string{rl.prefix + ":" + key}, rl.window.Milliseconds()).Result()
	if err != nil {
		return Decision{}, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return Decision{}, fmt.Errorf("unexpected rate limit script result %v", res)
	}
	count, err := toInt64(vals[0])
	if err != nil {
		return Decision{}, err
	}
	pttl, err := toInt64(vals[1])
	if err != nil {
		return Decision{}, err
	}
	if pttl < 0 {
		pttl = rl.window.Milliseconds()
	}
	return Decision{
		Allowed:   count <= int64(rl.limit),
		Remaining: int(max(int64(rl.limit)-count, 0)),
		ResetIn:   time.Duration(pttl) * time.Millisecond,
	}, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected rate limit counter type %T", v)
	}
}
