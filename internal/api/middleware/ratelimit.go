package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Talha-Tahir2001/CollabSphere/internal/metrics"
	"github.com/Talha-Tahir2001/CollabSphere/internal/store"
)

// RateLimit defines limits for an endpoint.
type RateLimit struct {
	Name     string
	Method   string
	Match    func(path string) bool
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiter applies fixed window limits backed by a store.RateLimiter.
type RateLimiter struct {
	counter store.RateLimiter
	limits  []RateLimit
	logger  zerolog.Logger
}

// NewRateLimiter creates a rate limiter. messagesPerMinute bounds message
// posts per user; zero disables that limit. A nil counter disables all limits.
func NewRateLimiter(counter store.RateLimiter, logger zerolog.Logger, messagesPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		counter: counter,
		logger:  logger,
		limits: []RateLimit{
			{"register", http.MethodPost, exact("/auth/register"), 10, time.Hour, ipKey},
			{"login", http.MethodPost, exact("/auth/login"), 20, time.Minute, ipKey},
			{"create_workspace", http.MethodPost, exact("/workspaces"), 10, time.Hour, userKey},
			{"add_member", http.MethodPost, suffix("/members"), 60, time.Minute, userKey},
		},
	}
	if messagesPerMinute > 0 {
		rl.limits = append(rl.limits, RateLimit{"post_message", http.MethodPost, suffix("/messages"), messagesPerMinute, time.Minute, userKey})
	}
	return rl
}

func exact(p string) func(string) bool {
	return func(path string) bool { return path == p }
}

// suffix matches /workspaces/{id}<s>.
func suffix(s string) func(string) bool {
	return func(path string) bool {
		rest, ok := strings.CutPrefix(path, "/workspaces/")
		return ok && strings.HasSuffix(rest, s) && strings.Count(rest, "/") == 1
	}
}

// ipKey returns rate limit key based on client IP.
func ipKey(r *http.Request) string {
	return "ip:" + RealIP(r)
}

// userKey returns the authenticated user's key, falling back to the IP.
func userKey(r *http.Request) string {
	if user := GetUserFromContext(r.Context()); user != nil {
		return "user:" + user.ID.String()
	}
	return ipKey(r)
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Middleware returns the rate limiting middleware. Counter errors let the
// request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := rl.findLimit(r)
		if rl.counter == nil || limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		// Budgets are per caller, shared across workspaces.
		key := limit.Name + ":" + limit.KeyFunc(r)
		resetAt := time.Now().Add(limit.Window)

		allowed, err := rl.counter.CheckRateLimit(r.Context(), key, limit.Requests, limit.Window)
		if err != nil {
			rl.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			metrics.RateLimitHits.Inc()
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", RealIP(r)).
				Str("endpoint", r.URL.Path).
				Str("key", key).
				Msg("rate limit exceeded")

			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		count, err := rl.counter.IncrementRateLimit(r.Context(), key, limit.Window)
		if err != nil {
			rl.logger.Warn().Err(err).Str("key", key).Msg("rate limit increment failed")
		} else {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(limit.Requests-count, 0)))
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit finds the matching rate limit for a request.
func (rl *RateLimiter) findLimit(r *http.Request) *RateLimit {
	for i := range rl.limits {
		l := &rl.limits[i]
		if l.Method == r.Method && l.Match(r.URL.Path) {
			return l
		}
	}
	return nil
}
