package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// MaxClients bounds how many per-client limiters are kept; idle ones
	// are evicted after IdleTTL.
	MaxClients int
	IdleTTL    time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
		MaxClients:        10000,
		IdleTTL:           10 * time.Minute,
	}
}

type limiterStore struct {
	cfg      RateLimitConfig
	limiters *expirable.LRU[string, *rate.Limiter]
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	def := DefaultRateLimitConfig()
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	return &limiterStore{
		cfg:      cfg,
		limiters: expirable.NewLRU[string, *rate.Limiter](cfg.MaxClients, nil, cfg.IdleTTL),
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	if l, ok := s.limiters.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)
	// Two concurrent first requests may each insert; the last one wins.
	s.limiters.Add(key, l)
	return l
}

// RateLimit limits requests per client IP, scoped by tenant when the token
// carries one.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if tenantID, ok := c.Get("jwt_tenant_id").(string); ok && tenantID != "" {
				key = tenantID + ":" + key
			}

			res := store.get(key).Reserve()
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
