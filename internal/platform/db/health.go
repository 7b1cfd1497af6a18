package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"totalConns"`
	IdleConns       int32  `json:"idleConns"`
	AcquiredConns   int32  `json:"acquiredConns"`
	MaxConns        int32  `json:"maxConns"`
	AcquireCount    int64  `json:"acquireCount"`
	AcquireDuration string `json:"acquireDuration"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Check is a named dependency probe reported by HealthHandler.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandler pings the database and every extra dependency. Any failing
// probe turns the response into a 503.
func HealthHandler(pool *pgxpool.Pool, checks ...Check) echo.HandlerFunc {
	all := append([]Check{{Name: "database", Probe: pool.Ping}}, checks...)
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		body := runChecks(ctx, all)
		body["pool"] = GetPoolStats(pool)
		if body["status"] != "healthy" {
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, body)
	}
}

func runChecks(ctx context.Context, checks []Check) map[string]interface{} {
	status := "healthy"
	results := make(map[string]string, len(checks))
	for _, chk := range checks {
		if err := chk.Probe(ctx); err != nil {
			status = "unhealthy"
			results[chk.Name] = err.Error()
			continue
		}
		results[chk.Name] = "ok"
	}
	return map[string]interface{}{
		"status": status,
		"checks": results,
	}
}
