package db

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const healthTimeout = 5 * time.Second

type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
	AcquireCount  int64 `json:"acquire_count"`
}

func poolStats(pool *pgxpool.Pool) PoolStats {
	s := pool.Stat()
	return PoolStats{
		TotalConns:    s.TotalConns(),
		IdleConns:     s.IdleConns(),
		AcquiredConns: s.AcquiredConns(),
		MaxConns:      s.MaxConns(),
		AcquireCount:  s.AcquireCount(),
	}
}

// Check is an optional dependency probed alongside the database, e.g. redis.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type HealthReport struct {
	Status string            `json:"status"`
	Error  string            `json:"error,omitempty"`
	Pool   *PoolStats        `json:"pool,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// probe pings the database and every check in parallel. A database failure
// makes the report unhealthy; a failed check only degrades it.
func probe(ctx context.Context, ping func(context.Context) error, checks []Check) HealthReport {
	var (
		mu     sync.Mutex
		failed = map[string]string{}
		dbErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dbErr = ping(gctx)
		return nil
	})
	for _, chk := range checks {
		chk := chk
		g.Go(func() error {
			if err := chk.Ping(gctx); err != nil {
				mu.Lock()
				failed[chk.Name] = err.Error()
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	r := HealthReport{Status: "healthy"}
	if len(failed) > 0 {
		r.Status = "degraded"
		r.Checks = failed
	}
	if dbErr != nil {
		r.Status = "unhealthy"
		r.Error = dbErr.Error()
	}
	return r
}

// HealthHandler serves /health/db: 503 when postgres is unreachable, 200
// otherwise with "degraded" if an extra check failed.
func HealthHandler(pool *pgxpool.Pool, checks ...Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		r := probe(ctx, pool.Ping, checks)
		stats := poolStats(pool)
		r.Pool = &stats
		if r.Status == "unhealthy" {
			return c.JSON(http.StatusServiceUnavailable, r)
		}
		return c.JSON(http.StatusOK, r)
	}
}
