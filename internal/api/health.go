package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthChecker is one dependency probe for the readiness endpoint.
type HealthChecker interface {
	Check(ctx context.Context) error
	Name() string
}

type checkResult struct {
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PostgresChecker probes the durable store.
type PostgresChecker struct {
	db *sql.DB
}

func NewPostgresChecker(db *sql.DB) *PostgresChecker { return &PostgresChecker{db: db} }

func (c *PostgresChecker) Name() string { return "postgres" }

func (c *PostgresChecker) Check(ctx context.Context) error { return c.db.PingContext(ctx) }

// RedisChecker probes the cache backend when Redis is in use.
type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker { return &RedisChecker{client: client} }

func (c *RedisChecker) Name() string { return "redis" }

func (c *RedisChecker) Check(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func runChecks(ctx context.Context, checkers []HealthChecker) map[string]checkResult {
	results := make(map[string]checkResult)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, checker := range checkers {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()

			start := time.Now()
			err := c.Check(ctx)

			result := checkResult{Status: "ok", Duration: time.Since(start).String()}
			if err != nil {
				result.Status = "error"
				result.Error = err.Error()
			}

			mu.Lock()
			results[c.Name()] = result
			mu.Unlock()
		}(checker)
	}

	wg.Wait()
	return results
}

// handleHealth reports overall status including key pool degradation: all
// credentials in cooldown means the service still answers, slower.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.pool.Stats()
	cooling := 0
	for _, s := range stats {
		if s.InCooldown {
			cooling++
		}
	}

	status := "healthy"
	if len(stats) > 0 && cooling == len(stats) {
		status = "degraded"
	}

	body := map[string]any{
		"status":              status,
		"credentials":         len(stats),
		"credentials_cooling": cooling,
	}
	if h.weather != nil {
		body["weather_breaker"] = h.weather.BreakerState()
	}
	writeJSON(w, http.StatusOK, body)
}

func handleHealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleHealthReady(checkers []HealthChecker, timeout time.Duration) http.HandlerFunc {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		results := runChecks(ctx, checkers)

		status, httpStatus := "ready", http.StatusOK
		for _, result := range results {
			if result.Status != "ok" {
				status, httpStatus = "not_ready", http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus)
		json.NewEncoder(w).Encode(map[string]any{"status": status, "checks": results})
	}
}
