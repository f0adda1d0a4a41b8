package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type HealthResponse struct {
	Status     HealthStatus          `json:"status"`
	CheckedAt  time.Time             `json:"checked_at"`
	Components map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus   `json:"status"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CheckedAt  time.Time      `json:"checked_at"`
	DurationMs int64          `json:"duration_ms"`
}

// HealthCheck probes one dependency. Details are reported even when healthy.
type HealthCheck func(ctx context.Context) (map[string]any, error)

type HealthHandler struct {
	checks  map[string]HealthCheck
	timeout time.Duration
}

func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

func DatabaseCheck(db *sqlx.DB) HealthCheck {
	return func(ctx context.Context) (map[string]any, error) {
		if err := db.PingContext(ctx); err != nil {
			return nil, err
		}
		stats := db.Stats()
		return map[string]any{
			"driver":           db.DriverName(),
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
		}, nil
	}
}

func RedisCheck(client *redis.Client) HealthCheck {
	return func(ctx context.Context) (map[string]any, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		return map[string]any{"addr": client.Options().Addr}, nil
	}
}

func NATSCheck(conn *nats.Conn) HealthCheck {
	return func(ctx context.Context) (map[string]any, error) {
		details := map[string]any{"status": conn.Status().String()}
		if !conn.IsConnected() {
			return details, errors.New("nats connection is not established")
		}
		if err := conn.FlushWithContext(ctx); err != nil {
			return details, err
		}
		details["server"] = conn.ConnectedUrlRedacted()
		return details, nil
	}
}

func (h *HealthHandler) pingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "OK"})
}

// healthCheckHandler runs every check; any failure makes the whole response 503.
func (h *HealthHandler) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     HealthHealthy,
		Components: make(map[string]CheckEntry, len(h.checks)),
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		start := time.Now()
		details, err := h.checks[name](ctx)
		cancel()

		entry := CheckEntry{
			Status:     HealthHealthy,
			Details:    details,
			CheckedAt:  time.Now(),
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			entry.Status = HealthUnhealthy
			entry.Message = err.Error()
			resp.Status = HealthUnhealthy
		}
		resp.Components[name] = entry
	}
	resp.CheckedAt = time.Now()

	statusCode := http.StatusOK
	if resp.Status == HealthUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
