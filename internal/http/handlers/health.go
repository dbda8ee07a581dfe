package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/enliterate-io/enliterate/internal/database"
)

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *database.DB
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, db *database.DB) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		db:        db,
	}
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body struct {
		Status        string            `json:"status"`
		Version       string            `json:"version"`
		Timestamp     string            `json:"timestamp"`
		UptimeSeconds float64           `json:"uptime_seconds"`
		Checks        map[string]string `json:"checks"`
	}
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns service health including a database ping.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	now := time.Now()

	dbStatus := "ok"
	if h.db != nil {
		sqlDB, err := h.db.DB.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "error"
		}
	} else {
		dbStatus = "unknown"
	}

	out := &HealthOutput{}
	out.Body.Status = "healthy"
	if dbStatus == "error" {
		out.Body.Status = "degraded"
	}
	out.Body.Version = h.version
	out.Body.Timestamp = now.UTC().Format(time.RFC3339)
	out.Body.UptimeSeconds = now.Sub(h.startTime).Seconds()
	out.Body.Checks = map[string]string{"database": dbStatus}
	return out, nil
}
