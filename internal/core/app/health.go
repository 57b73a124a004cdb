package app

import (
	"context"
	"time"

	"codefuse/internal/engine/validate"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	app *App
}

func NewHealthService(app *App) *HealthService {
	return &HealthService{app: app}
}

// Check reports "up" while the extractor works. Missing tools and a
// disabled history store are informational only.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}

	if s.app == nil || s.app.Extractor == nil {
		status.Status = "degraded"
		status.Components["extractor"] = "missing"
		return status
	}
	if err := s.app.Extractor.CheckSyntax([]byte("pass\n")); err != nil {
		status.Status = "degraded"
		status.Components["extractor"] = err.Error()
	} else {
		status.Components["extractor"] = "ok"
	}

	runner := s.app.Runner()
	for _, tool := range []validate.Tool{validate.ToolLint, validate.ToolTypecheck, validate.ToolTests} {
		state := "unavailable"
		if runner != nil && runner.Available(tool) {
			state = "available"
		}
		status.Components["tool_"+string(tool)] = state
	}

	if s.app.History != nil {
		status.Components["history"] = "ok"
	} else {
		status.Components["history"] = "disabled"
	}

	if err := ctx.Err(); err != nil {
		status.Status = "degraded"
	}
	return status
}
