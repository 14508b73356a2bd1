// Package app aggregates per-dependency health probes into liveness and
// readiness reports.
package app

import (
	"context"

	"github.com/veracitylab/analysis-backend/store"
)

// Component statuses.
const (
	StatusUp       = "up"
	StatusDown     = "down"
	StatusDisabled = "disabled"
)

// Overall statuses.
const (
	Healthy   = "healthy"
	Degraded  = "degraded"
	Unhealthy = "unhealthy"
)

// HealthStatus captures the outcome of one dependency probe.
type HealthStatus struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Critical bool   `json:"critical"`
}

// HealthProbe exposes a uniform interface for readiness probes.
type HealthProbe interface {
	Run(ctx context.Context) HealthStatus
}

type healthProbeFunc struct {
	name     string
	critical bool
	fn       func(ctx context.Context) string
}

func (h healthProbeFunc) Run(ctx context.Context) HealthStatus {
	return HealthStatus{
		Name:     h.name,
		Status:   h.fn(ctx),
		Critical: h.critical,
	}
}

// StoreProbe builds a probe over a connection manager. A nil manager means
// the dependency was never configured and reports disabled rather than down.
func StoreProbe(name string, conn store.Conn, critical bool) HealthProbe {
	if conn == nil {
		return healthProbeFunc{
			name:     name,
			critical: critical,
			fn:       func(context.Context) string { return StatusDisabled },
		}
	}

	return healthProbeFunc{
		name:     name,
		critical: critical,
		fn: func(context.Context) string {
			if conn.IsConnected() {
				return StatusUp
			}
			return StatusDown
		},
	}
}

// Report is the aggregated readiness view.
type Report struct {
	Status     string         `json:"status"`
	Components []HealthStatus `json:"components"`
}

// Health runs a fixed set of probes and folds them into one report.
type Health struct {
	probes []HealthProbe
}

// NewHealth creates an aggregator over the given probes.
func NewHealth(probes ...HealthProbe) *Health {
	return &Health{probes: probes}
}

// Check runs every probe. A critical dependency that is down makes the
// service unhealthy; anything else down or disabled degrades it.
func (h *Health) Check(ctx context.Context) Report {
	report := Report{Status: Healthy, Components: make([]HealthStatus, 0, len(h.probes))}

	for _, probe := range h.probes {
		status := probe.Run(ctx)
		report.Components = append(report.Components, status)

		switch {
		case status.Status == StatusDown && status.Critical:
			report.Status = Unhealthy
		case status.Status != StatusUp && report.Status != Unhealthy:
			report.Status = Degraded
		}
	}

	return report
}
