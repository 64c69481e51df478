package scaler

import (
	"context"
	"time"

	"github.com/vepflow/vepflow/core"
)

// Monitor periodically probes the grid and scales it down after it has
// been idle for the configured window.
type Monitor struct {
	scaler *Scaler
	cfg    core.ScalerConfig
	logger core.Logger
}

// NewMonitor creates an idle monitor over the given scaler.
func NewMonitor(scaler *Scaler, cfg core.ScalerConfig, logger core.Logger) *Monitor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Monitor{scaler: scaler, cfg: cfg, logger: logger}
}

// Run loops until the context is cancelled. One probe failure never
// stops the loop.
func (m *Monitor) Run(ctx context.Context) {
	interval := time.Duration(m.cfg.CheckIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	idleWindow := time.Duration(m.cfg.IdleTimeoutSeconds) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("grid idle monitor started", map[string]interface{}{
		"check_interval": interval.String(),
		"idle_timeout":   idleWindow.String(),
	})

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("grid idle monitor stopped", nil)
			return
		case <-ticker.C:
			m.check(ctx, idleWindow)
		}
	}
}

func (m *Monitor) check(ctx context.Context, idleWindow time.Duration) {
	status, err := m.scaler.Status(ctx)
	if err != nil {
		m.logger.Warn("grid probe failed", map[string]interface{}{"error": err})
		return
	}
	if status.ActiveSessions > 0 {
		m.scaler.NoteActivity()
		return
	}
	if status.Nodes <= m.cfg.MinNodes {
		return
	}
	if time.Since(m.scaler.idleSince()) < idleWindow {
		return
	}

	m.logger.Info("grid idle past timeout, scaling down", map[string]interface{}{
		"nodes":     status.Nodes,
		"min_nodes": m.cfg.MinNodes,
	})
	if err := m.scaler.ScaleDown(ctx); err != nil {
		m.logger.Error("grid scale down failed", map[string]interface{}{"error": err})
	}
}
