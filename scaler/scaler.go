// Package scaler sizes the browser grid to the workload: it scales
// nodes up ahead of a batch of runs and back down after a configurable
// idle window.
package scaler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/vepflow/vepflow/core"
)

// ControlPlane applies a desired node count to the grid deployment.
type ControlPlane interface {
	ScaleTo(ctx context.Context, nodes int) error
}

// ComposeControlPlane scales the grid's node service with docker
// compose. It is the default control plane for single-host deployments.
type ComposeControlPlane struct {
	ProjectDir string
	Service    string
	Logger     core.Logger
}

func (c *ComposeControlPlane) ScaleTo(ctx context.Context, nodes int) error {
	service := c.Service
	if service == "" {
		service = "chrome"
	}
	cmd := exec.CommandContext(ctx, "docker", "compose", "up", "-d", "--no-recreate",
		"--scale", fmt.Sprintf("%s=%d", service, nodes))
	cmd.Dir = c.ProjectDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("scaling %s to %d nodes: %w: %s", service, nodes, err, out)
	}
	if c.Logger != nil {
		c.Logger.Info("grid scaled", map[string]interface{}{
			"service": service,
			"nodes":   nodes,
		})
	}
	return nil
}

// GridStatus is the observed occupancy of the grid hub.
type GridStatus struct {
	Ready          bool
	Nodes          int
	ActiveSessions int
	TotalSlots     int
}

// CapacityMetrics receives grid occupancy observations.
type CapacityMetrics interface {
	SetGridCapacity(nodes, sessions int)
}

// Scaler drives the control plane from hub occupancy and demand.
type Scaler struct {
	cfg     core.ScalerConfig
	control ControlPlane
	client  *http.Client
	logger  core.Logger
	metrics CapacityMetrics

	mu           sync.Mutex
	lastActivity time.Time
}

// New creates a scaler. A nil control plane falls back to docker
// compose in the configured project directory.
func New(cfg core.ScalerConfig, control ControlPlane, metrics CapacityMetrics, logger core.Logger) *Scaler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if control == nil {
		control = &ComposeControlPlane{ProjectDir: cfg.ProjectDir, Logger: logger}
	}
	return &Scaler{
		cfg:          cfg,
		control:      control,
		client:       &http.Client{Timeout: 5 * time.Second},
		logger:       logger,
		metrics:      metrics,
		lastActivity: time.Now(),
	}
}

// hubStatus mirrors the subset of the grid hub's /status payload the
// scaler reads.
type hubStatus struct {
	Value struct {
		Ready bool `json:"ready"`
		Nodes []struct {
			Availability string `json:"availability"`
			Slots        []struct {
				Session json.RawMessage `json:"session"`
			} `json:"slots"`
		} `json:"nodes"`
	} `json:"value"`
}

// Status probes the hub. Nodes reported as DOWN do not count.
func (s *Scaler) Status(ctx context.Context) (GridStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.HubURL+"/status", nil)
	if err != nil {
		return GridStatus{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return GridStatus{}, fmt.Errorf("probing grid hub: %w: %v", core.ErrGridUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return GridStatus{}, fmt.Errorf("grid hub returned %d: %w", resp.StatusCode, core.ErrGridUnavailable)
	}

	var payload hubStatus
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return GridStatus{}, fmt.Errorf("decoding grid status: %w", err)
	}

	status := GridStatus{Ready: payload.Value.Ready}
	for _, node := range payload.Value.Nodes {
		if node.Availability == "DOWN" {
			continue
		}
		status.Nodes++
		status.TotalSlots += len(node.Slots)
		for _, slot := range node.Slots {
			if len(slot.Session) > 0 && string(slot.Session) != "null" {
				status.ActiveSessions++
			}
		}
	}
	if s.metrics != nil {
		s.metrics.SetGridCapacity(status.Nodes, status.ActiveSessions)
	}
	return status, nil
}

// EnsureCapacity scales the grid to host the requested number of
// additional sessions and waits for the nodes to register. Disabled
// scalers are a no-op.
func (s *Scaler) EnsureCapacity(ctx context.Context, pendingSessions int) error {
	s.NoteActivity()
	if !s.cfg.Enabled || pendingSessions <= 0 {
		return nil
	}

	status, err := s.Status(ctx)
	if err != nil {
		return err
	}

	perNode := s.cfg.SessionsPerNode
	if perNode <= 0 {
		perNode = 1
	}
	demand := status.ActiveSessions + pendingSessions
	desired := (demand + perNode - 1) / perNode
	if desired > s.cfg.MaxNodes {
		desired = s.cfg.MaxNodes
	}
	if desired <= status.Nodes {
		return nil
	}

	s.logger.InfoWithContext(ctx, "scaling grid up", map[string]interface{}{
		"current_nodes":    status.Nodes,
		"desired_nodes":    desired,
		"pending_sessions": pendingSessions,
	})
	if err := s.control.ScaleTo(ctx, desired); err != nil {
		return err
	}
	return s.waitForNodes(ctx, desired)
}

// ScaleDown removes one node, never going below the configured
// minimum. A successful step resets the idle window, so the grid
// shrinks one node per idle timeout rather than collapsing at once.
func (s *Scaler) ScaleDown(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	status, err := s.Status(ctx)
	if err != nil {
		return err
	}
	desired := status.Nodes - 1
	if desired < s.cfg.MinNodes {
		desired = s.cfg.MinNodes
	}
	if desired >= status.Nodes {
		return nil
	}
	s.logger.InfoWithContext(ctx, "scaling grid down", map[string]interface{}{
		"current_nodes": status.Nodes,
		"desired_nodes": desired,
		"min_nodes":     s.cfg.MinNodes,
	})
	if err := s.control.ScaleTo(ctx, desired); err != nil {
		return err
	}
	s.NoteActivity()
	return nil
}

// NoteActivity marks the grid as recently used, resetting the idle
// window.
func (s *Scaler) NoteActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Scaler) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// waitForNodes polls the hub until the desired node count registers or
// 30 seconds pass. Registration lag is tolerated: a timeout is logged,
// not returned, since sessions queue at the hub anyway.
func (s *Scaler) waitForNodes(ctx context.Context, want int) error {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		status, err := s.Status(ctx)
		if err == nil && status.Nodes >= want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	s.logger.Warn("grid nodes not all registered in time", map[string]interface{}{
		"wanted": strconv.Itoa(want),
	})
	return nil
}
