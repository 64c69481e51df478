package scaler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vepflow/vepflow/core"
)

// fakeHub serves a Selenium-style /status payload that tests mutate.
type fakeHub struct {
	mu       sync.Mutex
	nodes    int
	sessions int
	perNode  int
	down     int
	server   *httptest.Server
}

func newFakeHub(t *testing.T, nodes, sessions, perNode int) *fakeHub {
	t.Helper()
	h := &fakeHub{nodes: nodes, sessions: sessions, perNode: perNode}
	h.server = httptest.NewServer(http.HandlerFunc(h.status))
	t.Cleanup(h.server.Close)
	return h
}

func (h *fakeHub) setNodes(n int) {
	h.mu.Lock()
	h.nodes = n
	h.mu.Unlock()
}

func (h *fakeHub) status(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	type slot struct {
		Session interface{} `json:"session"`
	}
	type node struct {
		Availability string `json:"availability"`
		Slots        []slot `json:"slots"`
	}

	remaining := h.sessions
	var nodes []node
	for i := 0; i < h.nodes; i++ {
		slots := make([]slot, h.perNode)
		for j := range slots {
			if remaining > 0 {
				slots[j].Session = map[string]interface{}{"sessionId": "s"}
				remaining--
			}
		}
		nodes = append(nodes, node{Availability: "UP", Slots: slots})
	}
	for i := 0; i < h.down; i++ {
		nodes = append(nodes, node{Availability: "DOWN", Slots: make([]slot, h.perNode)})
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"value": map[string]interface{}{"ready": true, "nodes": nodes},
	})
}

type fakeControl struct {
	mu      sync.Mutex
	calls   []int
	onScale func(nodes int)
}

func (c *fakeControl) ScaleTo(ctx context.Context, nodes int) error {
	c.mu.Lock()
	c.calls = append(c.calls, nodes)
	c.mu.Unlock()
	if c.onScale != nil {
		c.onScale(nodes)
	}
	return nil
}

func (c *fakeControl) scaleCalls() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.calls...)
}

type capacityGauge struct {
	mu       sync.Mutex
	nodes    int
	sessions int
}

func (g *capacityGauge) SetGridCapacity(nodes, sessions int) {
	g.mu.Lock()
	g.nodes, g.sessions = nodes, sessions
	g.mu.Unlock()
}

func testConfig(hubURL string) core.ScalerConfig {
	return core.ScalerConfig{
		Enabled:         true,
		MinNodes:        1,
		MaxNodes:        3,
		SessionsPerNode: 2,
		HubURL:          hubURL,
	}
}

func TestStatusCountsNodesAndSessions(t *testing.T) {
	hub := newFakeHub(t, 2, 3, 2)
	hub.down = 1
	gauge := &capacityGauge{}
	s := New(testConfig(hub.server.URL), &fakeControl{}, gauge, nil)

	status, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, 2, status.Nodes, "DOWN nodes do not count")
	assert.Equal(t, 3, status.ActiveSessions)
	assert.Equal(t, 4, status.TotalSlots)
	assert.Equal(t, 2, gauge.nodes)
	assert.Equal(t, 3, gauge.sessions)
}

func TestStatusHubUnavailable(t *testing.T) {
	s := New(testConfig("http://127.0.0.1:1"), &fakeControl{}, nil, nil)
	_, err := s.Status(context.Background())
	assert.ErrorIs(t, err, core.ErrGridUnavailable)
}

func TestEnsureCapacityScalesUp(t *testing.T) {
	hub := newFakeHub(t, 1, 2, 2)
	control := &fakeControl{onScale: hub.setNodes}
	s := New(testConfig(hub.server.URL), control, nil, nil)

	require.NoError(t, s.EnsureCapacity(context.Background(), 2))
	assert.Equal(t, []int{2}, control.scaleCalls(), "2 active + 2 pending at 2 per node needs 2 nodes")
}

func TestEnsureCapacityCappedAtMaxNodes(t *testing.T) {
	hub := newFakeHub(t, 1, 0, 2)
	control := &fakeControl{onScale: hub.setNodes}
	s := New(testConfig(hub.server.URL), control, nil, nil)

	require.NoError(t, s.EnsureCapacity(context.Background(), 10))
	assert.Equal(t, []int{3}, control.scaleCalls())
}

func TestEnsureCapacityNoOpWhenEnoughNodes(t *testing.T) {
	hub := newFakeHub(t, 2, 0, 2)
	control := &fakeControl{}
	s := New(testConfig(hub.server.URL), control, nil, nil)

	require.NoError(t, s.EnsureCapacity(context.Background(), 1))
	assert.Empty(t, control.scaleCalls())
}

func TestEnsureCapacityDisabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false
	control := &fakeControl{}
	s := New(cfg, control, nil, nil)

	require.NoError(t, s.EnsureCapacity(context.Background(), 5), "disabled scaler never probes the hub")
	assert.Empty(t, control.scaleCalls())
}

func TestScaleDownRemovesOneNode(t *testing.T) {
	hub := newFakeHub(t, 3, 0, 2)
	control := &fakeControl{onScale: hub.setNodes}
	s := New(testConfig(hub.server.URL), control, nil, nil)

	require.NoError(t, s.ScaleDown(context.Background()))
	assert.Equal(t, []int{2}, control.scaleCalls())

	require.NoError(t, s.ScaleDown(context.Background()))
	assert.Equal(t, []int{2, 1}, control.scaleCalls())

	require.NoError(t, s.ScaleDown(context.Background()))
	assert.Equal(t, []int{2, 1}, control.scaleCalls(), "grid never shrinks below min_nodes")
}

func TestScaleDownResetsIdleWindow(t *testing.T) {
	hub := newFakeHub(t, 3, 0, 2)
	control := &fakeControl{onScale: hub.setNodes}
	s := New(testConfig(hub.server.URL), control, nil, nil)

	before := s.idleSince()
	require.NoError(t, s.ScaleDown(context.Background()))
	assert.False(t, s.idleSince().Before(before), "a scale-down starts a fresh idle window")
}

func TestMonitorScalesDownIdleGridOneNodePerWindow(t *testing.T) {
	hub := newFakeHub(t, 3, 0, 2)
	control := &fakeControl{onScale: hub.setNodes}
	cfg := testConfig(hub.server.URL)
	cfg.IdleTimeoutSeconds = 0
	s := New(cfg, control, nil, nil)

	m := NewMonitor(s, cfg, nil)
	m.check(context.Background(), 0)
	assert.Equal(t, []int{2}, control.scaleCalls())

	m.check(context.Background(), 0)
	assert.Equal(t, []int{2, 1}, control.scaleCalls())
}

func TestMonitorLeavesActiveGridAlone(t *testing.T) {
	hub := newFakeHub(t, 3, 1, 2)
	control := &fakeControl{}
	cfg := testConfig(hub.server.URL)
	s := New(cfg, control, nil, nil)

	m := NewMonitor(s, cfg, nil)
	m.check(context.Background(), 0)

	assert.Empty(t, control.scaleCalls(), "active sessions reset the idle window")
}

func TestMonitorRespectsMinNodes(t *testing.T) {
	hub := newFakeHub(t, 1, 0, 2)
	control := &fakeControl{}
	cfg := testConfig(hub.server.URL)
	s := New(cfg, control, nil, nil)

	m := NewMonitor(s, cfg, nil)
	m.check(context.Background(), 0)

	assert.Empty(t, control.scaleCalls())
}
