package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"tunnel-panel/internal/config"
	"tunnel-panel/internal/cores"
	"tunnel-panel/internal/models"
	"tunnel-panel/internal/store"
)

// fakeRuntime records launches instead of spawning processes
type fakeRuntime struct {
	mu      sync.Mutex
	started map[string]*cores.LaunchPlan
	starts  int
	failFor map[string]error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{started: map[string]*cores.LaunchPlan{}, failFor: map[string]error{}}
}

func (f *fakeRuntime) Start(ctx context.Context, plan *cores.LaunchPlan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if err := f.failFor[plan.Core]; err != nil {
		delete(f.started, plan.TunnelID)
		return err
	}
	f.started[plan.TunnelID] = plan
	return nil
}

func (f *fakeRuntime) Stop(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.started, id)
	return nil
}

func (f *fakeRuntime) State(id string) (UnitState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.started[id]; ok {
		return UnitState{Status: models.StatusRunning}, true
	}
	return UnitState{}, false
}

func (f *fakeRuntime) Active() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.started))
	for id := range f.started {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeRuntime) StopAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = map[string]*cores.LaunchPlan{}
}

func (f *fakeRuntime) running(id string) bool {
	_, ok := f.State(id)
	return ok
}

type captureEvents struct {
	mu     sync.Mutex
	events []models.Event
}

func (c *captureEvents) Broadcast(evt models.Event) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
}

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Panel.PublicHost = "panel.example.com"
	cc := cfg.Cores[models.CoreHysteria2]
	cc.TLSCert = "/etc/ssl/panel.crt"
	cc.TLSKey = "/etc/ssl/panel.key"
	cfg.Cores[models.CoreHysteria2] = cc
	config.Set(cfg)
	return cfg
}

func newTestManagers(t *testing.T) (*TunnelManager, *NodeManager, *fakeRuntime, *captureEvents) {
	t.Helper()
	testConfig(t)
	st, err := store.Open(config.DatabaseConfig{Type: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	rt := newFakeRuntime()
	events := &captureEvents{}
	registry := cores.DefaultRegistry()
	tm := NewTunnelManager(st, registry, events).WithRuntime(rt)
	nm := NewNodeManager(st, registry, events)
	return tm, nm, rt, events
}

func TestCreateHysteria2WithFormDefaults(t *testing.T) {
	tm, _, rt, _ := newTestManagers(t)
	ctx := context.Background()

	tun, err := tm.Create(ctx, models.CreateTunnelRequest{
		Name: "hy",
		Core: models.CoreHysteria2,
		Type: "server",
		Spec: map[string]interface{}{"port": 8448, "password": "ChangeMe123", "up": "50 Mbps", "down": "200 Mbps"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if tun.Core != models.CoreHysteria2 || tun.Type != "server" {
		t.Errorf("core/type = %s/%s", tun.Core, tun.Type)
	}
	if tun.Status != models.StatusRunning || tun.ErrorMessage != nil {
		t.Errorf("status = %s, error = %v", tun.Status, tun.ErrorMessage)
	}
	if !rt.running(tun.ID) {
		t.Error("tunnel was not launched")
	}
	stored, err := tm.Get(ctx, tun.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p, _, _ := cores.Spec(stored.Spec).Int("port"); p != 8448 {
		t.Errorf("stored port = %v", stored.Spec["port"])
	}
}

func TestCreateHysteria2EmptySpecFillsDefaults(t *testing.T) {
	tm, _, _, _ := newTestManagers(t)
	tun, err := tm.Create(context.Background(), models.CreateTunnelRequest{Name: "hy", Core: models.CoreHysteria2})
	if err != nil {
		t.Fatal(err)
	}
	spec := cores.Spec(tun.Spec)
	if p, _, _ := spec.Int("port"); p != 8448 {
		t.Errorf("port = %v", tun.Spec["port"])
	}
	if spec.String("password") != "ChangeMe123" || spec.String("up") != "50 Mbps" || spec.String("down") != "200 Mbps" {
		t.Errorf("spec = %v", tun.Spec)
	}
}

func TestLaunchFailureIsRecorded(t *testing.T) {
	tm, _, rt, events := newTestManagers(t)
	rt.failFor[models.CoreXray] = errors.New("exited during startup, exited with error: exit status 23: bind: address already in use")

	tun, err := tm.Create(context.Background(), models.CreateTunnelRequest{
		Name: "web", Core: models.CoreXray, Type: "tcp", Spec: map[string]interface{}{"port": 9000},
	})
	if err != nil {
		t.Fatal(err)
	}
	if tun.Status != models.StatusError || tun.ErrorMessage == nil {
		t.Fatalf("status = %s", tun.Status)
	}
	if !strings.Contains(*tun.ErrorMessage, "address already in use") {
		t.Errorf("error_message = %q", *tun.ErrorMessage)
	}
	if len(events.events) == 0 {
		t.Error("no status event broadcast")
	}

	// 下一轮检测会重试
	delete(rt.failFor, models.CoreXray)
	if err := tm.Reconcile(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, _ := tm.Get(context.Background(), tun.ID)
	if got.Status != models.StatusRunning || got.ErrorMessage != nil {
		t.Errorf("after reconcile status = %s", got.Status)
	}
}

func TestUpdateRecomputesForwardTo(t *testing.T) {
	tm, _, rt, _ := newTestManagers(t)
	ctx := context.Background()
	tun, err := tm.Create(ctx, models.CreateTunnelRequest{
		Name: "web", Core: models.CoreXray, Type: "tcp",
		Spec: map[string]interface{}{"remote_ip": "10.0.0.5", "port": 8080},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := cores.Spec(tun.Spec).String("forward_to"); got != "10.0.0.5:8080" {
		t.Fatalf("forward_to = %q", got)
	}

	spec := map[string]interface{}{}
	for k, v := range tun.Spec {
		spec[k] = v
	}
	spec["remote_ip"] = "10.0.0.9"
	spec["remote_port"] = 9090
	rev := tun.Revision
	updated, err := tm.Update(ctx, tun.ID, models.UpdateTunnelRequest{Spec: spec, Revision: &rev})
	if err != nil {
		t.Fatal(err)
	}
	if got := cores.Spec(updated.Spec).String("forward_to"); got != "10.0.0.9:9090" {
		t.Errorf("forward_to = %q", got)
	}
	if updated.Revision != rev+1 {
		t.Errorf("revision = %d, want %d", updated.Revision, rev+1)
	}
	if rt.starts != 2 {
		t.Errorf("expected re-apply after update, starts = %d", rt.starts)
	}

	if _, err := tm.Update(ctx, tun.ID, models.UpdateTunnelRequest{Spec: spec, Revision: &rev}); !errors.Is(err, ErrRevisionConflict) {
		t.Errorf("stale revision: err = %v", err)
	}
}

func TestPortConflict(t *testing.T) {
	tm, _, _, _ := newTestManagers(t)
	ctx := context.Background()
	if _, err := tm.Create(ctx, models.CreateTunnelRequest{Name: "a", Core: models.CoreXray, Spec: map[string]interface{}{"port": 7000}}); err != nil {
		t.Fatal(err)
	}
	_, err := tm.Create(ctx, models.CreateTunnelRequest{Name: "b", Core: models.CoreXray, Spec: map[string]interface{}{"listen_port": 7000}})
	if !errors.Is(err, ErrPortConflict) {
		t.Fatalf("err = %v", err)
	}
	// 同端口不同协议不冲突
	if _, err := tm.Create(ctx, models.CreateTunnelRequest{Name: "c", Core: models.CoreXray, Type: "udp", Spec: map[string]interface{}{"port": 7000}}); err != nil {
		t.Errorf("udp on same port: %v", err)
	}
}

func TestRatholeNeedsExistingNode(t *testing.T) {
	tm, nm, _, _ := newTestManagers(t)
	ctx := context.Background()

	_, err := tm.Create(ctx, models.CreateTunnelRequest{Name: "r", Core: models.CoreRathole, Spec: map[string]interface{}{}})
	if !errors.Is(err, cores.ErrInvalidSpec) {
		t.Errorf("missing node_id: err = %v", err)
	}
	missing := "no-such-node"
	_, err = tm.Create(ctx, models.CreateTunnelRequest{Name: "r", Core: models.CoreRathole, NodeID: &missing})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("unknown node: err = %v", err)
	}

	node, err := nm.Create(ctx, models.CreateNodeRequest{Name: "edge-1", Address: "203.0.113.7"})
	if err != nil {
		t.Fatal(err)
	}
	tun, err := tm.Create(ctx, models.CreateTunnelRequest{
		Name: "r", Core: models.CoreRathole, NodeID: &node.ID,
		Spec: map[string]interface{}{"local_addr": "127.0.0.1:22"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if tun.Type != "rathole" {
		t.Errorf("type = %s", tun.Type)
	}

	if err := nm.Delete(ctx, node.ID); !errors.Is(err, ErrNodeInUse) {
		t.Errorf("delete node in use: err = %v", err)
	}

	configs, err := nm.RatholeConfigs(ctx, node.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(configs) != 1 || configs[0].TunnelID != tun.ID {
		t.Fatalf("configs = %+v", configs)
	}
	if !strings.Contains(configs[0].Config, `remote_addr = "panel.example.com:23333"`) ||
		!strings.Contains(configs[0].Config, `local_addr = "127.0.0.1:22"`) {
		t.Errorf("client config:\n%s", configs[0].Config)
	}

	if err := tm.Delete(ctx, tun.ID); err != nil {
		t.Fatal(err)
	}
	if err := nm.Delete(ctx, node.ID); err != nil {
		t.Errorf("delete unused node: %v", err)
	}
}

func TestExtensionCoreIsUnmanaged(t *testing.T) {
	tm, _, rt, _ := newTestManagers(t)
	ctx := context.Background()
	tun, err := tm.Create(ctx, models.CreateTunnelRequest{Name: "ext", Core: "tuic", Type: "server", Spec: map[string]interface{}{"port": 443}})
	if err != nil {
		t.Fatal(err)
	}
	if tun.Status != models.StatusUnmanaged {
		t.Errorf("status = %s", tun.Status)
	}
	if rt.starts != 0 {
		t.Error("extension cores must not be launched")
	}
	if _, err := tm.Start(ctx, tun.ID); !errors.Is(err, ErrNotManaged) {
		t.Errorf("start: err = %v", err)
	}
}

func TestStopIsHonouredByReconcile(t *testing.T) {
	tm, _, rt, _ := newTestManagers(t)
	ctx := context.Background()
	tun, err := tm.Create(ctx, models.CreateTunnelRequest{Name: "wg", Core: models.CoreWireGuard})
	if err != nil {
		t.Fatal(err)
	}
	stopped, err := tm.Stop(ctx, tun.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stopped.Status != models.StatusStopped || rt.running(tun.ID) {
		t.Fatalf("stop did not take effect: %s", stopped.Status)
	}
	if err := tm.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	if rt.running(tun.ID) {
		t.Error("reconcile restarted a tunnel stopped by the user")
	}

	// 更新不会启动已停止的隧道
	name := "wg-office"
	if _, err := tm.Update(ctx, tun.ID, models.UpdateTunnelRequest{Name: &name}); err != nil {
		t.Fatal(err)
	}
	if rt.running(tun.ID) {
		t.Error("update started a stopped tunnel")
	}

	if _, err := tm.Start(ctx, tun.ID); err != nil {
		t.Fatal(err)
	}
	if !rt.running(tun.ID) {
		t.Error("start did not launch the tunnel")
	}
}

func TestReconcileStopsOrphans(t *testing.T) {
	tm, _, rt, _ := newTestManagers(t)
	rt.started["gone"] = &cores.LaunchPlan{TunnelID: "gone"}
	if err := tm.Reconcile(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rt.running("gone") {
		t.Error("orphan unit still running")
	}
}

func TestWireGuardPeerConfig(t *testing.T) {
	tm, _, _, _ := newTestManagers(t)
	ctx := context.Background()
	tun, err := tm.Create(ctx, models.CreateTunnelRequest{Name: "wg", Core: models.CoreWireGuard, Spec: map[string]interface{}{"peers": 2}})
	if err != nil {
		t.Fatal(err)
	}
	data, err := tm.RenderPeer(ctx, tun.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Endpoint") || !strings.Contains(string(data), "panel.example.com:51820") {
		t.Errorf("peer config:\n%s", data)
	}
	if _, err := tm.RenderPeer(ctx, tun.ID, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("out of range peer: err = %v", err)
	}
}

func TestDeleteTunnel(t *testing.T) {
	tm, _, rt, events := newTestManagers(t)
	ctx := context.Background()
	tun, err := tm.Create(ctx, models.CreateTunnelRequest{Name: "hy", Core: models.CoreHysteria2})
	if err != nil {
		t.Fatal(err)
	}
	if err := tm.Delete(ctx, tun.ID); err != nil {
		t.Fatal(err)
	}
	if rt.running(tun.ID) {
		t.Error("unit not stopped")
	}
	if _, err := tm.Get(ctx, tun.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: %v", err)
	}
	last := events.events[len(events.events)-1]
	if last.Type != models.EventTunnelDeleted || last.TunnelID != tun.ID {
		t.Errorf("last event = %+v", last)
	}
	if err := tm.Delete(ctx, tun.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestUnitChangeUpdatesRecord(t *testing.T) {
	tm, _, _, _ := newTestManagers(t)
	ctx := context.Background()
	tun, err := tm.Create(ctx, models.CreateTunnelRequest{Name: "web", Core: models.CoreXray, Spec: map[string]interface{}{"port": 8081}})
	if err != nil {
		t.Fatal(err)
	}
	tm.onUnitChanged(tun.ID, UnitState{Status: models.StatusError, Error: "exited with error: exit status 1 (restart limit reached)"})
	got, _ := tm.Get(ctx, tun.ID)
	if got.Status != models.StatusError || got.ErrorMessage == nil {
		t.Fatalf("status = %s", got.Status)
	}
	tm.onUnitChanged(tun.ID, UnitState{Status: models.StatusRunning, RestartCount: 1})
	got, _ = tm.Get(ctx, tun.ID)
	if got.Status != models.StatusRunning || got.ErrorMessage != nil {
		t.Errorf("status = %s", got.Status)
	}
	total, active, failed := tm.Stats(ctx)
	if total != 1 || active != 1 || failed != 0 {
		t.Errorf("stats = %d/%d/%d", total, active, failed)
	}
}

func TestNodeHeartbeat(t *testing.T) {
	_, nm, _, _ := newTestManagers(t)
	ctx := context.Background()
	n, err := nm.Create(ctx, models.CreateNodeRequest{Name: "edge"})
	if err != nil {
		t.Fatal(err)
	}
	if n.Status != models.NodeOffline {
		t.Errorf("new node status = %s", n.Status)
	}
	if _, err := nm.Create(ctx, models.CreateNodeRequest{Name: "edge"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate name: %v", err)
	}
	if _, err := nm.Heartbeat(ctx, n.ID); err != nil {
		t.Fatal(err)
	}
	got, err := nm.Get(ctx, n.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.NodeOnline || got.LastSeen == nil {
		t.Errorf("after heartbeat: %+v", got)
	}
	if c := nm.OnlineCount(ctx); c != 1 {
		t.Errorf("online = %d", c)
	}
	if _, err := nm.Heartbeat(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("heartbeat unknown: %v", err)
	}
}
