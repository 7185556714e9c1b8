package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tunnel-panel/internal/config"
	"tunnel-panel/internal/cores"
	"tunnel-panel/internal/logger"
	"tunnel-panel/internal/models"
	"tunnel-panel/internal/store"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

var (
	ErrNotFound         = store.ErrNotFound
	ErrRevisionConflict = store.ErrRevisionConflict
	ErrInvalidRequest   = errors.New("invalid request")
	ErrPortConflict     = errors.New("port conflict")
	ErrNodeInUse        = errors.New("node is in use")
	ErrNotManaged       = errors.New("core is not managed by the panel")
)

func invalidRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Broadcaster receives tunnel and node events
type Broadcaster interface {
	Broadcast(evt models.Event)
}

/**
 * TunnelManager keeps stored tunnels and running units in line
 * @property {*store.Store} store - Tunnel and node records
 * @property {*cores.Registry} registry - Per-core normalization and rendering
 * @property {Runtime} runtime - Launches the rendered configs
 * @property {Broadcaster} events - Optional websocket hub
 * @property {sync.Mutex} mutex - Serializes port checks with the writes they guard
 */
type TunnelManager struct {
	store    *store.Store
	registry *cores.Registry
	runtime  Runtime
	events   Broadcaster
	mutex    sync.Mutex
}

/**
 * Create the tunnel manager
 * @param {*store.Store} st - Opened store
 * @param {*cores.Registry} registry - Core drivers
 * @param {Broadcaster} events - Event sink, may be nil
 * @returns {*TunnelManager} Manager backed by a ProcessRuntime
 * @example
 * tm := services.NewTunnelManager(st, cores.DefaultRegistry(), hub)
 * tm.Reconcile(ctx)
 */
func NewTunnelManager(st *store.Store, registry *cores.Registry, events Broadcaster) *TunnelManager {
	tm := &TunnelManager{
		store:    st,
		registry: registry,
		events:   events,
	}
	tm.runtime = NewProcessRuntime(func() config.SupervisorConfig { return config.App().Supervisor }, tm.onUnitChanged)
	return tm
}

// WithRuntime replaces the process runtime
func (tm *TunnelManager) WithRuntime(rt Runtime) *TunnelManager {
	tm.runtime = rt
	return tm
}

func (tm *TunnelManager) broadcast(evt models.Event) {
	if tm.events != nil {
		tm.events.Broadcast(evt)
	}
}

func (tm *TunnelManager) refreshGauge(ctx context.Context) {
	tunnels, err := tm.store.ListTunnels(ctx)
	if err != nil {
		logger.Warnf("Refresh tunnel gauge: %v", err)
		return
	}
	updateTunnelGauge(tunnels)
}

func (tm *TunnelManager) List(ctx context.Context) ([]models.Tunnel, error) {
	return tm.store.ListTunnels(ctx)
}

func (tm *TunnelManager) Get(ctx context.Context, id string) (*models.Tunnel, error) {
	return tm.store.GetTunnel(ctx, id)
}

/**
 * Reject a tunnel whose port claims overlap another tunnel
 * @param {*models.Tunnel} t - Normalized tunnel, its own record is skipped
 * @returns {error} ErrPortConflict naming the tunnel holding the port
 */
func (tm *TunnelManager) checkPorts(ctx context.Context, t *models.Tunnel) error {
	claims := tm.registry.Ports(t)
	if len(claims) == 0 {
		return nil
	}
	wanted := make(map[cores.PortClaim]bool, len(claims))
	for _, c := range claims {
		wanted[c] = true
	}
	others, err := tm.store.ListTunnels(ctx)
	if err != nil {
		return err
	}
	for i := range others {
		other := &others[i]
		if other.ID == t.ID {
			continue
		}
		for _, c := range tm.registry.Ports(other) {
			if wanted[c] {
				return fmt.Errorf("%w: %s is already used by tunnel %q", ErrPortConflict, c, other.Name)
			}
		}
	}
	return nil
}

func (tm *TunnelManager) checkNode(ctx context.Context, t *models.Tunnel) error {
	if t.Core != models.CoreRathole {
		return nil
	}
	if t.NodeID == nil || *t.NodeID == "" {
		return fmt.Errorf("%w: rathole tunnels need a node_id", cores.ErrInvalidSpec)
	}
	if _, err := tm.store.GetNode(ctx, *t.NodeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalidRequest("node %s does not exist", *t.NodeID)
		}
		return err
	}
	return nil
}

/**
 * Create a tunnel and launch it
 * @param {models.CreateTunnelRequest} req - Body of POST /api/tunnels
 * @returns {*models.Tunnel} Stored tunnel with the status reached after launching
 * @description
 * - Managed cores are normalized and checked for port conflicts
 * - Extension cores are stored as sent with status unmanaged
 * - Launch failures are reported through status/error_message, not as an error
 */
func (tm *TunnelManager) Create(ctx context.Context, req models.CreateTunnelRequest) (*models.Tunnel, error) {
	name := strings.TrimSpace(req.Name)
	core := strings.TrimSpace(req.Core)
	if name == "" {
		return nil, invalidRequest("name is required")
	}
	if core == "" {
		return nil, invalidRequest("core is required")
	}
	t := &models.Tunnel{
		ID:     uuid.NewString(),
		Name:   name,
		Core:   core,
		Type:   strings.TrimSpace(req.Type),
		NodeID: req.NodeID,
		Spec:   datatypes.JSONMap(req.Spec),
		Status: models.StatusPending,
	}
	managed := tm.registry.Managed(core)
	if managed {
		if core != models.CoreRathole {
			t.NodeID = nil
		}
		if err := tm.checkNode(ctx, t); err != nil {
			return nil, err
		}
		if err := tm.registry.Normalize(t, config.App()); err != nil {
			return nil, err
		}
	} else {
		if t.Spec == nil {
			t.Spec = datatypes.JSONMap{}
		}
		t.Status = models.StatusUnmanaged
	}

	tm.mutex.Lock()
	if err := tm.checkPorts(ctx, t); err != nil {
		tm.mutex.Unlock()
		return nil, err
	}
	if err := tm.store.CreateTunnel(ctx, t); err != nil {
		tm.mutex.Unlock()
		return nil, err
	}
	tm.mutex.Unlock()
	logger.Infof("Tunnel '%s' created", t.Title())

	if managed {
		tm.apply(ctx, t)
	} else {
		tm.broadcast(models.Event{Type: models.EventTunnelStatus, TunnelID: t.ID, Payload: t})
		tm.refreshGauge(ctx)
	}
	return t, nil
}

/**
 * Update name and spec of a tunnel
 * @param {string} id - Tunnel id
 * @param {models.UpdateTunnelRequest} req - Body of PUT /api/tunnels/:id
 * @returns {*models.Tunnel} Tunnel with the new revision
 * @description
 * - core, type and node_id never change here
 * - A revision in the body must match the stored one
 * - Spec is replaced, then normalized again so derived fields follow the edit
 * - Tunnels stopped by the user stay stopped, others are applied again
 */
func (tm *TunnelManager) Update(ctx context.Context, id string, req models.UpdateTunnelRequest) (*models.Tunnel, error) {
	tm.mutex.Lock()
	t, err := tm.store.GetTunnel(ctx, id)
	if err != nil {
		tm.mutex.Unlock()
		return nil, err
	}
	if req.Revision != nil && *req.Revision != t.Revision {
		tm.mutex.Unlock()
		return nil, fmt.Errorf("%w: tunnel is at revision %d, the edit was based on %d",
			ErrRevisionConflict, t.Revision, *req.Revision)
	}
	expected := t.Revision

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			tm.mutex.Unlock()
			return nil, invalidRequest("name must not be empty")
		}
		t.Name = name
	}
	if req.Spec != nil {
		t.Spec = datatypes.JSONMap(req.Spec)
	}
	managed := tm.registry.Managed(t.Core)
	if err := tm.registry.Normalize(t, config.App()); err != nil {
		tm.mutex.Unlock()
		return nil, err
	}
	if err := tm.checkPorts(ctx, t); err != nil {
		tm.mutex.Unlock()
		return nil, err
	}
	t.Revision = expected + 1
	if err := tm.store.UpdateTunnel(ctx, t, expected); err != nil {
		tm.mutex.Unlock()
		return nil, err
	}
	tm.mutex.Unlock()
	logger.Infof("Tunnel '%s' updated to revision %d", t.Title(), t.Revision)

	if managed && t.Status != models.StatusStopped {
		tm.apply(ctx, t)
	} else {
		tm.broadcast(models.Event{Type: models.EventTunnelStatus, TunnelID: t.ID, Payload: t})
	}
	return t, nil
}

// Delete stops the unit, then removes the record
func (tm *TunnelManager) Delete(ctx context.Context, id string) error {
	t, err := tm.store.GetTunnel(ctx, id)
	if err != nil {
		return err
	}
	if err := tm.runtime.Stop(id); err != nil {
		logger.Warnf("Tunnel '%s': stop before delete: %v", t.Title(), err)
	}
	if err := tm.store.DeleteTunnel(ctx, id); err != nil {
		return err
	}
	logger.Infof("Tunnel '%s' deleted", t.Title())
	tm.broadcast(models.Event{Type: models.EventTunnelDeleted, TunnelID: id})
	tm.refreshGauge(ctx)
	return nil
}

func (tm *TunnelManager) getManaged(ctx context.Context, id string) (*models.Tunnel, error) {
	t, err := tm.store.GetTunnel(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tm.registry.Managed(t.Core) {
		return nil, fmt.Errorf("%w: %s", ErrNotManaged, t.Core)
	}
	return t, nil
}

func (tm *TunnelManager) Start(ctx context.Context, id string) (*models.Tunnel, error) {
	t, err := tm.getManaged(ctx, id)
	if err != nil {
		return nil, err
	}
	tm.apply(ctx, t)
	return t, nil
}

// Stop brings the tunnel down; Reconcile leaves it alone until started again
func (tm *TunnelManager) Stop(ctx context.Context, id string) (*models.Tunnel, error) {
	t, err := tm.getManaged(ctx, id)
	if err != nil {
		return nil, err
	}
	// 先写状态，监控回调看到stopped就不会覆盖
	if err := tm.setStatus(ctx, t, models.StatusStopped, ""); err != nil {
		return nil, err
	}
	if err := tm.runtime.Stop(id); err != nil {
		tm.setStatus(ctx, t, models.StatusError, fmt.Sprintf("failed to stop %s: %v", t.Core, err))
	}
	return t, nil
}

func (tm *TunnelManager) Restart(ctx context.Context, id string) (*models.Tunnel, error) {
	t, err := tm.getManaged(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := tm.runtime.Stop(id); err != nil {
		logger.Warnf("Tunnel '%s': stop before restart: %v", t.Title(), err)
	}
	tm.apply(ctx, t)
	return t, nil
}

// RenderConfig returns the native config file of a tunnel
func (tm *TunnelManager) RenderConfig(ctx context.Context, id string) ([]byte, error) {
	t, err := tm.getManaged(ctx, id)
	if err != nil {
		return nil, err
	}
	return tm.registry.Render(t, config.App())
}

/**
 * Render the client config of one WireGuard peer
 * @param {string} id - Tunnel id
 * @param {int} index - Zero based peer index
 * @returns {[]byte} wg-quick config for the peer device
 */
func (tm *TunnelManager) RenderPeer(ctx context.Context, id string, index int) ([]byte, error) {
	t, err := tm.store.GetTunnel(ctx, id)
	if err != nil {
		return nil, err
	}
	d, ok := tm.registry.Get(t.Core)
	wg, isWG := d.(*cores.WireGuard)
	if !ok || !isWG {
		return nil, invalidRequest("tunnel %s is not a wireguard tunnel", t.Name)
	}
	if peers := cores.WireGuardPeers(t); index < 0 || index >= len(peers) {
		return nil, fmt.Errorf("%w: peer %d (tunnel has %d peers)", ErrNotFound, index, len(peers))
	}
	return wg.RenderPeer(t, index, config.App())
}

func (tm *TunnelManager) setStatus(ctx context.Context, t *models.Tunnel, status models.RunStatus, msg string) error {
	t.Status = status
	t.ErrorMessage = models.StringPtr(msg)
	if err := tm.store.SetTunnelStatus(ctx, t.ID, status, t.ErrorMessage); err != nil {
		logger.Errorf("Tunnel '%s': save status %s: %v", t.Title(), status, err)
		return err
	}
	tm.broadcast(models.Event{
		Type:     models.EventTunnelStatus,
		TunnelID: t.ID,
		Payload:  map[string]interface{}{"status": status, "error_message": t.ErrorMessage},
	})
	tm.refreshGauge(ctx)
	return nil
}

/**
 * Render and launch a tunnel, recording the outcome on the record
 * @param {*models.Tunnel} t - Stored managed tunnel, updated in place
 */
func (tm *TunnelManager) apply(ctx context.Context, t *models.Tunnel) {
	// 请求结束不应打断一次性命令或启动观察
	ctx = context.WithoutCancel(ctx)
	plan, err := tm.registry.Plan(t, config.App())
	if err != nil {
		logger.Errorf("Tunnel '%s': %v", t.Title(), err)
		tm.setStatus(ctx, t, models.StatusError, fmt.Sprintf("%s config error: %v", t.Core, err))
		return
	}
	if err := tm.runtime.Start(ctx, plan); err != nil {
		logger.Errorf("Tunnel '%s': %v", t.Title(), err)
		tm.setStatus(ctx, t, models.StatusError, fmt.Sprintf("%s server failed to start: %v", t.Core, err))
		return
	}
	tm.setStatus(ctx, t, models.StatusRunning, "")
}

// onUnitChanged 运行时回调：进程退出/自动重启后同步记录状态
func (tm *TunnelManager) onUnitChanged(id string, st UnitState) {
	ctx := context.Background()
	t, err := tm.store.GetTunnel(ctx, id)
	if err != nil {
		return
	}
	if t.Status == models.StatusStopped {
		return
	}
	switch st.Status {
	case models.StatusRunning:
		if st.RestartCount > 0 {
			recordRestart(t.Core)
		}
		tm.setStatus(ctx, t, models.StatusRunning, "")
	case models.StatusExited, models.StatusError:
		tm.setStatus(ctx, t, st.Status, st.Error)
	}
}

/**
 * Bring running units in line with stored tunnels
 * @description
 * - Applies every managed tunnel not stopped by the user whose unit is not alive
 * - Stops units whose record no longer exists
 * - Runs at startup and on every monitor tick, which retries failed launches
 */
func (tm *TunnelManager) Reconcile(ctx context.Context) error {
	tunnels, err := tm.store.ListTunnels(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(tunnels))
	for i := range tunnels {
		t := &tunnels[i]
		known[t.ID] = true
		if !tm.registry.Managed(t.Core) {
			if t.Status != models.StatusUnmanaged {
				tm.setStatus(ctx, t, models.StatusUnmanaged, "")
			}
			continue
		}
		if t.Status == models.StatusStopped {
			continue
		}
		if st, ok := tm.runtime.State(t.ID); ok {
			if st.Status == models.StatusRunning || st.Status == models.StatusExited {
				continue
			}
		}
		logger.Infof("Reconcile: applying tunnel '%s' (status %s)", t.Title(), t.Status)
		tm.apply(ctx, t)
	}
	for _, id := range tm.runtime.Active() {
		if !known[id] {
			logger.Infof("Reconcile: stopping orphan unit %s", id)
			if err := tm.runtime.Stop(id); err != nil {
				logger.Warnf("Stop orphan unit %s: %v", id, err)
			}
		}
	}
	updateTunnelGauge(tunnels)
	return nil
}

// Stats 健康检查用的隧道统计
func (tm *TunnelManager) Stats(ctx context.Context) (total, active, failed int) {
	tunnels, err := tm.store.ListTunnels(ctx)
	if err != nil {
		return 0, 0, 0
	}
	for _, t := range tunnels {
		switch t.Status {
		case models.StatusRunning:
			active++
		case models.StatusError:
			failed++
		}
	}
	return len(tunnels), active, failed
}

// Shutdown brings every unit down without touching stored statuses
func (tm *TunnelManager) Shutdown() {
	tm.runtime.StopAll()
}
