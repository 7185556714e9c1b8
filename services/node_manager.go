package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tunnel-panel/internal/config"
	"tunnel-panel/internal/cores"
	"tunnel-panel/internal/logger"
	"tunnel-panel/internal/models"
	"tunnel-panel/internal/store"
)

var ErrDuplicate = store.ErrDuplicate

// RatholeClientConfig is the client side of one rathole tunnel
type RatholeClientConfig struct {
	TunnelID string `json:"tunnel_id"`
	Name     string `json:"name"`
	Config   string `json:"config"`
}

type ratholeClientRenderer interface {
	RenderClient(t *models.Tunnel) ([]byte, error)
}

type NodeManager struct {
	store    *store.Store
	registry *cores.Registry
	events   Broadcaster
}

func NewNodeManager(st *store.Store, registry *cores.Registry, events Broadcaster) *NodeManager {
	return &NodeManager{store: st, registry: registry, events: events}
}

// withStatus 根据最后心跳时间计算在线状态
func withStatus(n *models.Node, now time.Time) {
	timeout := config.App().Panel.NodeTimeout
	if n.LastSeen != nil && now.Sub(*n.LastSeen) <= timeout {
		n.Status = models.NodeOnline
	} else {
		n.Status = models.NodeOffline
	}
}

func (nm *NodeManager) List(ctx context.Context) ([]models.Node, error) {
	nodes, err := nm.store.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for i := range nodes {
		withStatus(&nodes[i], now)
	}
	return nodes, nil
}

func (nm *NodeManager) Get(ctx context.Context, id string) (*models.Node, error) {
	n, err := nm.store.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	withStatus(n, time.Now())
	return n, nil
}

func (nm *NodeManager) Create(ctx context.Context, req models.CreateNodeRequest) (*models.Node, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalidRequest("name is required")
	}
	n := &models.Node{Name: name, Address: strings.TrimSpace(req.Address)}
	if err := nm.store.CreateNode(ctx, n); err != nil {
		return nil, err
	}
	withStatus(n, time.Now())
	logger.Infof("Node '%s' (%s) created", n.Name, n.ID)
	return n, nil
}

/**
 * Delete a node
 * @param {string} id - Node id
 * @returns {error} ErrNodeInUse while rathole tunnels still reference it
 */
func (nm *NodeManager) Delete(ctx context.Context, id string) error {
	if _, err := nm.store.GetNode(ctx, id); err != nil {
		return err
	}
	tunnels, err := nm.store.ListTunnelsByNode(ctx, id, "")
	if err != nil {
		return err
	}
	if len(tunnels) > 0 {
		names := make([]string, 0, len(tunnels))
		for _, t := range tunnels {
			names = append(names, t.Name)
		}
		return fmt.Errorf("%w: referenced by %s", ErrNodeInUse, strings.Join(names, ", "))
	}
	if err := nm.store.DeleteNode(ctx, id); err != nil {
		return err
	}
	logger.Infof("Node %s deleted", id)
	return nil
}

// Heartbeat marks the node as seen now and reports it online
func (nm *NodeManager) Heartbeat(ctx context.Context, id string) (*models.Node, error) {
	n, err := nm.store.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	withStatus(n, time.Now())
	wasOnline := n.Status == models.NodeOnline

	now := time.Now()
	if err := nm.store.TouchNode(ctx, id, now); err != nil {
		return nil, err
	}
	n.LastSeen = &now
	n.UpdatedAt = now
	n.Status = models.NodeOnline
	if !wasOnline && nm.events != nil {
		nm.events.Broadcast(models.Event{Type: models.EventNodeStatus, Payload: n})
	}
	return n, nil
}

/**
 * Render the rathole client configs a node has to run
 * @param {string} id - Node id
 * @returns {[]RatholeClientConfig} One config per rathole tunnel bound to the node
 * @description
 * - Every tunnel has its own rathole server, so configs are not merged
 */
func (nm *NodeManager) RatholeConfigs(ctx context.Context, id string) ([]RatholeClientConfig, error) {
	if _, err := nm.store.GetNode(ctx, id); err != nil {
		return nil, err
	}
	tunnels, err := nm.store.ListTunnelsByNode(ctx, id, models.CoreRathole)
	if err != nil {
		return nil, err
	}
	d, ok := nm.registry.Get(models.CoreRathole)
	renderer, isClient := d.(ratholeClientRenderer)
	if !ok || !isClient {
		return nil, fmt.Errorf("%w: %s", ErrNotManaged, models.CoreRathole)
	}
	configs := make([]RatholeClientConfig, 0, len(tunnels))
	for i := range tunnels {
		t := &tunnels[i]
		data, err := renderer.RenderClient(t)
		if err != nil {
			return nil, fmt.Errorf("render client config of %s: %w", t.Name, err)
		}
		configs = append(configs, RatholeClientConfig{TunnelID: t.ID, Name: t.Name, Config: string(data)})
	}
	return configs, nil
}

// OnlineCount 健康检查用
func (nm *NodeManager) OnlineCount(ctx context.Context) int {
	nodes, err := nm.List(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warnf("Count online nodes: %v", err)
		}
		return 0
	}
	online := 0
	for _, n := range nodes {
		if n.Status == models.NodeOnline {
			online++
		}
	}
	return online
}
