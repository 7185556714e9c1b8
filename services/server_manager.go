package services

import (
	"context"
	"time"

	"tunnel-panel/internal/config"
	"tunnel-panel/internal/env"
	"tunnel-panel/internal/logger"
	"tunnel-panel/internal/models"
)

type Server struct {
	tunnels   *TunnelManager
	nodes     *NodeManager
	startTime time.Time
}

/**
 * Create new server instance with all managers
 * @param {*TunnelManager} tunnels - Tunnel manager
 * @param {*NodeManager} nodes - Node manager
 * @returns {Server} Returns new server instance
 */
func NewServer(tunnels *TunnelManager, nodes *NodeManager) *Server {
	return &Server{
		tunnels:   tunnels,
		nodes:     nodes,
		startTime: time.Now(),
	}
}

func (s *Server) Tunnels() *TunnelManager {
	return s.tunnels
}

func (s *Server) Nodes() *NodeManager {
	return s.nodes
}

/**
 * Start monitoring tunnels
 * @param {context.Context} ctx - Monitoring stops when it is cancelled
 * @description
 * - Reconciles once immediately, then every supervisor.monitor_interval
 * - The interval is read again after each tick so a config reload takes effect
 * @example
 * go server.StartMonitoring(ctx)
 */
func (s *Server) StartMonitoring(ctx context.Context) {
	if err := s.tunnels.Reconcile(ctx); err != nil {
		logger.Errorf("Reconcile tunnels: %v", err)
	}
	for {
		interval := config.App().Supervisor.MonitorInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := s.tunnels.Reconcile(ctx); err != nil {
			logger.Errorf("Reconcile tunnels: %v", err)
		}
	}
}

// StopAll 关闭面板时停止所有隧道进程，记录中的状态保持不变，下次启动时恢复
func (s *Server) StopAll() {
	s.tunnels.Shutdown()
}

/**
* Get server health status
* @returns {models.HealthResponse} Version, uptime, request counters and tunnel counts
* @example
* health := server.GetHealthz(ctx)
* fmt.Printf("Server status: %s, Uptime: %s\n", health.Status, health.Uptime)
 */
func (s *Server) GetHealthz(ctx context.Context) models.HealthResponse {
	total, active, failed := s.tunnels.Stats(ctx)
	return models.HealthResponse{
		Version:   env.Version,
		StartTime: s.startTime.Format(time.RFC3339),
		Status:    "UP",
		Uptime:    time.Since(s.startTime).Truncate(time.Second).String(),
		Metrics: models.Metrics{
			TotalRequests: GetTotalRequestCount(),
			ErrorRequests: GetTotalErrorCount(),
			TotalTunnels:  total,
			ActiveTunnels: active,
			ErrorTunnels:  failed,
			OnlineNodes:   s.nodes.OnlineCount(ctx),
		},
	}
}
