package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tunnel-panel/cmd/root"
	"tunnel-panel/controllers"
	"tunnel-panel/internal/config"
	"tunnel-panel/internal/cores"
	"tunnel-panel/internal/env"
	"tunnel-panel/internal/hub"
	"tunnel-panel/internal/logger"
	"tunnel-panel/internal/middleware"
	"tunnel-panel/internal/store"
	"tunnel-panel/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var listenAddress string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动面板HTTP服务",
	Long:  `启动面板HTTP服务：提供/api接口和前端页面，并托管所有隧道进程`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return startServer(ctx)
	},
}

/**
 * Ensure a signing secret exists when auth is enabled
 * @param {*config.AppConfig} cfg - Active configuration, modified in place
 * @returns {error} Error when no random secret could be generated
 */
func ensureAuthSecret(cfg *config.AppConfig) error {
	if !cfg.Auth.Enabled || cfg.Auth.Secret != "" {
		return nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generate auth secret: %w", err)
	}
	cfg.Auth.Secret = hex.EncodeToString(buf)
	// 重新加载配置时沿用该密钥
	os.Setenv("TPANEL_AUTH_SECRET", cfg.Auth.Secret)
	logger.Warn("auth.secret is empty, using a random secret; tokens are invalidated on restart")
	if cfg.Auth.PasswordHash == "" {
		logger.Warn("auth.password_hash is empty, nobody can log in. Use 'tunnel-panel hash-password'")
	}
	return nil
}

/**
 * Build gin engine with all routes
 * @param {*services.Server} server - Managers
 * @param {*hub.Hub} h - Websocket hub
 * @param {*config.AppConfig} cfg - Active configuration
 * @returns {http.Handler} Router, wrapped by CORS when origins are configured
 */
func setupRouter(server *services.Server, h *hub.Hub, cfg *config.AppConfig) http.Handler {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.MetricsMiddleware())

	controllers.NewAPIController(server, h).RegisterRoutes(router)
	controllers.NewTunnelController(server.Tunnels()).RegisterRoutes(router)
	controllers.NewNodeController(server.Nodes()).RegisterRoutes(router)
	if controllers.RegisterFrontend(router, cfg.Server.WebDir) {
		logger.Infof("Serving admin UI from %s", cfg.Server.WebDir)
	}

	if len(cfg.Server.AllowedOrigins) > 0 {
		return middleware.CORS(cfg.Server.AllowedOrigins)(router)
	}
	return router
}

/**
 * Run panel server until ctx is cancelled
 * @param {context.Context} ctx - Cancelled by SIGINT/SIGTERM
 * @returns {error} Startup error
 * @description
 * - Opens the database and reconciles stored tunnels with running processes
 * - Listens on server.address and the unix socket used by the CLI
 * - On shutdown stops HTTP first, then every tunnel process
 */
func startServer(parent context.Context) error {
	ctx, cancelRun := context.WithCancel(parent)
	defer cancelRun()

	cfg := config.App()
	if listenAddress != "" {
		cfg.Server.Address = listenAddress
	}
	if err := ensureAuthSecret(cfg); err != nil {
		return err
	}
	logger.Infof("tunnel-panel %s starting, data dir %s", env.Version, cfg.DataDir)

	st, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	h := hub.New(cfg.Server.AllowedOrigins)
	go h.Run(ctx)

	registry := cores.DefaultRegistry()
	tunnels := services.NewTunnelManager(st, registry, h)
	nodes := services.NewNodeManager(st, registry, h)
	server := services.NewServer(tunnels, nodes)

	addrs := []ListenAddr{{Network: "tcp", Address: cfg.Server.Address}}
	if cfg.Server.Socket != "" {
		addrs = append(addrs, ListenAddr{Network: "unix", Address: cfg.Server.Socket})
	}
	listeners, err := CreateListeners(addrs)
	if len(listeners) == 0 {
		return fmt.Errorf("no listener available: %w", err)
	}

	httpServer := &http.Server{
		Handler:           setupRouter(server, h, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.StartMonitoring(ctx)
	}()
	go services.StartMetricsPush(ctx, cfg.Metrics.Pushgateway, cfg.Metrics.PushInterval)

	errCh := make(chan error, len(listeners))
	for _, ln := range listeners {
		go func(ln net.Listener) {
			if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(ln)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down...")
	case serveErr = <-errCh:
		logger.Errorf("HTTP server failed: %v", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("HTTP shutdown: %v", err)
	}
	cancelRun()
	wg.Wait()
	server.StopAll()
	if cfg.Server.Socket != "" {
		os.Remove(cfg.Server.Socket)
	}
	logger.Info("Server stopped")
	return serveErr
}

func init() {
	serverCmd.Flags().StringVarP(&listenAddress, "listen", "l", "", "覆盖server.address，例如:8000")
	root.RootCmd.AddCommand(serverCmd)
}
