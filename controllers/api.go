package controllers

import (
	"net/http"
	"time"

	"tunnel-panel/internal/auth"
	"tunnel-panel/internal/config"
	"tunnel-panel/internal/hub"
	"tunnel-panel/internal/logger"
	"tunnel-panel/internal/middleware"
	"tunnel-panel/services"

	_ "tunnel-panel/docs"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type APIController struct {
	server *services.Server
	hub    *hub.Hub
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

/**
 * Create new API controller instance
 * @param {*services.Server} server - Server holding the managers
 * @param {*hub.Hub} h - Websocket hub, may be nil
 * @returns {*APIController} New API controller instance
 * @example
 * controller := controllers.NewAPIController(server, h)
 * controller.RegisterRoutes(router)
 */
func NewAPIController(server *services.Server, h *hub.Hub) *APIController {
	return &APIController{
		server: server,
		hub:    h,
	}
}

/**
 * Register system routes to Gin engine
 * @param {*gin.Engine} r - Gin router instance
 * @description
 * - /healthz and /metrics stay open for probes and scrapers
 * - /api/auth/login is open, other /api routes go through RequireAuth
 * - /swagger/*any only when server.swagger is enabled
 */
func (a *APIController) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", a.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if config.App().Server.Swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	r.POST("/api/auth/login", a.Login)

	api := r.Group("/api", middleware.RequireAuth())
	api.POST("/reload", a.ReloadConfig)
	if a.hub != nil {
		api.GET("/ws", gin.WrapF(a.hub.HandleConnect))
	}
}

// @Summary 重新加载配置
// @Description 重新加载应用配置文件，失败时继续使用原配置
// @Tags Config
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} models.ErrorResponse
// @Router /api/reload [post]
func (a *APIController) ReloadConfig(c *gin.Context) {
	if err := config.ReloadConfig(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":   "config.reload_failed",
			"detail": "Failed to reload configuration: " + err.Error(),
		})
		return
	}
	logger.Info("Configuration reloaded")
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Configuration reloaded successfully",
	})
}

// @Summary 业务就绪探针
// @Description 返回服务版本、启动时间、健康状态和关键指标统计结果
// @Tags System
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /healthz [get]
func (a *APIController) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, a.server.GetHealthz(c.Request.Context()))
}

// @Summary 登录
// @Description 认证开启时使用配置的管理员账号换取Bearer令牌
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/auth/login [post]
func (a *APIController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request parameters: "+err.Error())
		return
	}
	cfg := config.App().Auth
	if !cfg.Enabled {
		badRequest(c, "Authentication is disabled")
		return
	}
	if err := auth.CheckLogin(cfg, req.Username, req.Password); err != nil {
		logger.Warnf("Failed login for '%s' from %s", req.Username, c.ClientIP())
		respondError(c, err)
		return
	}
	token, expires, err := auth.IssueToken(cfg, req.Username)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: expires})
}
