package controllers

import (
	"fmt"
	"net/http"
	"strconv"

	"tunnel-panel/internal/middleware"
	"tunnel-panel/internal/models"
	"tunnel-panel/services"

	"github.com/gin-gonic/gin"
)

// TunnelController handles tunnel-related HTTP requests
type TunnelController struct {
	tunnels *services.TunnelManager
}

func NewTunnelController(tunnels *services.TunnelManager) *TunnelController {
	return &TunnelController{tunnels: tunnels}
}

func (tc *TunnelController) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api", middleware.RequireAuth())
	api.GET("/tunnels", tc.ListTunnels)
	api.POST("/tunnels", tc.CreateTunnel)
	api.GET("/tunnels/:id", tc.GetTunnel)
	api.PUT("/tunnels/:id", tc.UpdateTunnel)
	api.DELETE("/tunnels/:id", tc.DeleteTunnel)
	api.POST("/tunnels/:id/start", tc.StartTunnel)
	api.POST("/tunnels/:id/stop", tc.StopTunnel)
	api.POST("/tunnels/:id/restart", tc.RestartTunnel)
	api.GET("/tunnels/:id/config", tc.GetConfig)
	api.GET("/tunnels/:id/peers/:index", tc.GetPeerConfig)
}

// ListTunnels lists all tunnels
//
//	@Summary		List all tunnels
//	@Description	Get list of all tunnels ordered by creation time
//	@Tags			Tunnels
//	@Produce		json
//	@Success		200	{array}		models.Tunnel			"Tunnel list response"
//	@Failure		500	{object}	models.ErrorResponse	"Internal server error response"
//	@Router			/api/tunnels [get]
func (tc *TunnelController) ListTunnels(c *gin.Context) {
	tunnels, err := tc.tunnels.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if tunnels == nil {
		tunnels = []models.Tunnel{}
	}
	c.JSON(http.StatusOK, tunnels)
}

// CreateTunnel creates and launches a tunnel
//
//	@Summary		Create tunnel
//	@Description	Normalize the spec of the selected core, store the tunnel and launch it
//	@Tags			Tunnels
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.CreateTunnelRequest	true	"Tunnel definition"
//	@Success		200		{object}	models.Tunnel				"Created tunnel"
//	@Failure		400		{object}	models.ErrorResponse		"Invalid body or spec"
//	@Failure		409		{object}	models.ErrorResponse		"Port conflict"
//	@Router			/api/tunnels [post]
func (tc *TunnelController) CreateTunnel(c *gin.Context) {
	var req models.CreateTunnelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request parameters: "+err.Error())
		return
	}
	tun, err := tc.tunnels.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tun)
}

// GetTunnel gets details of specific tunnel
//
//	@Summary		Get tunnel
//	@Tags			Tunnels
//	@Produce		json
//	@Param			id	path		string	true	"Tunnel ID"
//	@Success		200	{object}	models.Tunnel
//	@Failure		404	{object}	models.ErrorResponse
//	@Router			/api/tunnels/{id} [get]
func (tc *TunnelController) GetTunnel(c *gin.Context) {
	tun, err := tc.tunnels.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tun)
}

// UpdateTunnel replaces name and spec of a tunnel
//
//	@Summary		Update tunnel
//	@Description	Replace name and spec, normalize again and re-apply the tunnel. A revision in the body must match the stored one
//	@Tags			Tunnels
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"Tunnel ID"
//	@Param			body	body		models.UpdateTunnelRequest	true	"Edited fields"
//	@Success		200		{object}	models.Tunnel
//	@Failure		400		{object}	models.ErrorResponse
//	@Failure		404		{object}	models.ErrorResponse
//	@Failure		409		{object}	models.ErrorResponse	"Revision or port conflict"
//	@Router			/api/tunnels/{id} [put]
func (tc *TunnelController) UpdateTunnel(c *gin.Context) {
	var req models.UpdateTunnelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request parameters: "+err.Error())
		return
	}
	tun, err := tc.tunnels.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tun)
}

// DeleteTunnel stops and removes a tunnel
//
//	@Summary		Delete tunnel
//	@Tags			Tunnels
//	@Produce		json
//	@Param			id	path		string	true	"Tunnel ID"
//	@Success		200	{object}	models.OperationResponse
//	@Failure		404	{object}	models.ErrorResponse
//	@Router			/api/tunnels/{id} [delete]
func (tc *TunnelController) DeleteTunnel(c *gin.Context) {
	id := c.Param("id")
	if err := tc.tunnels.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, &models.OperationResponse{
		ID:      id,
		Status:  "success",
		Message: fmt.Sprintf("Tunnel %s deleted", id),
	})
}

// StartTunnel 启动隧道
//
//	@Summary		Start tunnel
//	@Tags			Tunnels
//	@Param			id	path		string	true	"Tunnel ID"
//	@Success		200	{object}	models.Tunnel
//	@Router			/api/tunnels/{id}/start [post]
func (tc *TunnelController) StartTunnel(c *gin.Context) {
	tun, err := tc.tunnels.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tun)
}

// StopTunnel 停止隧道，周期检测不会再拉起
//
//	@Summary		Stop tunnel
//	@Tags			Tunnels
//	@Param			id	path		string	true	"Tunnel ID"
//	@Success		200	{object}	models.Tunnel
//	@Router			/api/tunnels/{id}/stop [post]
func (tc *TunnelController) StopTunnel(c *gin.Context) {
	tun, err := tc.tunnels.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tun)
}

//	@Summary		Restart tunnel
//	@Tags			Tunnels
//	@Param			id	path		string	true	"Tunnel ID"
//	@Success		200	{object}	models.Tunnel
//	@Router			/api/tunnels/{id}/restart [post]
func (tc *TunnelController) RestartTunnel(c *gin.Context) {
	tun, err := tc.tunnels.Restart(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tun)
}

// GetConfig returns the rendered native config
//
//	@Summary		Rendered core config
//	@Tags			Tunnels
//	@Produce		plain
//	@Param			id	path		string	true	"Tunnel ID"
//	@Success		200	{string}	string
//	@Router			/api/tunnels/{id}/config [get]
func (tc *TunnelController) GetConfig(c *gin.Context) {
	data, err := tc.tunnels.RenderConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

// GetPeerConfig returns the client config of one WireGuard peer
//
//	@Summary		WireGuard peer config
//	@Tags			Tunnels
//	@Produce		plain
//	@Param			id		path		string	true	"Tunnel ID"
//	@Param			index	path		int		true	"Peer index, starting at 0"
//	@Success		200		{string}	string
//	@Router			/api/tunnels/{id}/peers/{index} [get]
func (tc *TunnelController) GetPeerConfig(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "Invalid peer index")
		return
	}
	data, err := tc.tunnels.RenderPeer(c.Request.Context(), c.Param("id"), index)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=peer%d.conf", index))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}
