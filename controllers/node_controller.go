package controllers

import (
	"fmt"
	"net/http"

	"tunnel-panel/internal/middleware"
	"tunnel-panel/internal/models"
	"tunnel-panel/services"

	"github.com/gin-gonic/gin"
)

type NodeController struct {
	nodes *services.NodeManager
}

func NewNodeController(nodes *services.NodeManager) *NodeController {
	return &NodeController{nodes: nodes}
}

func (nc *NodeController) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api", middleware.RequireAuth())
	api.GET("/nodes", nc.ListNodes)
	api.POST("/nodes", nc.CreateNode)
	api.GET("/nodes/:id", nc.GetNode)
	api.DELETE("/nodes/:id", nc.DeleteNode)
	api.POST("/nodes/:id/heartbeat", nc.Heartbeat)
	api.GET("/nodes/:id/rathole", nc.RatholeConfigs)
}

// @Summary List nodes
// @Description Nodes available for rathole tunnels, with online status derived from heartbeats
// @Tags Nodes
// @Produce json
// @Success 200 {array} models.Node
// @Router /api/nodes [get]
func (nc *NodeController) ListNodes(c *gin.Context) {
	nodes, err := nc.nodes.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if nodes == nil {
		nodes = []models.Node{}
	}
	c.JSON(http.StatusOK, nodes)
}

// @Summary Register node
// @Tags Nodes
// @Accept json
// @Produce json
// @Param body body models.CreateNodeRequest true "Node"
// @Success 200 {object} models.Node
// @Failure 409 {object} models.ErrorResponse "Name already used"
// @Router /api/nodes [post]
func (nc *NodeController) CreateNode(c *gin.Context) {
	var req models.CreateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request parameters: "+err.Error())
		return
	}
	n, err := nc.nodes.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// @Summary Get node
// @Tags Nodes
// @Param id path string true "Node ID"
// @Success 200 {object} models.Node
// @Router /api/nodes/{id} [get]
func (nc *NodeController) GetNode(c *gin.Context) {
	n, err := nc.nodes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// @Summary Delete node
// @Tags Nodes
// @Param id path string true "Node ID"
// @Success 200 {object} models.OperationResponse
// @Failure 409 {object} models.ErrorResponse "Tunnels still use the node"
// @Router /api/nodes/{id} [delete]
func (nc *NodeController) DeleteNode(c *gin.Context) {
	id := c.Param("id")
	if err := nc.nodes.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, &models.OperationResponse{
		ID:      id,
		Status:  "success",
		Message: fmt.Sprintf("Node %s deleted", id),
	})
}

// @Summary Node heartbeat
// @Tags Nodes
// @Param id path string true "Node ID"
// @Success 200 {object} models.Node
// @Router /api/nodes/{id}/heartbeat [post]
func (nc *NodeController) Heartbeat(c *gin.Context) {
	n, err := nc.nodes.Heartbeat(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// @Summary Rathole client configs of a node
// @Description One client TOML per rathole tunnel bound to the node
// @Tags Nodes
// @Param id path string true "Node ID"
// @Success 200 {array} services.RatholeClientConfig
// @Router /api/nodes/{id}/rathole [get]
func (nc *NodeController) RatholeConfigs(c *gin.Context) {
	configs, err := nc.nodes.RatholeConfigs(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, configs)
}
