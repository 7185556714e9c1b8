package controllers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"tunnel-panel/internal/models"

	"github.com/gin-gonic/gin"
)

/**
 * Serve the built admin UI
 * @param {*gin.Engine} r - Gin router instance
 * @param {string} dir - Output directory of the frontend build
 * @returns {bool} False when dir does not exist and nothing was registered
 * @description
 * - /assets is served statically
 * - Unknown /api routes answer 404 JSON, everything else falls back to index.html
 */
func RegisterFrontend(r *gin.Engine, dir string) bool {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return false
	}
	r.Static("/assets", filepath.Join(dir, "assets"))

	index := filepath.Join(dir, "index.html")
	r.NoRoute(func(c *gin.Context) {
		reqPath := c.Request.URL.Path
		if reqPath == "/api" || strings.HasPrefix(reqPath, "/api/") {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Code: "not_found", Detail: "API route not found"})
			return
		}
		if reqPath != "/" && reqPath != "" {
			file := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+reqPath)))
			if info, err := os.Stat(file); err == nil && !info.IsDir() {
				c.File(file)
				return
			}
		}
		c.File(index)
	})
	return true
}
