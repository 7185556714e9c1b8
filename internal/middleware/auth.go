package middleware

import (
	"net/http"
	"strings"

	"tunnel-panel/internal/auth"
	"tunnel-panel/internal/config"
	"tunnel-panel/internal/models"

	"github.com/gin-gonic/gin"
)

const UserKey = "user"

/**
 * Bearer token check for the API
 * @description
 * - Does nothing while auth.enabled is false
 * - Websocket clients may pass the token as ?token= because browsers can't set headers there
 * - Responds 401 with {code, detail} on failure
 */
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := config.App().Auth
		if !cfg.Enabled {
			c.Next()
			return
		}
		tokenString := ""
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tokenString = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		} else if q := c.Query("token"); q != "" {
			tokenString = q
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Code:   "auth.missing_token",
				Detail: "missing bearer token",
			})
			return
		}
		user, err := auth.ParseToken(cfg, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Code:   "auth.invalid_token",
				Detail: err.Error(),
			})
			return
		}
		c.Set(UserKey, user)
		c.Next()
	}
}
