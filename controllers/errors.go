package controllers

import (
	"errors"
	"net/http"

	"tunnel-panel/internal/auth"
	"tunnel-panel/internal/cores"
	"tunnel-panel/internal/logger"
	"tunnel-panel/internal/models"
	"tunnel-panel/services"

	"github.com/gin-gonic/gin"
)

/**
 * Map a service error to HTTP status and error code
 * @param {error} err - Error returned by a manager
 * @returns {int, string} HTTP status and machine readable code
 */
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrRevisionConflict):
		return http.StatusConflict, "revision_conflict"
	case errors.Is(err, services.ErrPortConflict):
		return http.StatusConflict, "port_conflict"
	case errors.Is(err, services.ErrNodeInUse):
		return http.StatusConflict, "node_in_use"
	case errors.Is(err, services.ErrDuplicate):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, cores.ErrInvalidSpec):
		return http.StatusBadRequest, "invalid_spec"
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, services.ErrNotManaged):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, auth.ErrBadCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, models.ErrorResponse{Code: code, Detail: err.Error()})
}

func badRequest(c *gin.Context, detail string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{Code: "invalid_request", Detail: detail})
}
