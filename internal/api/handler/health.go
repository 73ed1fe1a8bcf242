package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports service liveness.
type HealthHandler struct {
	service string
}

// NewHealthHandler creates a health handler identifying the given service.
func NewHealthHandler(service string) *HealthHandler {
	return &HealthHandler{service: service}
}

// Health returns the health status and identity of the service.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": h.service,
	})
}
