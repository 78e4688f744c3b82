package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/backstead/backstead/internal/healthcheck"
	"github.com/backstead/backstead/internal/store"
)

// HealthHandler runs on-demand server health checks.
type HealthHandler struct {
	servers *store.ServerStore
	checker *healthcheck.Checker
}

func NewHealthHandler(servers *store.ServerStore, checker *healthcheck.Checker) *HealthHandler {
	return &HealthHandler{
		servers: servers,
		checker: checker,
	}
}

// CheckServer probes one server immediately, outside the periodic sweep.
// POST /api/v1/servers/:id/healthcheck
func (h *HealthHandler) CheckServer(c *gin.Context) {
	server, err := h.servers.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}

	result := h.checker.CheckServer(c.Request.Context(), server)
	c.JSON(http.StatusOK, result)
}
