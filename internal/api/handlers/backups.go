package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/backstead/backstead/internal/api/middleware"
	"github.com/backstead/backstead/internal/jobs"
	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/queue"
	"github.com/backstead/backstead/internal/store"
)

// BackupHandler triggers backups and serves backup history.
type BackupHandler struct {
	servers *store.ServerStore
	scans   *store.ScanStore
	backups *store.BackupStore
	queue   queue.Queue
}

func NewBackupHandler(servers *store.ServerStore, scans *store.ScanStore, backups *store.BackupStore, q queue.Queue) *BackupHandler {
	return &BackupHandler{
		servers: servers,
		scans:   scans,
		backups: backups,
		queue:   q,
	}
}

// TriggerBackup starts a backup in the background. Service selection is
// validated by the orchestrator against the latest scan, not here; the
// handler only guarantees a completed scan exists so the failure surfaces
// immediately instead of in the worker log.
// POST /api/v1/servers/:id/backups
func (h *BackupHandler) TriggerBackup(c *gin.Context) {
	server, err := h.servers.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}

	var req struct {
		Type     string   `json:"type"`
		Services []string `json:"services"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Type == "" {
		req.Type = "manual"
	}

	if _, err := h.scans.LatestCompleted(server.ID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Server has no completed scan; scan it first"})
		return
	}

	backup := &models.Backup{
		ServerID:  server.ID,
		Type:      req.Type,
		CreatedBy: middleware.UserID(c),
	}
	if err := h.backups.Create(backup); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create backup"})
		return
	}

	if _, err := h.queue.Submit(jobs.TypeBackup, map[string]any{
		"backup_id": backup.ID,
		"server_id": server.ID,
		"services":  req.Services,
	}); err != nil {
		h.backups.MarkFailed(backup.ID, "backup could not be queued")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Backup queue is full"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"backup_id": backup.ID, "status": models.BackupPending})
}

// ListBackups returns a server's backup history.
// GET /api/v1/servers/:id/backups
func (h *BackupHandler) ListBackups(c *gin.Context) {
	backups, err := h.backups.ListByServer(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list backups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": backups})
}

// GetBackup returns one backup.
// GET /api/v1/backups/:backupId
func (h *BackupHandler) GetBackup(c *gin.Context) {
	backup, err := h.backups.Get(c.Param("backupId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Backup not found"})
		return
	}
	c.JSON(http.StatusOK, backup)
}
