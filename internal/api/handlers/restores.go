package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/backstead/backstead/internal/api/middleware"
	"github.com/backstead/backstead/internal/jobs"
	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/orchestrator"
	"github.com/backstead/backstead/internal/queue"
	"github.com/backstead/backstead/internal/store"
)

// RestoreHandler triggers restores and serves restore jobs with their
// audit trails.
type RestoreHandler struct {
	backups  *store.BackupStore
	restores *store.RestoreStore
	queue    queue.Queue
}

func NewRestoreHandler(backups *store.BackupStore, restores *store.RestoreStore, q queue.Queue) *RestoreHandler {
	return &RestoreHandler{
		backups:  backups,
		restores: restores,
		queue:    q,
	}
}

// TriggerRestore starts a restore in the background and returns the job
// id for polling. Ownership and backup state are validated by the
// orchestrator so the rejection lands in the audit trail.
// POST /api/v1/backups/:backupId/restore
func (h *RestoreHandler) TriggerRestore(c *gin.Context) {
	backup, err := h.backups.Get(c.Param("backupId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Backup not found"})
		return
	}

	var opts orchestrator.RestoreOptions
	if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if opts.RestoreType == "" {
		opts.RestoreType = "full"
	}
	if opts.RestoreType != "full" && opts.RestoreType != "selective" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown restore type"})
		return
	}

	job := &models.RestoreJob{
		BackupID:    backup.ID,
		ServerID:    backup.ServerID,
		RequestedBy: middleware.UserID(c),
		RestoreType: opts.RestoreType,
	}
	if err := h.restores.Create(job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create restore job"})
		return
	}

	if _, err := h.queue.Submit(jobs.TypeRestore, map[string]any{
		"restore_job_id": job.ID,
		"options":        opts,
	}); err != nil {
		h.restores.Finish(job.ID, models.RestoreFailed)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Restore queue is full"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"restore_job_id": job.ID, "status": models.RestorePending})
}

// GetRestore returns one restore job.
// GET /api/v1/restores/:restoreId
func (h *RestoreHandler) GetRestore(c *gin.Context) {
	job, err := h.restores.Get(c.Param("restoreId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Restore job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListRestores returns a server's restore history.
// GET /api/v1/servers/:id/restores
func (h *RestoreHandler) ListRestores(c *gin.Context) {
	restoreJobs, err := h.restores.ListByServer(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list restore jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"restores": restoreJobs})
}

// GetAuditTrail returns the append-only step log of a restore job.
// GET /api/v1/restores/:restoreId/audit
func (h *RestoreHandler) GetAuditTrail(c *gin.Context) {
	job, err := h.restores.Get(c.Param("restoreId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Restore job not found"})
		return
	}

	trail, err := h.restores.AuditTrail(job.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load audit trail"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"restore_job_id": job.ID, "audit_trail": trail})
}
