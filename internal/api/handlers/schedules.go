package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/scheduler"
	"github.com/backstead/backstead/internal/store"
)

// ScheduleHandler manages recurring backup schedules. Every mutation goes
// through the scheduler so the stored row and the armed trigger never
// drift apart.
type ScheduleHandler struct {
	servers   *store.ServerStore
	schedules *store.ScheduleStore
	scheduler *scheduler.Scheduler
}

func NewScheduleHandler(servers *store.ServerStore, schedules *store.ScheduleStore, sched *scheduler.Scheduler) *ScheduleHandler {
	return &ScheduleHandler{
		servers:   servers,
		schedules: schedules,
		scheduler: sched,
	}
}

type scheduleRequest struct {
	Type        string   `json:"type" binding:"required,oneof=daily weekly monthly"`
	Hour        int      `json:"hour"`
	DayOfWeek   *int     `json:"day_of_week"`
	DayOfMonth  *int     `json:"day_of_month"`
	SourcePaths []string `json:"source_paths"`
	Destination string   `json:"destination"`
	Compression bool     `json:"compression"`
	Encryption  bool     `json:"encryption"`
	Enabled     *bool    `json:"enabled"`
}

func (r *scheduleRequest) apply(schedule *models.BackupSchedule) {
	schedule.Type = models.ScheduleType(r.Type)
	schedule.Hour = r.Hour
	schedule.DayOfWeek = r.DayOfWeek
	schedule.DayOfMonth = r.DayOfMonth
	schedule.SourcePaths = r.SourcePaths
	schedule.Destination = r.Destination
	schedule.Compression = r.Compression
	schedule.Encryption = r.Encryption
	schedule.Enabled = true
	if r.Enabled != nil {
		schedule.Enabled = *r.Enabled
	}
}

// CreateSchedule stores and arms a schedule.
// POST /api/v1/servers/:id/schedules
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	server, err := h.servers.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	schedule := &models.BackupSchedule{ServerID: server.ID}
	req.apply(schedule)

	// Reject invalid recurrence before the row exists.
	if _, err := scheduler.BuildCronExpr(schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.schedules.Create(schedule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create schedule"})
		return
	}

	if schedule.Enabled {
		if err := h.scheduler.ScheduleBackup(schedule); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to arm schedule"})
			return
		}
	}

	c.JSON(http.StatusCreated, schedule)
}

// ListSchedules returns a server's schedules.
// GET /api/v1/servers/:id/schedules
func (h *ScheduleHandler) ListSchedules(c *gin.Context) {
	schedules, err := h.schedules.ListByServer(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list schedules"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": schedules})
}

// GetSchedule returns one schedule.
// GET /api/v1/schedules/:scheduleId
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	schedule, err := h.schedules.Get(c.Param("scheduleId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// UpdateSchedule updates a schedule and re-arms or disarms its trigger.
// PUT /api/v1/schedules/:scheduleId
func (h *ScheduleHandler) UpdateSchedule(c *gin.Context) {
	schedule, err := h.schedules.Get(c.Param("scheduleId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.apply(schedule)

	if _, err := scheduler.BuildCronExpr(schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.schedules.Update(schedule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update schedule"})
		return
	}

	if schedule.Enabled {
		if err := h.scheduler.ScheduleBackup(schedule); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to arm schedule"})
			return
		}
	} else {
		h.scheduler.UnscheduleBackup(schedule.ID)
	}

	c.JSON(http.StatusOK, schedule)
}

// DeleteSchedule disarms and removes a schedule.
// DELETE /api/v1/schedules/:scheduleId
func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	scheduleID := c.Param("scheduleId")
	h.scheduler.UnscheduleBackup(scheduleID)

	if err := h.schedules.Delete(scheduleID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Schedule deleted"})
}
