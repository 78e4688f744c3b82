package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/backstead/backstead/internal/jobs"
	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/queue"
	"github.com/backstead/backstead/internal/store"
)

// ScanHandler triggers discovery scans and serves their results.
type ScanHandler struct {
	servers *store.ServerStore
	scans   *store.ScanStore
	queue   queue.Queue
}

func NewScanHandler(servers *store.ServerStore, scans *store.ScanStore, q queue.Queue) *ScanHandler {
	return &ScanHandler{
		servers: servers,
		scans:   scans,
		queue:   q,
	}
}

// TriggerScan starts a scan in the background and returns its id for
// polling.
// POST /api/v1/servers/:id/scans
func (h *ScanHandler) TriggerScan(c *gin.Context) {
	server, err := h.servers.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}

	// An empty body means defaults; a body that fails to parse is an error.
	var req struct {
		Type string `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	scanType := models.ScanType(req.Type)
	switch scanType {
	case models.ScanFull, models.ScanQuick, models.ScanCustom:
	case "":
		scanType = models.ScanFull
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown scan type"})
		return
	}

	scan := &models.Scan{ServerID: server.ID, Type: scanType}
	if err := h.scans.Create(scan); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create scan"})
		return
	}

	if _, err := h.queue.Submit(jobs.TypeScan, map[string]any{
		"server_id": server.ID,
		"scan_id":   scan.ID,
	}); err != nil {
		h.scans.Fail(scan.ID, "scan could not be queued")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scan queue is full"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"scan_id": scan.ID, "status": models.ScanPending})
}

// ListScans returns the scan history of a server.
// GET /api/v1/servers/:id/scans
func (h *ScanHandler) ListScans(c *gin.Context) {
	scans, err := h.scans.ListByServer(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list scans"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans})
}

// GetScan returns one scan with its discovered services, filesystems and
// derived recommendations.
// GET /api/v1/scans/:scanId
func (h *ScanHandler) GetScan(c *gin.Context) {
	scan, err := h.scans.Get(c.Param("scanId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Scan not found"})
		return
	}

	response := gin.H{"scan": scan}
	if scan.Status == models.ScanCompleted {
		services, _ := h.scans.Services(scan.ID)
		filesystems, _ := h.scans.Filesystems(scan.ID)
		recommendations, _ := h.scans.Recommendations(scan.ID)
		response["services"] = services
		response["filesystems"] = filesystems
		response["recommendations"] = recommendations
	}
	c.JSON(http.StatusOK, response)
}

// LatestScan returns the most recent completed scan of a server.
// GET /api/v1/servers/:id/scans/latest
func (h *ScanHandler) LatestScan(c *gin.Context) {
	scan, err := h.scans.LatestCompleted(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No completed scan for this server"})
		return
	}

	services, _ := h.scans.Services(scan.ID)
	filesystems, _ := h.scans.Filesystems(scan.ID)
	recommendations, _ := h.scans.Recommendations(scan.ID)
	c.JSON(http.StatusOK, gin.H{
		"scan":            scan,
		"services":        services,
		"filesystems":     filesystems,
		"recommendations": recommendations,
	})
}
