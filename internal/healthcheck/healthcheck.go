package healthcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/backstead/backstead/internal/logging"
	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/notify"
	"github.com/backstead/backstead/internal/remote"
	"github.com/backstead/backstead/internal/scanner"
	"github.com/backstead/backstead/internal/store"
)

// Disk verdicts, ordered by severity.
const (
	DiskOK       = "ok"
	DiskWarning  = "warning"
	DiskCritical = "critical"
)

const (
	criticalUsagePercent = 90
	warningUsagePercent  = 80
	criticalAvailBytes   = 10 * 1024 * 1024 * 1024
)

// DiskCheck is the verdict for one mounted filesystem.
type DiskCheck struct {
	MountPoint     string `json:"mount_point"`
	UsagePercent   int    `json:"usage_percent"`
	AvailableBytes int64  `json:"available_bytes"`
	Status         string `json:"status"`
}

// Result is the outcome of one server health check. Connectivity failure
// alone makes a server unhealthy; disk warnings do not. The age fields
// stay unset when the server has no completed scan or backup yet.
type Result struct {
	ServerID             string      `json:"server_id"`
	Healthy              bool        `json:"healthy"`
	Connected            bool        `json:"connected"`
	DiskChecks           []DiskCheck `json:"disk_checks,omitempty"`
	Alerts               []string    `json:"alerts,omitempty"`
	LastScanAgeSeconds   *int64      `json:"last_scan_age_seconds,omitempty"`
	LastBackupAgeSeconds *int64      `json:"last_backup_age_seconds,omitempty"`
	CheckedAt            time.Time   `json:"checked_at"`
	ConnectError         string      `json:"connect_error,omitempty"`
}

// Checker probes remote hosts for reachability and disk pressure.
type Checker struct {
	dialer   remote.Dialer
	servers  *store.ServerStore
	scans    *store.ScanStore
	backups  *store.BackupStore
	notifier notify.Notifier
	interval time.Duration
}

func New(dialer remote.Dialer, servers *store.ServerStore, scans *store.ScanStore,
	backups *store.BackupStore, notifier notify.Notifier, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{
		dialer:   dialer,
		servers:  servers,
		scans:    scans,
		backups:  backups,
		notifier: notifier,
		interval: interval,
	}
}

// ClassifyDisk maps one filesystem's numbers to a verdict. Low absolute
// headroom is critical even at modest usage, since one large dump can
// fill the mount.
func ClassifyDisk(usagePercent int, availableBytes int64) string {
	if usagePercent >= criticalUsagePercent || availableBytes < criticalAvailBytes {
		return DiskCritical
	}
	if usagePercent >= warningUsagePercent {
		return DiskWarning
	}
	return DiskOK
}

// CheckServer runs one health check and records the result on the server
// row. The health row is stamped whether the check passed or not.
func (c *Checker) CheckServer(ctx context.Context, server *models.Server) *Result {
	result := &Result{
		ServerID:  server.ID,
		CheckedAt: time.Now(),
	}
	c.recordAges(result)

	session, err := c.dialer.Dial(ctx, server)
	if err != nil {
		result.ConnectError = err.Error()
		logging.L().Warn("healthcheck_connect_failed", "server_id", server.ID, "error", err)
		c.emit(notify.Event{
			Type:     notify.EventServerOffline,
			ServerID: server.ID,
			Subject:  server.Name,
			Message:  fmt.Sprintf("Server %s is unreachable", server.Name),
			Details:  map[string]any{"error": err.Error()},
			Time:     result.CheckedAt,
		})
		c.record(server.ID, false, result.CheckedAt)
		return result
	}
	defer session.Close()

	result.Connected = true
	result.Healthy = true

	res, err := session.Exec("df -PB1")
	if err != nil {
		// Reachable but unable to report disks. Leave the verdict to
		// connectivity alone rather than inventing disk state.
		logging.L().Warn("healthcheck_disk_probe_failed", "server_id", server.ID, "error", err)
		c.record(server.ID, true, result.CheckedAt)
		return result
	}

	for _, fs := range scanner.ParseDiskUsage(res.Stdout) {
		check := DiskCheck{
			MountPoint:     fs.MountPoint,
			UsagePercent:   fs.UsagePercent,
			AvailableBytes: fs.AvailableBytes,
			Status:         ClassifyDisk(fs.UsagePercent, fs.AvailableBytes),
		}
		result.DiskChecks = append(result.DiskChecks, check)

		switch check.Status {
		case DiskCritical:
			result.Healthy = false
			alert := fmt.Sprintf("%s at %d%% with %d bytes free", check.MountPoint, check.UsagePercent, check.AvailableBytes)
			result.Alerts = append(result.Alerts, alert)
			c.emit(notify.Event{
				Type:     notify.EventDiskCritical,
				ServerID: server.ID,
				Subject:  server.Name,
				Message:  "Disk space critical: " + alert,
				Details:  map[string]any{"mount_point": check.MountPoint, "usage_percent": check.UsagePercent},
				Time:     result.CheckedAt,
			})
		case DiskWarning:
			alert := fmt.Sprintf("%s at %d%% usage", check.MountPoint, check.UsagePercent)
			result.Alerts = append(result.Alerts, alert)
			c.emit(notify.Event{
				Type:     notify.EventDiskWarning,
				ServerID: server.ID,
				Subject:  server.Name,
				Message:  "Disk space warning: " + alert,
				Details:  map[string]any{"mount_point": check.MountPoint, "usage_percent": check.UsagePercent},
				Time:     result.CheckedAt,
			})
		}
	}

	c.record(server.ID, true, result.CheckedAt)
	return result
}

// CheckAll sweeps every server flagged online, sequentially. Servers
// already marked offline are skipped; the manual check endpoint is the
// path that brings them back.
func (c *Checker) CheckAll(ctx context.Context) []*Result {
	servers, err := c.servers.List()
	if err != nil {
		logging.L().Error("healthcheck_list_failed", "error", err)
		return nil
	}

	results := make([]*Result, 0, len(servers))
	for _, server := range servers {
		if ctx.Err() != nil {
			break
		}
		if !server.Online {
			continue
		}
		results = append(results, c.CheckServer(ctx, server))
	}
	return results
}

// Run performs periodic sweeps until ctx is cancelled. The first sweep
// happens one interval after startup, not immediately, so a restart does
// not storm every host at once with the scheduler and queue also warming
// up.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	logging.L().Info("healthcheck_started", "interval", c.interval.String())
	for {
		select {
		case <-ticker.C:
			c.CheckAll(ctx)
		case <-ctx.Done():
			logging.L().Info("healthcheck_stopped")
			return
		}
	}
}

// recordAges stamps how stale the server's latest completed scan and
// backup are, measured against the check time.
func (c *Checker) recordAges(result *Result) {
	if scan, err := c.scans.LatestCompleted(result.ServerID); err == nil && scan.CompletedAt != nil {
		age := int64(result.CheckedAt.Sub(*scan.CompletedAt).Seconds())
		result.LastScanAgeSeconds = &age
	}
	if backup, err := c.backups.LatestCompleted(result.ServerID); err == nil && backup.CompletedAt != nil {
		age := int64(result.CheckedAt.Sub(*backup.CompletedAt).Seconds())
		result.LastBackupAgeSeconds = &age
	}
}

func (c *Checker) record(serverID string, online bool, checkedAt time.Time) {
	if err := c.servers.SetHealth(serverID, online, checkedAt); err != nil {
		logging.L().Error("healthcheck_record_failed", "server_id", serverID, "error", err)
	}
}

func (c *Checker) emit(event notify.Event) {
	if c.notifier != nil {
		c.notifier.Notify(event)
	}
}
