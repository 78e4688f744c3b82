package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/backstead/backstead/internal/archive"
	"github.com/backstead/backstead/internal/logging"
	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/notify"
	"github.com/backstead/backstead/internal/remote"
	"github.com/backstead/backstead/internal/store"
)

// BackupResult is the outcome of one backup orchestration run.
type BackupResult struct {
	Success          bool          `json:"success"`
	ServicesBackedUp []string      `json:"services_backed_up"`
	ServicesFailed   []string      `json:"services_failed"`
	Duration         time.Duration `json:"duration"`
	TotalSize        int64         `json:"total_size"`
	Errors           []string      `json:"errors,omitempty"`
}

// BackupOrchestrator drives the stop -> backup -> restart sequence for one
// server over a single remote session.
type BackupOrchestrator struct {
	dialer      remote.Dialer
	servers     *store.ServerStore
	scans       *store.ScanStore
	backups     *store.BackupStore
	notifier    notify.Notifier
	backupDir   string
	destination archive.Destination // optional secondary copy
	sleep       func(time.Duration)
}

func NewBackupOrchestrator(dialer remote.Dialer, servers *store.ServerStore, scans *store.ScanStore,
	backups *store.BackupStore, notifier notify.Notifier, backupDir string) *BackupOrchestrator {
	return &BackupOrchestrator{
		dialer:    dialer,
		servers:   servers,
		scans:     scans,
		backups:   backups,
		notifier:  notifier,
		backupDir: backupDir,
		sleep:     time.Sleep,
	}
}

// SetDestination arms an optional secondary archive destination. The copy
// runs after the local download; its failure is logged, not fatal.
func (o *BackupOrchestrator) SetDestination(dest archive.Destination) {
	o.destination = dest
}

// Orchestrate executes the backup identified by backupID. Selective mode
// restricts the plan to the given service IDs or names; an empty slice
// means full. The backup row's terminal status is written here, so callers
// polling the row observe the same outcome as the returned result.
func (o *BackupOrchestrator) Orchestrate(ctx context.Context, backupID string, selectedServices []string) (*BackupResult, error) {
	started := time.Now()

	backup, err := o.backups.Get(backupID)
	if err != nil {
		return nil, err
	}

	result, err := o.run(ctx, backup, selectedServices)
	if err != nil {
		if perr := o.backups.MarkFailed(backupID, err.Error()); perr != nil {
			logging.L().Error("backup_fail_persist_error", "backup_id", backupID, "error", perr)
		}
		o.notifier.Notify(notify.Event{
			Type:     notify.EventBackupFailed,
			ServerID: backup.ServerID,
			Subject:  backupID,
			Message:  err.Error(),
		})
		return nil, err
	}

	result.Duration = time.Since(started)

	if result.Success {
		o.notifier.Notify(notify.Event{
			Type:     notify.EventBackupCompleted,
			ServerID: backup.ServerID,
			Subject:  backupID,
			Message:  fmt.Sprintf("backed up %d services", len(result.ServicesBackedUp)),
			Details: map[string]any{
				"total_size":  result.TotalSize,
				"duration_ms": result.Duration.Milliseconds(),
			},
		})
	} else {
		o.notifier.Notify(notify.Event{
			Type:     notify.EventBackupFailed,
			ServerID: backup.ServerID,
			Subject:  backupID,
			Message:  strings.Join(result.Errors, "; "),
		})
	}

	return result, nil
}

func (o *BackupOrchestrator) run(ctx context.Context, backup *models.Backup, selectedServices []string) (*BackupResult, error) {
	server, err := o.servers.Get(backup.ServerID)
	if err != nil {
		return nil, err
	}

	scan, err := o.scans.LatestCompleted(server.ID)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	services, err := o.scans.Services(scan.ID)
	if err != nil {
		return nil, err
	}
	services = filterServices(services, selectedServices)
	if len(services) == 0 {
		return nil, &ValidationError{Reason: "no services matched the backup request"}
	}

	if err := o.backups.MarkRunning(backup.ID); err != nil {
		return nil, err
	}

	stagingDir := "/tmp/backstead-" + backup.ID
	plan := BuildPlan(services, stagingDir)

	session, err := o.dialer.Dial(ctx, server)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	// Remote staging is removed regardless of outcome.
	defer o.cleanupStaging(session, stagingDir)

	if _, err := execValidated(session, "mkdir -p "+stagingDir); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	outcome := &Outcome{}

	// Phase 1: stop, least critical first.
	stopOrder := StopOrder(plan)
	var stopped []ServiceBackupConfig
	for _, cfg := range stopOrder {
		if _, err := execValidated(session, cfg.StopCommand); err != nil {
			outcome.Note("stop "+cfg.Name, err)
			logging.L().Warn("backup_stop_failed", "backup_id", backup.ID, "service", cfg.Name, "error", err)
			continue
		}
		stopped = append(stopped, cfg)
	}

	// Phase 2: back up every service, even ones whose stop failed.
	for _, cfg := range plan {
		if cfg.BackupCommand == "" {
			outcome.Fail(cfg.Name, fmt.Errorf("no backup command for service"))
			continue
		}
		if _, err := execValidated(session, cfg.BackupCommand); err != nil {
			outcome.Fail(cfg.Name, err)
			continue
		}
		outcome.Succeed(cfg.Name)
		if size, err := remoteFileSize(session, stagingDir+"/"+cfg.ArtifactName); err == nil {
			outcome.AddSize(size)
		}
	}

	// Phase 3: restart in reverse of the realized stop order, most
	// critical first, polling health where a check exists.
	for _, cfg := range Reverse(stopped) {
		if _, err := execValidated(session, cfg.StartCommand); err != nil {
			outcome.Note("restart "+cfg.Name, err)
			logging.L().Warn("backup_restart_failed", "backup_id", backup.ID, "service", cfg.Name, "error", err)
			continue
		}
		if cfg.HealthCheck != "" {
			if err := pollHealth(session, cfg.Name, cfg.HealthCheck, o.sleep); err != nil {
				// Logged only; a slow restart does not fail the backup.
				logging.L().Warn("backup_health_timeout", "backup_id", backup.ID, "service", cfg.Name, "error", err)
			}
		}
	}

	localPath, localSize, err := o.collectArchive(session, backup, stagingDir)
	if err != nil {
		return nil, err
	}

	result := &BackupResult{
		Success:          outcome.Success(),
		ServicesBackedUp: outcome.Succeeded(),
		ServicesFailed:   outcome.Failed(),
		TotalSize:        localSize,
		Errors:           outcome.Errors(),
	}

	metadata := map[string]any{
		"scan_id":  scan.ID,
		"services": result.ServicesBackedUp,
		"staging":  stagingDir,
	}

	if result.Success {
		if err := o.backups.MarkCompleted(backup.ID, localPath, localSize, metadata); err != nil {
			return nil, err
		}
	} else {
		if err := o.backups.MarkFailed(backup.ID, strings.Join(result.Errors, "; ")); err != nil {
			return nil, err
		}
	}

	o.copyToDestination(backup, localPath)

	return result, nil
}

// collectArchive bundles the staging directory into one tarball and pulls
// it down to the local backup directory.
func (o *BackupOrchestrator) collectArchive(session remote.Session, backup *models.Backup, stagingDir string) (string, int64, error) {
	remoteTar := stagingDir + ".tar.gz"
	if _, err := execValidated(session, "tar -czf "+remoteTar+" -C "+stagingDir+" ."); err != nil {
		return "", 0, fmt.Errorf("failed to build backup archive: %w", err)
	}
	defer func() {
		if _, err := execValidated(session, "rm -f "+remoteTar); err != nil {
			logging.L().Warn("backup_archive_cleanup_failed", "backup_id", backup.ID, "error", err)
		}
	}()

	localDir := filepath.Join(o.backupDir, backup.ServerID)
	if err := os.MkdirAll(localDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create backup directory: %w", err)
	}

	localPath := filepath.Join(localDir, backup.ID+".tar.gz")
	if err := session.Download(remoteTar, localPath); err != nil {
		return "", 0, fmt.Errorf("failed to download backup archive: %w", err)
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat downloaded archive: %w", err)
	}

	return localPath, info.Size(), nil
}

func (o *BackupOrchestrator) copyToDestination(backup *models.Backup, localPath string) {
	if o.destination == nil || localPath == "" {
		return
	}
	key := backup.ServerID + "/" + backup.ID + ".tar.gz"
	if err := o.destination.Store(localPath, key); err != nil {
		logging.L().Warn("backup_secondary_copy_failed", "backup_id", backup.ID, "error", err)
	}
}

func (o *BackupOrchestrator) cleanupStaging(session remote.Session, stagingDir string) {
	if _, err := execValidated(session, "rm -rf "+stagingDir); err != nil {
		logging.L().Warn("backup_staging_cleanup_failed", "staging", stagingDir, "error", err)
	}
}

// execValidated enforces the command-safety boundary before dispatch.
func execValidated(session remote.Session, command string) (*remote.Result, error) {
	if err := remote.ValidateCommand(command); err != nil {
		return nil, err
	}
	return session.Exec(command)
}

func remoteFileSize(session remote.Session, path string) (int64, error) {
	res, err := execValidated(session, "stat -c %s "+path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(res.Stdout), 10, 64)
}

// filterServices applies selective mode by service ID or name. An empty
// selection keeps everything.
func filterServices(services []models.DetectedService, selected []string) []models.DetectedService {
	if len(selected) == 0 {
		return services
	}
	want := make(map[string]bool, len(selected))
	for _, s := range selected {
		want[s] = true
	}
	var out []models.DetectedService
	for _, svc := range services {
		if want[svc.ID] || want[svc.Name] {
			out = append(out, svc)
		}
	}
	return out
}
