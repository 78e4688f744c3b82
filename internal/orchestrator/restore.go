package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/backstead/backstead/internal/logging"
	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/notify"
	"github.com/backstead/backstead/internal/remote"
	"github.com/backstead/backstead/internal/store"
)

// RestoreOptions controls one restore run.
type RestoreOptions struct {
	RestoreType         string   `json:"restore_type"` // "full" or "selective"
	SelectedServices    []string `json:"selected_services,omitempty"`
	VerifyIntegrity     bool     `json:"verify_integrity"`
	CreateRollbackPoint bool     `json:"create_rollback_point"`
	SkipHealthChecks    bool     `json:"skip_health_checks"`
}

// RestoreResult is the outcome of one restore orchestration run.
type RestoreResult struct {
	Success          bool          `json:"success"`
	RestoreJobID     string        `json:"restore_job_id"`
	ServicesRestored []string      `json:"services_restored"`
	ServicesFailed   []string      `json:"services_failed"`
	Duration         time.Duration `json:"duration"`
	Errors           []string      `json:"errors,omitempty"`
	RolledBack       bool          `json:"rolled_back"`
}

// RestoreOrchestrator drives the restore state machine. Each run owns one
// RestoreJob row and one remote session; every discrete action lands in
// the append-only audit trail.
type RestoreOrchestrator struct {
	dialer   remote.Dialer
	servers  *store.ServerStore
	scans    *store.ScanStore
	backups  *store.BackupStore
	restores *store.RestoreStore
	notifier notify.Notifier
	sleep    func(time.Duration)
}

func NewRestoreOrchestrator(dialer remote.Dialer, servers *store.ServerStore, scans *store.ScanStore,
	backups *store.BackupStore, restores *store.RestoreStore, notifier notify.Notifier) *RestoreOrchestrator {
	return &RestoreOrchestrator{
		dialer:   dialer,
		servers:  servers,
		scans:    scans,
		backups:  backups,
		restores: restores,
		notifier: notifier,
		sleep:    time.Sleep,
	}
}

// Orchestrate restores the given backup. A job row is created up front so
// validation failures leave an inspectable record; nothing touches the
// remote host until validation and integrity checks pass.
func (o *RestoreOrchestrator) Orchestrate(ctx context.Context, backupID, userID string, opts RestoreOptions) (*RestoreResult, error) {
	backup, err := o.backups.Get(backupID)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("backup %s not found", backupID)}
	}

	job := &models.RestoreJob{
		BackupID:    backup.ID,
		ServerID:    backup.ServerID,
		RequestedBy: userID,
		RestoreType: opts.RestoreType,
	}
	if err := o.restores.Create(job); err != nil {
		return nil, err
	}

	return o.Execute(ctx, job, opts)
}

// Execute runs the restore against an already-created job row. Async
// callers create the row first so its id can be handed back immediately.
func (o *RestoreOrchestrator) Execute(ctx context.Context, job *models.RestoreJob, opts RestoreOptions) (*RestoreResult, error) {
	started := time.Now()

	backup, err := o.backups.Get(job.BackupID)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("backup %s not found", job.BackupID)}
	}

	userID := job.RequestedBy
	trail := newAuditTrail(o.restores, job.ID)
	result, err := o.run(ctx, job, backup, userID, opts, trail)
	if err != nil {
		if ferr := o.restores.Finish(job.ID, models.RestoreFailed); ferr != nil {
			logging.L().Error("restore_finish_persist_error", "restore_job_id", job.ID, "error", ferr)
		}
		o.notifier.Notify(notify.Event{
			Type:     notify.EventRestoreFailed,
			ServerID: backup.ServerID,
			Subject:  job.ID,
			Message:  err.Error(),
		})
		return &RestoreResult{RestoreJobID: job.ID, Errors: []string{err.Error()}, Duration: time.Since(started)}, err
	}

	result.Duration = time.Since(started)
	o.notifyOutcome(backup.ServerID, job.ID, result)
	return result, nil
}

func (o *RestoreOrchestrator) notifyOutcome(serverID, jobID string, result *RestoreResult) {
	switch {
	case result.RolledBack:
		o.notifier.Notify(notify.Event{
			Type:     notify.EventRestoreRolledBack,
			ServerID: serverID,
			Subject:  jobID,
			Message:  fmt.Sprintf("restore rolled back; %d services failed", len(result.ServicesFailed)),
		})
	case result.Success:
		o.notifier.Notify(notify.Event{
			Type:     notify.EventRestoreCompleted,
			ServerID: serverID,
			Subject:  jobID,
			Message:  fmt.Sprintf("restored %d services", len(result.ServicesRestored)),
		})
	default:
		o.notifier.Notify(notify.Event{
			Type:     notify.EventRestoreFailed,
			ServerID: serverID,
			Subject:  jobID,
			Message:  strings.Join(result.Errors, "; "),
		})
	}
}

func (o *RestoreOrchestrator) run(ctx context.Context, job *models.RestoreJob, backup *models.Backup,
	userID string, opts RestoreOptions, trail *auditTrail) (*RestoreResult, error) {

	// Step 1: validate before any remote side effect.
	if err := o.restores.SetPhase(job.ID, models.RestorePreparing, "validating backup", 5); err != nil {
		return nil, err
	}

	var server *models.Server
	err := trail.run("validate_backup", func() (string, map[string]any, error) {
		var err error
		server, err = o.servers.Get(backup.ServerID)
		if err != nil {
			return "", nil, &ValidationError{Reason: err.Error()}
		}
		if server.OwnerID != userID {
			return "", nil, &ValidationError{Reason: "backup does not belong to requesting user"}
		}
		if backup.Status != models.BackupCompleted {
			return "", nil, &ValidationError{Reason: fmt.Sprintf("backup is %s, not completed", backup.Status)}
		}
		return "backup validated", map[string]any{"backup_id": backup.ID}, nil
	})
	if err != nil {
		return nil, err
	}

	// Step 2: integrity check, still purely local.
	if opts.VerifyIntegrity {
		if err := o.restores.SetPhase(job.ID, models.RestoreVerifying, "verifying backup integrity", 10); err != nil {
			return nil, err
		}
		err = trail.run("verify_integrity", func() (string, map[string]any, error) {
			if err := verifyBackupFile(backup); err != nil {
				return "", nil, err
			}
			return "integrity verified", map[string]any{"size_bytes": backup.SizeBytes}, nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		trail.skip("verify_integrity", "integrity verification not requested")
	}

	// Step 3: connect.
	var session remote.Session
	err = trail.run("connect", func() (string, map[string]any, error) {
		var err error
		session, err = o.dialer.Dial(ctx, server)
		if err != nil {
			return "", nil, err
		}
		return "connected to " + server.Host, nil, nil
	})
	if err != nil {
		return nil, err
	}
	defer session.Close()

	// Step 4: resolve the services to restore from the latest scan.
	stagingDir := "/tmp/backstead-restore-" + job.ID
	var plan []ServiceBackupConfig
	err = trail.run("resolve_services", func() (string, map[string]any, error) {
		scan, err := o.scans.LatestCompleted(server.ID)
		if err != nil {
			return "", nil, &ValidationError{Reason: err.Error()}
		}
		services, err := o.scans.Services(scan.ID)
		if err != nil {
			return "", nil, err
		}
		services = filterServices(services, opts.SelectedServices)
		if len(services) == 0 {
			return "", nil, &ValidationError{Reason: "no services matched the restore request"}
		}
		plan = BuildPlan(services, stagingDir)
		return fmt.Sprintf("%d services selected", len(plan)), map[string]any{"services": planNames(plan)}, nil
	})
	if err != nil {
		return nil, err
	}

	// Step 5: rollback snapshot, best effort per service.
	rollbackDir := "/tmp/backstead-rollback-" + job.ID
	snapshots := make(map[string]bool)
	if opts.CreateRollbackPoint {
		if err := o.restores.SetPhase(job.ID, models.RestorePreparing, "creating rollback snapshot", 20); err != nil {
			return nil, err
		}
		trail.run("create_rollback_snapshot", func() (string, map[string]any, error) {
			if _, err := execValidated(session, "mkdir -p "+rollbackDir); err != nil {
				return "", nil, err
			}
			for _, cfg := range plan {
				if len(cfg.DataPaths) == 0 {
					continue
				}
				cmd := "tar -czf " + rollbackDir + "/" + cfg.Name + "-rollback.tar.gz " + strings.Join(cfg.DataPaths, " ")
				if _, err := execValidated(session, cmd); err != nil {
					logging.L().Warn("rollback_snapshot_failed",
						"restore_job_id", job.ID, "service", cfg.Name, "error", err)
					continue
				}
				snapshots[cfg.Name] = true
			}
			if len(snapshots) == 0 {
				return "", nil, fmt.Errorf("no rollback snapshots could be created")
			}
			if err := o.restores.SetRollbackPath(job.ID, rollbackDir); err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("snapshotted %d services", len(snapshots)),
				map[string]any{"rollback_path": rollbackDir}, nil
		})
		// A failed snapshot only disables the rollback option later.
	} else {
		trail.skip("create_rollback_snapshot", "rollback point not requested")
	}

	// Step 6: stop services, dependents first (reverse list order).
	if err := o.restores.SetPhase(job.ID, models.RestoreStoppingServices, "stopping services", 35); err != nil {
		return nil, err
	}
	var stopped []string
	trail.run("stop_services", func() (string, map[string]any, error) {
		stopped = o.stopServices(session, plan, job.ID)
		return fmt.Sprintf("stopped %d services", len(stopped)), map[string]any{"stopped": stopped}, nil
	})

	// Step 7: restore data.
	if err := o.restores.SetPhase(job.ID, models.RestoreRestoring, "restoring data", 50); err != nil {
		return nil, err
	}

	defer func() {
		// Staging is cleaned up regardless of outcome.
		if _, err := execValidated(session, "rm -rf "+stagingDir); err != nil {
			logging.L().Warn("restore_staging_cleanup_failed", "restore_job_id", job.ID, "error", err)
		}
	}()

	outcome := &Outcome{}
	extractionFailed := false

	err = trail.run("extract_archive", func() (string, map[string]any, error) {
		if _, err := execValidated(session, "mkdir -p "+stagingDir); err != nil {
			return "", nil, err
		}
		remoteArchive := stagingDir + "/backup.tar.gz"
		if err := session.Upload(backup.FilePath, remoteArchive); err != nil {
			return "", nil, fmt.Errorf("failed to upload backup archive: %w", err)
		}
		if _, err := execValidated(session, "tar -xzf "+remoteArchive+" -C "+stagingDir); err != nil {
			return "", nil, fmt.Errorf("failed to extract backup archive: %w", err)
		}
		return "archive staged", map[string]any{"staging": stagingDir}, nil
	})
	if err != nil {
		// Extraction is a structural prerequisite; the data phase is
		// aborted, but restart and outcome evaluation still run.
		extractionFailed = true
		outcome.Note("extract_archive", err)
	}

	if !extractionFailed {
		for _, cfg := range plan {
			stepName := "restore_" + cfg.Name
			rerr := trail.run(stepName, func() (string, map[string]any, error) {
				if cfg.RestoreCommand == "" {
					return "", nil, fmt.Errorf("no restore command for service")
				}
				if _, err := execValidated(session, cfg.RestoreCommand); err != nil {
					return "", nil, err
				}
				return "service data restored", nil, nil
			})
			if rerr != nil {
				outcome.Fail(cfg.Name, rerr)
			} else {
				outcome.Succeed(cfg.Name)
			}
			// Persist progress mid-run so it is observable before the end.
			if err := o.restores.SetServices(job.ID, outcome.Succeeded(), outcome.Failed()); err != nil {
				logging.L().Error("restore_progress_persist_error", "restore_job_id", job.ID, "error", err)
			}
		}
	}

	// Step 8: restart in forward order.
	if err := o.restores.SetPhase(job.ID, models.RestoreRestartingServices, "restarting services", 80); err != nil {
		return nil, err
	}
	trail.run("restart_services", func() (string, map[string]any, error) {
		details := o.restartServices(session, plan, stopped, opts.SkipHealthChecks, job.ID)
		return fmt.Sprintf("restarted %d services", len(details["restarted"].([]string))), details, nil
	})

	// Step 9: decide the outcome.
	result := &RestoreResult{
		RestoreJobID:     job.ID,
		ServicesRestored: outcome.Succeeded(),
		ServicesFailed:   outcome.Failed(),
		Errors:           outcome.Errors(),
	}

	restoreFailed := extractionFailed || len(outcome.Failed()) > 0
	switch {
	case !restoreFailed:
		result.Success = true
		if err := o.restores.Finish(job.ID, models.RestoreCompleted); err != nil {
			return nil, err
		}
	case opts.CreateRollbackPoint && len(snapshots) > 0:
		rbErr := trail.run("rollback", func() (string, map[string]any, error) {
			return o.rollback(session, plan, snapshots, rollbackDir, opts.SkipHealthChecks, job.ID)
		})
		if rbErr != nil {
			if err := o.restores.Finish(job.ID, models.RestoreFailed); err != nil {
				return nil, err
			}
		} else {
			result.RolledBack = true
			if err := o.restores.Finish(job.ID, models.RestoreRolledBack); err != nil {
				return nil, err
			}
		}
	default:
		if err := o.restores.Finish(job.ID, models.RestoreFailed); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// stopServices stops shutdown-requiring services in reverse list order and
// returns the names actually stopped. Hot services stay up; their restore
// commands need the daemon running.
func (o *RestoreOrchestrator) stopServices(session remote.Session, plan []ServiceBackupConfig, jobID string) []string {
	var stopped []string
	for _, cfg := range Reverse(plan) {
		if !cfg.RequiresShutdown {
			continue
		}
		if _, err := execValidated(session, cfg.StopCommand); err != nil {
			logging.L().Warn("restore_stop_failed", "restore_job_id", jobID, "service", cfg.Name, "error", err)
			continue
		}
		stopped = append(stopped, cfg.Name)
	}
	return stopped
}

// restartServices starts previously stopped services in forward order,
// polling health where a check exists. Health timeouts are recorded but
// the service still counts as restarted.
func (o *RestoreOrchestrator) restartServices(session remote.Session, plan []ServiceBackupConfig,
	stopped []string, skipHealthChecks bool, jobID string) map[string]any {

	wasStopped := make(map[string]bool, len(stopped))
	for _, name := range stopped {
		wasStopped[name] = true
	}

	var restarted []string
	var healthTimeouts []string
	for _, cfg := range plan {
		if !wasStopped[cfg.Name] {
			continue
		}
		if _, err := execValidated(session, cfg.StartCommand); err != nil {
			logging.L().Warn("restore_restart_failed", "restore_job_id", jobID, "service", cfg.Name, "error", err)
			continue
		}
		restarted = append(restarted, cfg.Name)

		if skipHealthChecks || cfg.HealthCheck == "" {
			continue
		}
		if err := pollHealth(session, cfg.Name, cfg.HealthCheck, o.sleep); err != nil {
			logging.L().Warn("restore_health_timeout", "restore_job_id", jobID, "service", cfg.Name, "error", err)
			healthTimeouts = append(healthTimeouts, cfg.Name)
		}
	}

	details := map[string]any{"restarted": restarted}
	if len(healthTimeouts) > 0 {
		details["health_timeouts"] = healthTimeouts
	}
	return details
}

// rollback reverts every snapshotted service to its pre-restore data.
func (o *RestoreOrchestrator) rollback(session remote.Session, plan []ServiceBackupConfig,
	snapshots map[string]bool, rollbackDir string, skipHealthChecks bool, jobID string) (string, map[string]any, error) {

	stopped := o.stopServices(session, plan, jobID)

	var reverted []string
	for _, cfg := range plan {
		if !snapshots[cfg.Name] {
			continue
		}
		cmd := "tar -xzf " + rollbackDir + "/" + cfg.Name + "-rollback.tar.gz -C /"
		if _, err := execValidated(session, cmd); err != nil {
			return "", map[string]any{"reverted": reverted},
				fmt.Errorf("failed to revert %s: %w", cfg.Name, err)
		}
		reverted = append(reverted, cfg.Name)
	}

	o.restartServices(session, plan, stopped, skipHealthChecks, jobID)

	if _, err := execValidated(session, "rm -rf "+rollbackDir); err != nil {
		logging.L().Warn("rollback_cleanup_failed", "restore_job_id", jobID, "error", err)
	}

	return fmt.Sprintf("reverted %d services", len(reverted)), map[string]any{"reverted": reverted}, nil
}

// verifyBackupFile checks existence, recorded size and readability of the
// first kilobyte.
func verifyBackupFile(backup *models.Backup) error {
	info, err := os.Stat(backup.FilePath)
	if err != nil {
		return &IntegrityError{BackupID: backup.ID, Reason: "backup file missing: " + backup.FilePath}
	}
	if info.Size() != backup.SizeBytes {
		return &IntegrityError{
			BackupID: backup.ID,
			Reason:   fmt.Sprintf("size mismatch: recorded %d bytes, on disk %d bytes", backup.SizeBytes, info.Size()),
		}
	}

	f, err := os.Open(backup.FilePath)
	if err != nil {
		return &IntegrityError{BackupID: backup.ID, Reason: "backup file unreadable"}
	}
	defer f.Close()

	buf := make([]byte, 1024)
	if _, err := f.Read(buf); err != nil {
		return &IntegrityError{BackupID: backup.ID, Reason: "failed to read backup header"}
	}
	return nil
}

func planNames(plan []ServiceBackupConfig) []string {
	names := make([]string, len(plan))
	for i, cfg := range plan {
		names[i] = cfg.Name
	}
	return names
}
