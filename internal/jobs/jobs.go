package jobs

import (
	"context"
	"fmt"

	"github.com/backstead/backstead/internal/logging"
	"github.com/backstead/backstead/internal/orchestrator"
	"github.com/backstead/backstead/internal/queue"
	"github.com/backstead/backstead/internal/scanner"
	"github.com/backstead/backstead/internal/store"
)

// Queue job types. The scheduler submits TypeBackup; the API submits all
// three.
const (
	TypeScan    = "scan"
	TypeBackup  = "backup"
	TypeRestore = "restore"
)

// Register binds the background job handlers to the queue. The database
// rows referenced by each payload are created by the submitter before the
// job is enqueued; a worker that finds the row missing fails the job in
// the log only.
func Register(
	q *queue.Memory,
	scan *scanner.Scanner,
	backups *orchestrator.BackupOrchestrator,
	restores *orchestrator.RestoreOrchestrator,
	servers *store.ServerStore,
	scanStore *store.ScanStore,
	restoreStore *store.RestoreStore,
) {
	q.Register(TypeScan, func(ctx context.Context, job queue.Job) {
		serverID := stringField(job.Payload, "server_id")
		scanID := stringField(job.Payload, "scan_id")

		server, err := servers.Get(serverID)
		if err != nil {
			logging.L().Error("scan_job_server_missing", "job_id", job.ID, "server_id", serverID, "error", err)
			failScan(scanStore, scanID, fmt.Sprintf("server %s not found", serverID))
			return
		}
		row, err := scanStore.Get(scanID)
		if err != nil {
			logging.L().Error("scan_job_row_missing", "job_id", job.ID, "scan_id", scanID, "error", err)
			return
		}

		if _, err := scan.Execute(ctx, server, row); err != nil {
			logging.L().Error("scan_job_failed", "job_id", job.ID, "scan_id", scanID, "error", err)
		}
	})

	q.Register(TypeBackup, func(ctx context.Context, job queue.Job) {
		backupID := stringField(job.Payload, "backup_id")
		selected := stringSlice(job.Payload, "services")

		if _, err := backups.Orchestrate(ctx, backupID, selected); err != nil {
			logging.L().Error("backup_job_failed", "job_id", job.ID, "backup_id", backupID, "error", err)
		}
	})

	q.Register(TypeRestore, func(ctx context.Context, job queue.Job) {
		jobID := stringField(job.Payload, "restore_job_id")

		row, err := restoreStore.Get(jobID)
		if err != nil {
			logging.L().Error("restore_job_row_missing", "job_id", job.ID, "restore_job_id", jobID, "error", err)
			return
		}

		opts, _ := job.Payload["options"].(orchestrator.RestoreOptions)
		if _, err := restores.Execute(ctx, row, opts); err != nil {
			logging.L().Error("restore_job_failed", "job_id", job.ID, "restore_job_id", jobID, "error", err)
		}
	})
}

func failScan(scans *store.ScanStore, scanID, message string) {
	if scanID == "" {
		return
	}
	if err := scans.Fail(scanID, message); err != nil {
		logging.L().Error("scan_job_fail_persist_error", "scan_id", scanID, "error", err)
	}
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func stringSlice(payload map[string]any, key string) []string {
	s, _ := payload[key].([]string)
	return s
}
