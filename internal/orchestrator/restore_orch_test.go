package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/notify"
	"github.com/backstead/backstead/internal/remote"
)

// completedBackup writes a real archive file and marks the backup row
// completed against it, so the integrity check has something to verify.
func (f *orchFixture) completedBackup(t *testing.T) *models.Backup {
	t.Helper()

	backup := f.newBackup(t)
	path := filepath.Join(t.TempDir(), backup.ID+".tar.gz")
	payload := []byte("archived-backup-bytes")
	if err := os.WriteFile(path, payload, 0644); err != nil {
		t.Fatalf("failed to write archive: %v", err)
	}
	if err := f.stores.Backups.MarkCompleted(backup.ID, path, int64(len(payload)), nil); err != nil {
		t.Fatalf("failed to mark backup completed: %v", err)
	}

	stored, err := f.stores.Backups.Get(backup.ID)
	if err != nil {
		t.Fatalf("failed to reload backup: %v", err)
	}
	return stored
}

func newRestoreOrchestrator(f *orchFixture, session remote.Session) *RestoreOrchestrator {
	orch := NewRestoreOrchestrator(&remote.MockDialer{Session: session},
		f.stores.Servers, f.stores.Scans, f.stores.Backups, f.stores.Restores, f.recorder)
	orch.sleep = func(time.Duration) {}
	return orch
}

func TestRestoreOrchestrateSuccess(t *testing.T) {
	f := newOrchFixture(t)
	backup := f.completedBackup(t)

	session := &remote.MockSession{}
	orch := newRestoreOrchestrator(f, session)

	result, err := orch.Orchestrate(context.Background(), backup.ID, f.server.OwnerID, RestoreOptions{
		RestoreType:     "full",
		VerifyIntegrity: true,
	})
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}
	if !result.Success || result.RolledBack {
		t.Fatalf("result = %+v", result)
	}
	if len(result.ServicesRestored) != 3 {
		t.Errorf("ServicesRestored = %v", result.ServicesRestored)
	}

	job, err := f.stores.Restores.Get(result.RestoreJobID)
	if err != nil {
		t.Fatalf("failed to load job: %v", err)
	}
	if job.Status != models.RestoreCompleted {
		t.Errorf("Status = %q", job.Status)
	}
	if job.Progress != 100 {
		t.Errorf("Progress = %d", job.Progress)
	}

	commands := session.CommandLog()

	// Hot database is never stopped during a restore; its dump replay
	// needs the daemon up.
	if indexOfCommand(commands, "stop mysql") >= 0 {
		t.Error("database must not be stopped during restore")
	}

	// The archive lands in staging before any per-service restore.
	extract := indexOfCommand(commands, "tar -xzf /tmp/backstead-restore-")
	replay := indexOfCommand(commands, "mysql -e")
	if extract < 0 || replay < 0 || extract > replay {
		t.Errorf("extract at %d, replay at %d", extract, replay)
	}

	if len(session.Uploads) != 1 {
		t.Errorf("Uploads = %v", session.Uploads)
	}

	trail, err := f.stores.Restores.AuditTrail(job.ID)
	if err != nil {
		t.Fatalf("AuditTrail failed: %v", err)
	}
	if len(trail) == 0 {
		t.Fatal("expected audit rows")
	}
	for i, entry := range trail {
		if entry.StepNumber != i+1 {
			t.Fatalf("trail[%d].StepNumber = %d, want %d (no gaps)", i, entry.StepNumber, i+1)
		}
	}
	if trail[0].StepName != "validate_backup" || trail[0].Status != models.AuditCompleted {
		t.Errorf("trail[0] = %+v", trail[0])
	}

	// Rollback was not requested, so its action appears as skipped rather
	// than leaving a hole in the numbering.
	found := false
	for _, entry := range trail {
		if entry.StepName == "create_rollback_snapshot" {
			found = true
			if entry.Status != models.AuditSkipped {
				t.Errorf("create_rollback_snapshot status = %q, want skipped", entry.Status)
			}
		}
	}
	if !found {
		t.Error("skipped action missing from audit trail")
	}

	types := f.recorder.Types()
	if len(types) != 1 || types[0] != notify.EventRestoreCompleted {
		t.Errorf("events = %v", types)
	}
}

func TestRestoreRollbackOnFailure(t *testing.T) {
	f := newOrchFixture(t)
	backup := f.completedBackup(t)

	session := &remote.MockSession{
		Handlers: map[string]func(string) (*remote.Result, error){
			"mysql -e": func(string) (*remote.Result, error) {
				return &remote.Result{ExitCode: 1, Stderr: "ERROR 1064"},
					&remote.CommandError{Command: "mysql", ExitCode: 1, Stderr: "ERROR 1064"}
			},
		},
	}
	orch := newRestoreOrchestrator(f, session)

	result, err := orch.Orchestrate(context.Background(), backup.ID, f.server.OwnerID, RestoreOptions{
		RestoreType:         "full",
		CreateRollbackPoint: true,
	})
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if !result.RolledBack {
		t.Fatalf("expected rollback, result = %+v", result)
	}
	if len(result.ServicesFailed) != 1 || result.ServicesFailed[0] != "mysql" {
		t.Errorf("ServicesFailed = %v", result.ServicesFailed)
	}

	job, _ := f.stores.Restores.Get(result.RestoreJobID)
	if job.Status != models.RestoreRolledBack {
		t.Errorf("Status = %q", job.Status)
	}
	if job.RollbackPath == "" {
		t.Error("RollbackPath not recorded")
	}

	commands := session.CommandLog()
	if indexOfCommand(commands, "-rollback.tar.gz -C /") < 0 {
		t.Error("rollback archives never replayed")
	}

	types := f.recorder.Types()
	if len(types) != 1 || types[0] != notify.EventRestoreRolledBack {
		t.Errorf("events = %v", types)
	}
}

func TestRestoreFailureWithoutRollbackPoint(t *testing.T) {
	f := newOrchFixture(t)
	backup := f.completedBackup(t)

	session := &remote.MockSession{
		Handlers: map[string]func(string) (*remote.Result, error){
			"mysql -e": func(string) (*remote.Result, error) {
				return nil, &remote.CommandError{Command: "mysql", ExitCode: 1}
			},
		},
	}
	orch := newRestoreOrchestrator(f, session)

	result, err := orch.Orchestrate(context.Background(), backup.ID, f.server.OwnerID, RestoreOptions{})
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}
	if result.Success || result.RolledBack {
		t.Fatalf("result = %+v", result)
	}

	job, _ := f.stores.Restores.Get(result.RestoreJobID)
	if job.Status != models.RestoreFailed {
		t.Errorf("Status = %q", job.Status)
	}
}

func TestRestoreRejectsForeignBackup(t *testing.T) {
	f := newOrchFixture(t)
	backup := f.completedBackup(t)

	session := &remote.MockSession{}
	orch := newRestoreOrchestrator(f, session)

	result, err := orch.Orchestrate(context.Background(), backup.ID, "user-intruder", RestoreOptions{})
	if err == nil {
		t.Fatal("expected ownership validation to fail")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("error = %T %v", err, err)
	}

	if len(session.CommandLog()) != 0 {
		t.Errorf("no remote command may run: %v", session.CommandLog())
	}

	job, _ := f.stores.Restores.Get(result.RestoreJobID)
	if job.Status != models.RestoreFailed {
		t.Errorf("Status = %q", job.Status)
	}

	trail, _ := f.stores.Restores.AuditTrail(job.ID)
	if len(trail) != 1 || trail[0].StepName != "validate_backup" || trail[0].Status != models.AuditFailed {
		t.Errorf("trail = %+v", trail)
	}
}

func TestRestoreRejectsIncompleteBackup(t *testing.T) {
	f := newOrchFixture(t)
	backup := f.newBackup(t) // still pending

	session := &remote.MockSession{}
	orch := newRestoreOrchestrator(f, session)

	_, err := orch.Orchestrate(context.Background(), backup.ID, f.server.OwnerID, RestoreOptions{})
	if err == nil {
		t.Fatal("expected validation to reject a pending backup")
	}
	if len(session.CommandLog()) != 0 {
		t.Error("no remote command may run before validation")
	}
}

func TestRestoreIntegrityMismatchAborts(t *testing.T) {
	f := newOrchFixture(t)
	backup := f.completedBackup(t)

	// Corrupt the recorded size.
	if err := f.stores.Backups.MarkCompleted(backup.ID, backup.FilePath, backup.SizeBytes+1, nil); err != nil {
		t.Fatalf("failed to tamper with backup row: %v", err)
	}

	session := &remote.MockSession{}
	orch := newRestoreOrchestrator(f, session)

	result, err := orch.Orchestrate(context.Background(), backup.ID, f.server.OwnerID, RestoreOptions{
		VerifyIntegrity: true,
	})
	if err == nil {
		t.Fatal("expected integrity failure")
	}
	var ierr *IntegrityError
	if !errors.As(err, &ierr) {
		t.Errorf("error = %T %v", err, err)
	}
	if len(session.CommandLog()) != 0 {
		t.Error("integrity failure must abort before any remote command")
	}
	if result != nil && len(result.ServicesRestored) != 0 {
		t.Errorf("ServicesRestored = %v", result.ServicesRestored)
	}
}

func TestRestoreHealthTimeoutDoesNotFlipVerdict(t *testing.T) {
	f := newOrchFixture(t)
	backup := f.completedBackup(t)

	session := &remote.MockSession{
		Handlers: map[string]func(string) (*remote.Result, error){
			"systemctl is-active nginx": func(string) (*remote.Result, error) {
				return &remote.Result{Stdout: "activating", ExitCode: 3}, nil
			},
		},
	}
	orch := newRestoreOrchestrator(f, session)

	result, err := orch.Orchestrate(context.Background(), backup.ID, f.server.OwnerID, RestoreOptions{})
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("health timeout must not fail the restore: %+v", result)
	}

	job, _ := f.stores.Restores.Get(result.RestoreJobID)
	if job.Status != models.RestoreCompleted {
		t.Errorf("Status = %q", job.Status)
	}

	// The timeout is recorded in the restart step's details.
	trail, _ := f.stores.Restores.AuditTrail(job.ID)
	var restart *models.RestoreAuditEntry
	for i := range trail {
		if trail[i].StepName == "restart_services" {
			restart = &trail[i]
		}
	}
	if restart == nil {
		t.Fatal("restart_services row missing")
	}
	timeouts, ok := restart.Details["health_timeouts"].([]any)
	if !ok || len(timeouts) != 1 {
		t.Errorf("health_timeouts = %v", restart.Details["health_timeouts"])
	}
}
