package orchestrator

import (
	"time"

	"github.com/backstead/backstead/internal/logging"
	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/store"
)

// auditTrail issues strictly increasing step numbers for one restore job
// and appends one row per workflow action. Persistence failures are logged;
// the restore itself never aborts over its own audit log.
type auditTrail struct {
	restores *store.RestoreStore
	jobID    string
	step     int
}

func newAuditTrail(restores *store.RestoreStore, jobID string) *auditTrail {
	return &auditTrail{restores: restores, jobID: jobID}
}

func (a *auditTrail) record(name string, status models.AuditStatus, message string,
	details map[string]any, startedAt time.Time) {

	a.step++
	completed := time.Now().UTC()
	entry := &models.RestoreAuditEntry{
		RestoreJobID: a.jobID,
		StepNumber:   a.step,
		StepName:     name,
		Status:       status,
		Message:      message,
		Details:      details,
		StartedAt:    startedAt,
		CompletedAt:  &completed,
		DurationMS:   completed.Sub(startedAt).Milliseconds(),
	}
	if err := a.restores.AppendAudit(entry); err != nil {
		logging.L().Error("restore_audit_append_failed",
			"restore_job_id", a.jobID, "step", name, "error", err)
	}
}

// run executes one workflow action and appends its completed or failed row.
func (a *auditTrail) run(name string, fn func() (string, map[string]any, error)) error {
	started := time.Now().UTC()
	message, details, err := fn()
	if err != nil {
		a.record(name, models.AuditFailed, err.Error(), details, started)
		return err
	}
	a.record(name, models.AuditCompleted, message, details, started)
	return nil
}

func (a *auditTrail) skip(name, reason string) {
	now := time.Now().UTC()
	a.record(name, models.AuditSkipped, reason, nil, now)
}
