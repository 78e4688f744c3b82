package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/backstead/backstead/internal/models"
)

// RestoreStore persists restore jobs and their append-only audit trail.
// Jobs are never deleted; failed history stays queryable.
type RestoreStore struct {
	db *sql.DB
}

func NewRestoreStore(db *sql.DB) *RestoreStore {
	return &RestoreStore{db: db}
}

func (s *RestoreStore) Create(job *models.RestoreJob) error {
	if job.ID == "" {
		job.ID = "restore-" + uuid.New().String()[:8]
	}
	if job.Status == "" {
		job.Status = models.RestorePending
	}
	if job.RestoreType == "" {
		job.RestoreType = "full"
	}
	job.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO restore_jobs (id, backup_id, server_id, requested_by, restore_type,
		                          status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.BackupID, job.ServerID, job.RequestedBy, job.RestoreType,
		string(job.Status), job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert restore job: %w", err)
	}
	return nil
}

// SetPhase records a state transition together with the human-readable
// current step and percent progress.
func (s *RestoreStore) SetPhase(id string, status models.RestoreStatus, currentStep string, progress int) error {
	_, err := s.db.Exec(`
		UPDATE restore_jobs SET status = ?, current_step = ?, progress = ? WHERE id = ?
	`, string(status), currentStep, progress, id)
	if err != nil {
		return fmt.Errorf("failed to update restore phase: %w", err)
	}
	return nil
}

// SetServices persists per-service restore bookkeeping mid-run so progress
// survives a crash of the engine itself.
func (s *RestoreStore) SetServices(id string, restored, failed []string) error {
	_, err := s.db.Exec(`
		UPDATE restore_jobs SET services_restored = ?, services_failed = ? WHERE id = ?
	`, marshalJSON(restored), marshalJSON(failed), id)
	if err != nil {
		return fmt.Errorf("failed to update restore services: %w", err)
	}
	return nil
}

func (s *RestoreStore) SetRollbackPath(id, path string) error {
	_, err := s.db.Exec(`UPDATE restore_jobs SET rollback_path = ? WHERE id = ?`, path, id)
	if err != nil {
		return fmt.Errorf("failed to update rollback path: %w", err)
	}
	return nil
}

// Finish stamps the terminal status exactly once.
func (s *RestoreStore) Finish(id string, status models.RestoreStatus) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		UPDATE restore_jobs SET status = ?, completed_at = ?, progress = 100 WHERE id = ?
	`, string(status), now, id)
	if err != nil {
		return fmt.Errorf("failed to finish restore job: %w", err)
	}
	return nil
}

func (s *RestoreStore) Get(id string) (*models.RestoreJob, error) {
	row := s.db.QueryRow(`
		SELECT id, backup_id, server_id, requested_by, restore_type, status, current_step,
		       progress, services_restored, services_failed, rollback_path, created_at, completed_at
		FROM restore_jobs WHERE id = ?
	`, id)
	return scanRestoreJob(row)
}

func (s *RestoreStore) ListByServer(serverID string) ([]*models.RestoreJob, error) {
	rows, err := s.db.Query(`
		SELECT id, backup_id, server_id, requested_by, restore_type, status, current_step,
		       progress, services_restored, services_failed, rollback_path, created_at, completed_at
		FROM restore_jobs WHERE server_id = ? ORDER BY created_at DESC
	`, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list restore jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.RestoreJob
	for rows.Next() {
		job, err := scanRestoreJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// AppendAudit writes one audit row. The step number must have been issued
// by the orchestrator's step counter; rows are never updated or deleted.
func (s *RestoreStore) AppendAudit(entry *models.RestoreAuditEntry) error {
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now().UTC()
	}

	res, err := s.db.Exec(`
		INSERT INTO restore_audit_log (restore_job_id, step_number, step_name, status,
		                               message, details, started_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.RestoreJobID, entry.StepNumber, entry.StepName, string(entry.Status),
		entry.Message, marshalJSON(entry.Details), entry.StartedAt, entry.CompletedAt, entry.DurationMS)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// AuditTrail returns the full audit log of a job in step order.
func (s *RestoreStore) AuditTrail(jobID string) ([]models.RestoreAuditEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, restore_job_id, step_number, step_name, status, message, details,
		       started_at, completed_at, duration_ms
		FROM restore_audit_log WHERE restore_job_id = ? ORDER BY step_number
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer rows.Close()

	var entries []models.RestoreAuditEntry
	for rows.Next() {
		var (
			entry       models.RestoreAuditEntry
			status      string
			details     string
			completedAt sql.NullTime
		)
		if err := rows.Scan(&entry.ID, &entry.RestoreJobID, &entry.StepNumber, &entry.StepName,
			&status, &entry.Message, &details, &entry.StartedAt, &completedAt,
			&entry.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		entry.Status = models.AuditStatus(status)
		if completedAt.Valid {
			entry.CompletedAt = &completedAt.Time
		}
		unmarshalJSON(details, &entry.Details)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanRestoreJob(row rowScanner) (*models.RestoreJob, error) {
	var (
		job              models.RestoreJob
		status           string
		servicesRestored string
		servicesFailed   string
		completedAt      sql.NullTime
	)

	err := row.Scan(&job.ID, &job.BackupID, &job.ServerID, &job.RequestedBy, &job.RestoreType,
		&status, &job.CurrentStep, &job.Progress, &servicesRestored, &servicesFailed,
		&job.RollbackPath, &job.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("restore job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan restore job: %w", err)
	}

	job.Status = models.RestoreStatus(status)
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	unmarshalJSON(servicesRestored, &job.ServicesRestored)
	unmarshalJSON(servicesFailed, &job.ServicesFailed)
	return &job, nil
}
