package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/backstead/backstead/internal/models"
)

// BackupStore persists backup records. Terminal status transitions happen
// exactly once; the orchestrator owns the lifecycle.
type BackupStore struct {
	db *sql.DB
}

func NewBackupStore(db *sql.DB) *BackupStore {
	return &BackupStore{db: db}
}

func (s *BackupStore) Create(backup *models.Backup) error {
	if backup.ID == "" {
		backup.ID = "backup-" + uuid.New().String()[:8]
	}
	if backup.Status == "" {
		backup.Status = models.BackupPending
	}
	backup.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO backups (id, server_id, backup_type, status, metadata, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, backup.ID, backup.ServerID, backup.Type, string(backup.Status),
		marshalJSON(backup.Metadata), backup.CreatedBy, backup.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert backup: %w", err)
	}
	return nil
}

// MarkRunning stamps the start of execution.
func (s *BackupStore) MarkRunning(id string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		UPDATE backups SET status = ?, started_at = ? WHERE id = ?
	`, string(models.BackupRunning), now, id)
	if err != nil {
		return fmt.Errorf("failed to mark backup running: %w", err)
	}
	return nil
}

// MarkCompleted records the archive produced by a successful run.
func (s *BackupStore) MarkCompleted(id, filePath string, sizeBytes int64, metadata map[string]any) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		UPDATE backups SET status = ?, file_path = ?, size_bytes = ?, metadata = ?, completed_at = ?
		WHERE id = ?
	`, string(models.BackupCompleted), filePath, sizeBytes, marshalJSON(metadata), now, id)
	if err != nil {
		return fmt.Errorf("failed to mark backup completed: %w", err)
	}
	return nil
}

func (s *BackupStore) MarkFailed(id, message string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		UPDATE backups SET status = ?, error_message = ?, completed_at = ? WHERE id = ?
	`, string(models.BackupFailed), message, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark backup failed: %w", err)
	}
	return nil
}

func (s *BackupStore) Get(id string) (*models.Backup, error) {
	row := s.db.QueryRow(`
		SELECT id, server_id, backup_type, status, file_path, size_bytes, started_at,
		       completed_at, metadata, error_message, created_by, created_at
		FROM backups WHERE id = ?
	`, id)
	return scanBackup(row)
}

func (s *BackupStore) ListByServer(serverID string) ([]*models.Backup, error) {
	rows, err := s.db.Query(`
		SELECT id, server_id, backup_type, status, file_path, size_bytes, started_at,
		       completed_at, metadata, error_message, created_by, created_at
		FROM backups WHERE server_id = ? ORDER BY created_at DESC
	`, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	var backups []*models.Backup
	for rows.Next() {
		backup, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		backups = append(backups, backup)
	}
	return backups, rows.Err()
}

// LatestCompleted returns the newest completed backup for a server, or an
// error when the server has no completed backup yet.
func (s *BackupStore) LatestCompleted(serverID string) (*models.Backup, error) {
	row := s.db.QueryRow(`
		SELECT id, server_id, backup_type, status, file_path, size_bytes, started_at,
		       completed_at, metadata, error_message, created_by, created_at
		FROM backups WHERE server_id = ? AND status = 'completed'
		ORDER BY completed_at DESC LIMIT 1
	`, serverID)
	return scanBackup(row)
}

func scanBackup(row rowScanner) (*models.Backup, error) {
	var (
		backup      models.Backup
		status      string
		startedAt   sql.NullTime
		completedAt sql.NullTime
		metadata    string
	)

	err := row.Scan(&backup.ID, &backup.ServerID, &backup.Type, &status, &backup.FilePath,
		&backup.SizeBytes, &startedAt, &completedAt, &metadata, &backup.ErrorMessage,
		&backup.CreatedBy, &backup.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("backup not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan backup: %w", err)
	}

	backup.Status = models.BackupStatus(status)
	if startedAt.Valid {
		backup.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		backup.CompletedAt = &completedAt.Time
	}
	unmarshalJSON(metadata, &backup.Metadata)
	return &backup, nil
}
