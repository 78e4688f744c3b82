package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/backstead/backstead/internal/models"
)

// ScheduleStore provides CRUD for backup schedules. Multiple schedules per
// server are allowed.
type ScheduleStore struct {
	db *sql.DB
}

func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

func (s *ScheduleStore) Create(schedule *models.BackupSchedule) error {
	if schedule.ID == "" {
		schedule.ID = "sched-" + uuid.New().String()[:8]
	}

	now := time.Now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO backup_schedules (id, server_id, schedule_type, hour, day_of_week,
		                              day_of_month, source_paths, destination, compression,
		                              encryption, enabled, next_run, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, schedule.ID, schedule.ServerID, string(schedule.Type), schedule.Hour,
		schedule.DayOfWeek, schedule.DayOfMonth, marshalJSON(schedule.SourcePaths),
		schedule.Destination, schedule.Compression, schedule.Encryption, schedule.Enabled,
		schedule.NextRun, schedule.CreatedAt, schedule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

func (s *ScheduleStore) Update(schedule *models.BackupSchedule) error {
	schedule.UpdatedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		UPDATE backup_schedules
		SET schedule_type = ?, hour = ?, day_of_week = ?, day_of_month = ?, source_paths = ?,
		    destination = ?, compression = ?, encryption = ?, enabled = ?, next_run = ?,
		    updated_at = ?
		WHERE id = ?
	`, string(schedule.Type), schedule.Hour, schedule.DayOfWeek, schedule.DayOfMonth,
		marshalJSON(schedule.SourcePaths), schedule.Destination, schedule.Compression,
		schedule.Encryption, schedule.Enabled, schedule.NextRun, schedule.UpdatedAt, schedule.ID)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return nil
}

// SetNextRun stamps when the schedule will next fire. A nil nextRun
// clears the column for a disarmed schedule.
func (s *ScheduleStore) SetNextRun(id string, nextRun *time.Time) error {
	var value any
	if nextRun != nil {
		value = nextRun.UTC()
	}
	_, err := s.db.Exec(`
		UPDATE backup_schedules SET next_run = ?, updated_at = ? WHERE id = ?
	`, value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set schedule next run: %w", err)
	}
	return nil
}

// RecordRun stamps the outcome of a trigger and the recomputed next run.
func (s *ScheduleStore) RecordRun(id string, ranAt time.Time, status string, nextRun time.Time) error {
	_, err := s.db.Exec(`
		UPDATE backup_schedules SET last_run = ?, last_status = ?, next_run = ?, updated_at = ?
		WHERE id = ?
	`, ranAt.UTC(), status, nextRun.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record schedule run: %w", err)
	}
	return nil
}

func (s *ScheduleStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM backup_schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return nil
}

func (s *ScheduleStore) Get(id string) (*models.BackupSchedule, error) {
	row := s.db.QueryRow(`
		SELECT id, server_id, schedule_type, hour, day_of_week, day_of_month, source_paths,
		       destination, compression, encryption, enabled, next_run, last_run, last_status,
		       created_at, updated_at
		FROM backup_schedules WHERE id = ?
	`, id)
	return scanSchedule(row)
}

func (s *ScheduleStore) List() ([]*models.BackupSchedule, error) {
	return s.list(`
		SELECT id, server_id, schedule_type, hour, day_of_week, day_of_month, source_paths,
		       destination, compression, encryption, enabled, next_run, last_run, last_status,
		       created_at, updated_at
		FROM backup_schedules ORDER BY created_at
	`)
}

// ListEnabled returns every schedule that should be armed in the scheduler.
func (s *ScheduleStore) ListEnabled() ([]*models.BackupSchedule, error) {
	return s.list(`
		SELECT id, server_id, schedule_type, hour, day_of_week, day_of_month, source_paths,
		       destination, compression, encryption, enabled, next_run, last_run, last_status,
		       created_at, updated_at
		FROM backup_schedules WHERE enabled = 1 ORDER BY created_at
	`)
}

func (s *ScheduleStore) ListByServer(serverID string) ([]*models.BackupSchedule, error) {
	return s.list(`
		SELECT id, server_id, schedule_type, hour, day_of_week, day_of_month, source_paths,
		       destination, compression, encryption, enabled, next_run, last_run, last_status,
		       created_at, updated_at
		FROM backup_schedules WHERE server_id = ? ORDER BY created_at
	`, serverID)
}

func (s *ScheduleStore) list(query string, args ...any) ([]*models.BackupSchedule, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.BackupSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

func scanSchedule(row rowScanner) (*models.BackupSchedule, error) {
	var (
		schedule     models.BackupSchedule
		scheduleType string
		dayOfWeek    sql.NullInt64
		dayOfMonth   sql.NullInt64
		sourcePaths  string
		nextRun      sql.NullTime
		lastRun      sql.NullTime
		lastStatus   sql.NullString
	)

	err := row.Scan(&schedule.ID, &schedule.ServerID, &scheduleType, &schedule.Hour,
		&dayOfWeek, &dayOfMonth, &sourcePaths, &schedule.Destination, &schedule.Compression,
		&schedule.Encryption, &schedule.Enabled, &nextRun, &lastRun, &lastStatus,
		&schedule.CreatedAt, &schedule.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("schedule not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	schedule.Type = models.ScheduleType(scheduleType)
	if dayOfWeek.Valid {
		v := int(dayOfWeek.Int64)
		schedule.DayOfWeek = &v
	}
	if dayOfMonth.Valid {
		v := int(dayOfMonth.Int64)
		schedule.DayOfMonth = &v
	}
	if nextRun.Valid {
		schedule.NextRun = &nextRun.Time
	}
	if lastRun.Valid {
		schedule.LastRun = &lastRun.Time
	}
	if lastStatus.Valid {
		schedule.LastStatus = lastStatus.String
	}
	unmarshalJSON(sourcePaths, &schedule.SourcePaths)
	return &schedule, nil
}
