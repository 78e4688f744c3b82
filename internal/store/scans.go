package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/backstead/backstead/internal/models"
)

// ScanStore persists scans and their detected services, filesystems and
// recommendations. Child rows are written in one transaction when a scan
// completes; completed scans are never mutated.
type ScanStore struct {
	db *sql.DB
}

func NewScanStore(db *sql.DB) *ScanStore {
	return &ScanStore{db: db}
}

func (s *ScanStore) Create(scan *models.Scan) error {
	if scan.ID == "" {
		scan.ID = "scan-" + uuid.New().String()[:8]
	}
	scan.StartedAt = time.Now().UTC()
	if scan.Status == "" {
		scan.Status = models.ScanPending
	}

	_, err := s.db.Exec(`
		INSERT INTO scans (id, server_id, scan_type, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, scan.ID, scan.ServerID, string(scan.Type), string(scan.Status), scan.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	return nil
}

func (s *ScanStore) SetStatus(id string, status models.ScanStatus) error {
	_, err := s.db.Exec(`UPDATE scans SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update scan status: %w", err)
	}
	return nil
}

// Fail marks a scan failed with its error message.
func (s *ScanStore) Fail(id, message string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		UPDATE scans SET status = ?, error_message = ?, completed_at = ? WHERE id = ?
	`, string(models.ScanFailed), message, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark scan failed: %w", err)
	}
	return nil
}

// Complete writes the scan result and all child rows atomically.
func (s *ScanStore) Complete(scan *models.Scan, services []models.DetectedService,
	filesystems []models.DetectedFilesystem, recs []models.BackupRecommendation) error {

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	scan.CompletedAt = &now
	scan.DurationMS = now.Sub(scan.StartedAt).Milliseconds()
	scan.Status = models.ScanCompleted

	_, err = tx.Exec(`
		UPDATE scans SET status = ?, completed_at = ?, duration_ms = ?, summary = ? WHERE id = ?
	`, string(scan.Status), scan.CompletedAt, scan.DurationMS, scan.Summary, scan.ID)
	if err != nil {
		return fmt.Errorf("failed to update scan: %w", err)
	}

	for i := range services {
		svc := &services[i]
		if svc.ID == "" {
			svc.ID = "svc-" + uuid.New().String()[:8]
		}
		svc.ScanID = scan.ID

		ports := marshalJSON(svc.Ports)
		configPaths := marshalJSON(svc.ConfigPaths)
		dataPaths := marshalJSON(svc.DataPaths)
		logPaths := marshalJSON(svc.LogPaths)
		details := marshalJSON(svc.Details)
		profile := marshalJSON(svc.Profile)

		_, err = tx.Exec(`
			INSERT INTO scan_services (id, scan_id, name, service_type, status, pid, ports,
			                           config_paths, data_paths, log_paths, details, priority,
			                           strategy, profile)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, svc.ID, svc.ScanID, svc.Name, string(svc.Type), svc.Status, svc.PID, ports,
			configPaths, dataPaths, logPaths, details, svc.Priority, svc.Strategy, profile)
		if err != nil {
			return fmt.Errorf("failed to insert scan service: %w", err)
		}
	}

	for i := range filesystems {
		fs := &filesystems[i]
		if fs.ID == "" {
			fs.ID = "fs-" + uuid.New().String()[:8]
		}
		fs.ScanID = scan.ID

		_, err = tx.Exec(`
			INSERT INTO scan_filesystems (id, scan_id, mount_point, device, fs_type, total_bytes,
			                              used_bytes, available_bytes, usage_percent, is_system,
			                              contains_data, backup_recommended, priority,
			                              estimated_compressed_bytes, exclude_patterns)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, fs.ID, fs.ScanID, fs.MountPoint, fs.Device, fs.FSType, fs.TotalBytes, fs.UsedBytes,
			fs.AvailableBytes, fs.UsagePercent, fs.IsSystem, fs.ContainsData,
			fs.BackupRecommended, fs.Priority, fs.EstimatedBytes, marshalJSON(fs.ExcludePatterns))
		if err != nil {
			return fmt.Errorf("failed to insert scan filesystem: %w", err)
		}
	}

	for i := range recs {
		rec := &recs[i]
		if rec.ID == "" {
			rec.ID = "rec-" + uuid.New().String()[:8]
		}
		rec.ScanID = scan.ID

		_, err = tx.Exec(`
			INSERT INTO scan_recommendations (id, scan_id, rec_type, source, priority,
			                                  include_paths, exclude_paths, estimated_bytes,
			                                  frequency, retention, method)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.ScanID, rec.Type, rec.Source, rec.Priority,
			marshalJSON(rec.IncludePaths), marshalJSON(rec.ExcludePaths),
			rec.EstimatedBytes, rec.Frequency, rec.Retention, rec.Method)
		if err != nil {
			return fmt.Errorf("failed to insert recommendation: %w", err)
		}
	}

	return tx.Commit()
}

func (s *ScanStore) Get(id string) (*models.Scan, error) {
	var (
		scan        models.Scan
		scanType    string
		status      string
		completedAt sql.NullTime
	)

	err := s.db.QueryRow(`
		SELECT id, server_id, scan_type, status, started_at, completed_at, duration_ms,
		       summary, error_message
		FROM scans WHERE id = ?
	`, id).Scan(&scan.ID, &scan.ServerID, &scanType, &status, &scan.StartedAt,
		&completedAt, &scan.DurationMS, &scan.Summary, &scan.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scan not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	scan.Type = models.ScanType(scanType)
	scan.Status = models.ScanStatus(status)
	if completedAt.Valid {
		scan.CompletedAt = &completedAt.Time
	}
	return &scan, nil
}

func (s *ScanStore) ListByServer(serverID string) ([]*models.Scan, error) {
	rows, err := s.db.Query(`
		SELECT id, server_id, scan_type, status, started_at, completed_at, duration_ms,
		       summary, error_message
		FROM scans WHERE server_id = ? ORDER BY started_at DESC
	`, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var scans []*models.Scan
	for rows.Next() {
		var (
			scan        models.Scan
			scanType    string
			status      string
			completedAt sql.NullTime
		)
		if err := rows.Scan(&scan.ID, &scan.ServerID, &scanType, &status, &scan.StartedAt,
			&completedAt, &scan.DurationMS, &scan.Summary, &scan.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		scan.Type = models.ScanType(scanType)
		scan.Status = models.ScanStatus(status)
		if completedAt.Valid {
			scan.CompletedAt = &completedAt.Time
		}
		scans = append(scans, &scan)
	}
	return scans, rows.Err()
}

// LatestCompleted returns the newest completed scan for a server, or an
// error when the server has never been scanned successfully.
func (s *ScanStore) LatestCompleted(serverID string) (*models.Scan, error) {
	var id string
	err := s.db.QueryRow(`
		SELECT id FROM scans
		WHERE server_id = ? AND status = 'completed'
		ORDER BY completed_at DESC LIMIT 1
	`, serverID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no completed scan for server %s", serverID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest scan: %w", err)
	}
	return s.Get(id)
}

func (s *ScanStore) Services(scanID string) ([]models.DetectedService, error) {
	rows, err := s.db.Query(`
		SELECT id, scan_id, name, service_type, status, pid, ports, config_paths,
		       data_paths, log_paths, details, priority, strategy, profile
		FROM scan_services WHERE scan_id = ? ORDER BY priority DESC, name
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan services: %w", err)
	}
	defer rows.Close()

	var services []models.DetectedService
	for rows.Next() {
		var (
			svc         models.DetectedService
			serviceType string
			ports       string
			configPaths string
			dataPaths   string
			logPaths    string
			details     string
			profile     string
		)
		if err := rows.Scan(&svc.ID, &svc.ScanID, &svc.Name, &serviceType, &svc.Status,
			&svc.PID, &ports, &configPaths, &dataPaths, &logPaths, &details,
			&svc.Priority, &svc.Strategy, &profile); err != nil {
			return nil, fmt.Errorf("failed to scan service row: %w", err)
		}

		svc.Type = models.ServiceType(serviceType)
		unmarshalJSON(ports, &svc.Ports)
		unmarshalJSON(configPaths, &svc.ConfigPaths)
		unmarshalJSON(dataPaths, &svc.DataPaths)
		unmarshalJSON(logPaths, &svc.LogPaths)
		unmarshalJSON(details, &svc.Details)
		unmarshalJSON(profile, &svc.Profile)
		services = append(services, svc)
	}
	return services, rows.Err()
}

func (s *ScanStore) Filesystems(scanID string) ([]models.DetectedFilesystem, error) {
	rows, err := s.db.Query(`
		SELECT id, scan_id, mount_point, device, fs_type, total_bytes, used_bytes,
		       available_bytes, usage_percent, is_system, contains_data, backup_recommended,
		       priority, estimated_compressed_bytes, exclude_patterns
		FROM scan_filesystems WHERE scan_id = ? ORDER BY mount_point
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan filesystems: %w", err)
	}
	defer rows.Close()

	var filesystems []models.DetectedFilesystem
	for rows.Next() {
		var (
			fs              models.DetectedFilesystem
			excludePatterns string
		)
		if err := rows.Scan(&fs.ID, &fs.ScanID, &fs.MountPoint, &fs.Device, &fs.FSType,
			&fs.TotalBytes, &fs.UsedBytes, &fs.AvailableBytes, &fs.UsagePercent,
			&fs.IsSystem, &fs.ContainsData, &fs.BackupRecommended, &fs.Priority,
			&fs.EstimatedBytes, &excludePatterns); err != nil {
			return nil, fmt.Errorf("failed to scan filesystem row: %w", err)
		}
		unmarshalJSON(excludePatterns, &fs.ExcludePatterns)
		filesystems = append(filesystems, fs)
	}
	return filesystems, rows.Err()
}

func (s *ScanStore) Recommendations(scanID string) ([]models.BackupRecommendation, error) {
	rows, err := s.db.Query(`
		SELECT id, scan_id, rec_type, source, priority, include_paths, exclude_paths,
		       estimated_bytes, frequency, retention, method
		FROM scan_recommendations WHERE scan_id = ? ORDER BY priority DESC
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	defer rows.Close()

	var recs []models.BackupRecommendation
	for rows.Next() {
		var (
			rec          models.BackupRecommendation
			includePaths string
			excludePaths string
		)
		if err := rows.Scan(&rec.ID, &rec.ScanID, &rec.Type, &rec.Source, &rec.Priority,
			&includePaths, &excludePaths, &rec.EstimatedBytes, &rec.Frequency,
			&rec.Retention, &rec.Method); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation row: %w", err)
		}
		unmarshalJSON(includePaths, &rec.IncludePaths)
		unmarshalJSON(excludePaths, &rec.ExcludePaths)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func unmarshalJSON(data string, v any) {
	if data == "" {
		return
	}
	// Best effort; columns default to valid JSON.
	_ = json.Unmarshal([]byte(data), v)
}
