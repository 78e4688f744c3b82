package models

import "time"

// AuthMethod identifies how we authenticate against a remote server.
type AuthMethod string

const (
	AuthPassword AuthMethod = "password"
	AuthKey      AuthMethod = "key"
)

// Server is a remote host managed by the orchestration engine. A server row
// is treated as immutable for the duration of a single orchestration run.
type Server struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Host                string     `json:"host"`
	Port                int        `json:"port"`
	Username            string     `json:"username"`
	AuthMethod          AuthMethod `json:"auth_method"`
	EncryptedCredential []byte     `json:"-"`
	Online              bool       `json:"online"`
	OwnerID             string     `json:"owner_id"`
	LastCheckedAt       *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Scan lifecycle.
type ScanType string

const (
	ScanFull   ScanType = "full"
	ScanQuick  ScanType = "quick"
	ScanCustom ScanType = "custom"
)

type ScanStatus string

const (
	ScanPending   ScanStatus = "pending"
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
)

// Scan is one discovery pass over a server. Its services, filesystems and
// recommendations are immutable once Status is completed.
type Scan struct {
	ID           string     `json:"id"`
	ServerID     string     `json:"server_id"`
	Type         ScanType   `json:"type"`
	Status       ScanStatus `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMS   int64      `json:"duration_ms"`
	Summary      string     `json:"summary"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// ServiceType is the management channel a service was discovered through.
type ServiceType string

const (
	ServiceSystemd  ServiceType = "systemd"
	ServiceDocker   ServiceType = "docker"
	ServiceDatabase ServiceType = "database"
)

// DetectedService is a running service found by the scanner.
type DetectedService struct {
	ID          string            `json:"id"`
	ScanID      string            `json:"scan_id"`
	Name        string            `json:"name"`
	Type        ServiceType       `json:"type"`
	Status      string            `json:"status"`
	PID         int               `json:"pid,omitempty"`
	Ports       []int             `json:"ports,omitempty"`
	ConfigPaths []string          `json:"config_paths,omitempty"`
	DataPaths   []string          `json:"data_paths,omitempty"`
	LogPaths    []string          `json:"log_paths,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	Priority    int               `json:"priority"`
	Strategy    string            `json:"strategy"`
	Profile     ServiceProfile    `json:"profile"`
}

// DetectedFilesystem is a mounted filesystem found by the scanner.
type DetectedFilesystem struct {
	ID                string   `json:"id"`
	ScanID            string   `json:"scan_id"`
	MountPoint        string   `json:"mount_point"`
	Device            string   `json:"device"`
	FSType            string   `json:"fs_type"`
	TotalBytes        int64    `json:"total_bytes"`
	UsedBytes         int64    `json:"used_bytes"`
	AvailableBytes    int64    `json:"available_bytes"`
	UsagePercent      int      `json:"usage_percent"`
	IsSystem          bool     `json:"is_system"`
	ContainsData      bool     `json:"contains_data"`
	BackupRecommended bool     `json:"backup_recommended"`
	Priority          int      `json:"priority"`
	EstimatedBytes    int64    `json:"estimated_compressed_bytes"`
	ExcludePatterns   []string `json:"exclude_patterns,omitempty"`
}

// BackupRecommendation is derived from scan output, never scanned directly.
type BackupRecommendation struct {
	ID             string   `json:"id"`
	ScanID         string   `json:"scan_id"`
	Type           string   `json:"type"`
	Source         string   `json:"source"`
	Priority       int      `json:"priority"`
	IncludePaths   []string `json:"include_paths"`
	ExcludePaths   []string `json:"exclude_paths,omitempty"`
	EstimatedBytes int64    `json:"estimated_bytes"`
	Frequency      string   `json:"frequency"`
	Retention      string   `json:"retention"`
	Method         string   `json:"method"`
}

// Backup lifecycle. Terminal status is set exactly once.
type BackupStatus string

const (
	BackupPending   BackupStatus = "pending"
	BackupRunning   BackupStatus = "running"
	BackupCompleted BackupStatus = "completed"
	BackupFailed    BackupStatus = "failed"
)

type Backup struct {
	ID           string         `json:"id"`
	ServerID     string         `json:"server_id"`
	Type         string         `json:"type"`
	Status       BackupStatus   `json:"status"`
	FilePath     string         `json:"file_path,omitempty"`
	SizeBytes    int64          `json:"size_bytes"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedBy    string         `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
}

// RestoreJob state machine.
type RestoreStatus string

const (
	RestorePending            RestoreStatus = "pending"
	RestorePreparing          RestoreStatus = "preparing"
	RestoreVerifying          RestoreStatus = "verifying"
	RestoreStoppingServices   RestoreStatus = "stopping_services"
	RestoreRestoring          RestoreStatus = "restoring"
	RestoreRestartingServices RestoreStatus = "restarting_services"
	RestoreCompleted          RestoreStatus = "completed"
	RestoreFailed             RestoreStatus = "failed"
	RestoreRolledBack         RestoreStatus = "rolled_back"
)

// RestoreJob is mutated exclusively by the restore orchestrator and never
// deleted; history accumulates in the audit log.
type RestoreJob struct {
	ID               string        `json:"id"`
	BackupID         string        `json:"backup_id"`
	ServerID         string        `json:"server_id"`
	RequestedBy      string        `json:"requested_by"`
	RestoreType      string        `json:"restore_type"`
	Status           RestoreStatus `json:"status"`
	CurrentStep      string        `json:"current_step,omitempty"`
	Progress         int           `json:"progress"`
	ServicesRestored []string      `json:"services_restored"`
	ServicesFailed   []string      `json:"services_failed"`
	RollbackPath     string        `json:"rollback_path,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// Audit log entry status.
type AuditStatus string

const (
	AuditStarted   AuditStatus = "started"
	AuditCompleted AuditStatus = "completed"
	AuditFailed    AuditStatus = "failed"
	AuditSkipped   AuditStatus = "skipped"
)

// RestoreAuditEntry is one row of the append-only restore audit trail.
// Step numbers are strictly increasing from 1 within a job.
type RestoreAuditEntry struct {
	ID           int64          `json:"id"`
	RestoreJobID string         `json:"restore_job_id"`
	StepNumber   int            `json:"step_number"`
	StepName     string         `json:"step_name"`
	Status       AuditStatus    `json:"status"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	DurationMS   int64          `json:"duration_ms"`
}

// BackupSchedule recurrence.
type ScheduleType string

const (
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
)

type BackupSchedule struct {
	ID          string       `json:"id"`
	ServerID    string       `json:"server_id"`
	Type        ScheduleType `json:"type"`
	Hour        int          `json:"hour"`
	DayOfWeek   *int         `json:"day_of_week,omitempty"`
	DayOfMonth  *int         `json:"day_of_month,omitempty"`
	SourcePaths []string     `json:"source_paths"`
	Destination string       `json:"destination"`
	Compression bool         `json:"compression"`
	Encryption  bool         `json:"encryption"`
	Enabled     bool         `json:"enabled"`
	NextRun     *time.Time   `json:"next_run,omitempty"`
	LastRun     *time.Time   `json:"last_run,omitempty"`
	LastStatus  string       `json:"last_status,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// User is a minimal account row; ownership checks and API auth resolve
// against it. Full identity management lives outside this system.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}
