package orchestrator

import "fmt"

// IntegrityError means the backup file on disk does not match its record.
// It aborts a restore before any remote mutation.
type IntegrityError struct {
	BackupID string
	Reason   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("backup %s failed integrity check: %s", e.BackupID, e.Reason)
}

// ValidationError means a pre-flight check failed (missing backup, wrong
// owner, non-terminal status). Nothing remote has happened yet.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// HealthCheckTimeoutError means a restarted service never reported healthy
// within the polling budget. The service still counts as restarted.
type HealthCheckTimeoutError struct {
	Service  string
	Attempts int
}

func (e *HealthCheckTimeoutError) Error() string {
	return fmt.Sprintf("service %s not healthy after %d attempts", e.Service, e.Attempts)
}
