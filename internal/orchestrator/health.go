package orchestrator

import (
	"time"

	"github.com/backstead/backstead/internal/remote"
)

const (
	healthAttempts = 12
	healthInterval = 5 * time.Second
)

// pollHealth runs a health-check command until it exits zero or the
// attempt budget runs out. The sleep function is injectable for tests.
// An unsafe command fails immediately instead of burning the attempt
// budget on a check that can never pass.
func pollHealth(session remote.Session, service, command string, sleep func(time.Duration)) error {
	if err := remote.ValidateCommand(command); err != nil {
		return err
	}
	for attempt := 0; attempt < healthAttempts; attempt++ {
		if attempt > 0 {
			sleep(healthInterval)
		}
		res, err := session.Exec(command)
		if err == nil && res.ExitCode == 0 {
			return nil
		}
	}
	return &HealthCheckTimeoutError{Service: service, Attempts: healthAttempts}
}
