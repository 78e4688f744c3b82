package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/backstead/backstead/internal/remote"
)

func noSleep(time.Duration) {}

func TestPollHealthSucceedsFirstTry(t *testing.T) {
	session := &remote.MockSession{}

	if err := pollHealth(session, "nginx", "systemctl is-active nginx", noSleep); err != nil {
		t.Fatalf("pollHealth failed: %v", err)
	}
	if got := len(session.CommandLog()); got != 1 {
		t.Errorf("commands run = %d, want 1", got)
	}
}

func TestPollHealthExhaustsAttempts(t *testing.T) {
	session := &remote.MockSession{
		Handlers: map[string]func(string) (*remote.Result, error){
			"systemctl is-active": func(string) (*remote.Result, error) {
				return &remote.Result{ExitCode: 3}, nil
			},
		},
	}

	err := pollHealth(session, "nginx", "systemctl is-active nginx", noSleep)
	var timeoutErr *HealthCheckTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %T %v, want HealthCheckTimeoutError", err, err)
	}
	if timeoutErr.Service != "nginx" || timeoutErr.Attempts != healthAttempts {
		t.Errorf("timeout = %+v", timeoutErr)
	}
	if got := len(session.CommandLog()); got != healthAttempts {
		t.Errorf("commands run = %d, want %d", got, healthAttempts)
	}
}

func TestPollHealthRejectsUnsafeCommand(t *testing.T) {
	session := &remote.MockSession{}

	err := pollHealth(session, "nginx", "systemctl is-active nginx; rm -rf /", noSleep)
	var unsafeErr *remote.UnsafeCommandError
	if !errors.As(err, &unsafeErr) {
		t.Fatalf("error = %T %v, want UnsafeCommandError", err, err)
	}
	if got := len(session.CommandLog()); got != 0 {
		t.Errorf("unsafe command must not reach the session, ran %d", got)
	}
}
