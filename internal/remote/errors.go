package remote

import "fmt"

// ConnectionError means the remote host could not be reached or
// authenticated against. It aborts the whole run.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CommandError means a remote command exited non-zero. Per-service command
// failures are collected without aborting sibling services.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command %q exited %d: %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("command %q exited %d", e.Command, e.ExitCode)
}

func (e *CommandError) Unwrap() error { return e.Err }

// UnsafeCommandError means a command failed allow-list or metacharacter
// validation. It is raised before any network call.
type UnsafeCommandError struct {
	Command string
	Reason  string
}

func (e *UnsafeCommandError) Error() string {
	return fmt.Sprintf("unsafe command rejected (%s): %q", e.Reason, e.Command)
}
