package remote

import (
	"context"
	"time"

	"github.com/backstead/backstead/internal/models"
)

// Result holds the outcome of one remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Session is an authenticated channel to one remote host. A session is
// owned exclusively by the orchestration run that opened it and must be
// closed by that run regardless of outcome. Commands execute sequentially;
// a Session is not safe for concurrent use.
type Session interface {
	// Exec runs a command with the session's default per-command timeout.
	// A non-zero exit returns both the Result and a *CommandError.
	Exec(command string) (*Result, error)

	// ExecWithTimeout runs a command with an explicit timeout.
	ExecWithTimeout(command string, timeout time.Duration) (*Result, error)

	// Upload copies a local file to the remote host.
	Upload(localPath, remotePath string) error

	// Download copies a remote file to the local filesystem.
	Download(remotePath, localPath string) error

	Close() error
}

// Dialer opens sessions to managed servers. The SSH implementation decrypts
// the stored credential at dial time; plaintext credentials never outlive
// the dial call.
type Dialer interface {
	Dial(ctx context.Context, server *models.Server) (Session, error)
}
