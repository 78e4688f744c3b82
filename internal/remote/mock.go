package remote

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/backstead/backstead/internal/models"
)

// MockSession is a scripted session for tests. Handlers are matched by
// command prefix; unmatched commands return Output/Err.
type MockSession struct {
	Output   string
	Err      error
	Handlers map[string]func(command string) (*Result, error)

	mu        sync.Mutex
	Commands  []string
	Uploads   map[string]string
	Downloads map[string]string
	Closed    bool
}

func (m *MockSession) Exec(command string) (*Result, error) {
	m.mu.Lock()
	m.Commands = append(m.Commands, command)
	m.mu.Unlock()

	if m.Handlers != nil {
		for prefix, handler := range m.Handlers {
			if strings.HasPrefix(command, prefix) {
				return handler(command)
			}
		}
	}

	if m.Err != nil {
		return nil, m.Err
	}
	return &Result{Stdout: m.Output}, nil
}

func (m *MockSession) ExecWithTimeout(command string, _ time.Duration) (*Result, error) {
	return m.Exec(command)
}

func (m *MockSession) Upload(localPath, remotePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Uploads == nil {
		m.Uploads = make(map[string]string)
	}
	m.Uploads[remotePath] = localPath
	return nil
}

func (m *MockSession) Download(remotePath, localPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Downloads == nil {
		m.Downloads = make(map[string]string)
	}
	m.Downloads[remotePath] = localPath
	return nil
}

func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// CommandLog returns a copy of every command executed so far, in order.
func (m *MockSession) CommandLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Commands))
	copy(out, m.Commands)
	return out
}

// MockDialer hands out a fixed session, or an error.
type MockDialer struct {
	Session Session
	Err     error
}

func (d *MockDialer) Dial(_ context.Context, server *models.Server) (Session, error) {
	if d.Err != nil {
		return nil, &ConnectionError{Host: server.Host, Err: d.Err}
	}
	return d.Session, nil
}
