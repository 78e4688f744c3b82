package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/backstead/backstead/internal/crypto"
	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/remote"
)

// Config holds connection settings shared by every dialed session.
type Config struct {
	ConnectTimeout  time.Duration
	CommandTimeout  time.Duration
	KnownHostsPath  string
	TrustOnFirstUse bool
}

// Dialer opens SSH sessions to managed servers, decrypting the stored
// credential at dial time. The plaintext credential is scoped to Dial and
// never logged or retained.
type Dialer struct {
	cfg   Config
	creds *crypto.Manager
}

func NewDialer(cfg Config, creds *crypto.Manager) *Dialer {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 60 * time.Second
	}
	return &Dialer{cfg: cfg, creds: creds}
}

// Dial connects and authenticates to the server. All failures come back as
// *remote.ConnectionError so callers can abort the whole run.
func (d *Dialer) Dial(ctx context.Context, server *models.Server) (remote.Session, error) {
	credential, err := d.creds.Decrypt(server.EncryptedCredential)
	if err != nil {
		return nil, &remote.ConnectionError{Host: server.Host, Err: fmt.Errorf("failed to decrypt credential: %w", err)}
	}

	var authMethod ssh.AuthMethod
	switch server.AuthMethod {
	case models.AuthKey:
		signer, err := ssh.ParsePrivateKey([]byte(credential))
		if err != nil {
			return nil, &remote.ConnectionError{Host: server.Host, Err: fmt.Errorf("unable to parse private key: %w", err)}
		}
		authMethod = ssh.PublicKeys(signer)
	case models.AuthPassword:
		authMethod = ssh.Password(credential)
	default:
		return nil, &remote.ConnectionError{Host: server.Host, Err: fmt.Errorf("unsupported auth method: %s", server.AuthMethod)}
	}

	hostKeyCallback, err := NewHostKeyCallback(d.cfg.KnownHostsPath, d.cfg.TrustOnFirstUse)
	if err != nil {
		return nil, &remote.ConnectionError{Host: server.Host, Err: fmt.Errorf("failed to configure host key verification: %w", err)}
	}

	sshConfig := &ssh.ClientConfig{
		User:            server.Username,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.cfg.ConnectTimeout,
	}

	address := net.JoinHostPort(server.Host, fmt.Sprintf("%d", server.Port))
	netDialer := net.Dialer{Timeout: d.cfg.ConnectTimeout}
	conn, err := netDialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &remote.ConnectionError{Host: server.Host, Err: err}
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, sshConfig)
	if err != nil {
		conn.Close()
		return nil, &remote.ConnectionError{Host: server.Host, Err: err}
	}

	return &session{
		client:  ssh.NewClient(clientConn, chans, reqs),
		timeout: d.cfg.CommandTimeout,
	}, nil
}

// session is one exclusive SSH connection. Commands run sequentially over
// it; interleaving commands from concurrent runs would corrupt ordering
// guarantees, so each run dials its own session.
type session struct {
	client  *ssh.Client
	timeout time.Duration
}

func (s *session) Exec(command string) (*remote.Result, error) {
	return s.ExecWithTimeout(command, s.timeout)
}

func (s *session) ExecWithTimeout(command string, timeout time.Duration) (*remote.Result, error) {
	// Last line of defense. Components validate before dispatch too.
	if err := remote.ValidateCommand(command); err != nil {
		return nil, err
	}

	type execResult struct {
		result *remote.Result
		err    error
	}

	done := make(chan execResult, 1)
	go func() {
		res, err := s.run(command)
		done <- execResult{res, err}
	}()

	select {
	case r := <-done:
		return r.result, r.err
	case <-time.After(timeout):
		return nil, &remote.CommandError{Command: command, ExitCode: -1, Err: fmt.Errorf("timed out after %v", timeout)}
	}
}

func (s *session) run(command string) (*remote.Result, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, &remote.CommandError{Command: command, ExitCode: -1, Err: fmt.Errorf("failed to create session: %w", err)}
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	err = sess.Run(command)
	result := &remote.Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*ssh.ExitError); ok {
			exitCode = exitErr.ExitStatus()
		}
		result.ExitCode = exitCode
		return result, &remote.CommandError{Command: command, ExitCode: exitCode, Stderr: stderr.String(), Err: err}
	}

	return result, nil
}

func (s *session) Upload(localPath, remotePath string) error {
	client, err := sftp.NewClient(s.client,
		sftp.MaxPacketUnchecked(131072),
		sftp.UseConcurrentWrites(true),
	)
	if err != nil {
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}
	defer client.Close()

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer src.Close()

	dst, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to upload %s: %w", localPath, err)
	}
	return nil
}

func (s *session) Download(remotePath, localPath string) error {
	client, err := sftp.NewClient(s.client, sftp.MaxPacketUnchecked(131072))
	if err != nil {
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}
	defer client.Close()

	src, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("failed to download %s: %w", remotePath, err)
	}
	return nil
}

func (s *session) Close() error {
	return s.client.Close()
}
