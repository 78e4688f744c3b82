package archive

import (
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"

	"github.com/backstead/backstead/internal/config"
	"github.com/backstead/backstead/internal/logging"
)

// SFTPDestination stores archives on a remote SFTP host. The connection is
// opened lazily per operation; archive copies are infrequent enough that a
// held-open connection would mostly sit idle and go stale.
type SFTPDestination struct {
	cfg config.SFTPDestConfig
}

func NewSFTPDestination(cfg config.SFTPDestConfig) (*SFTPDestination, error) {
	if cfg.Host == "" || cfg.Username == "" {
		return nil, fmt.Errorf("sftp destination requires host and username")
	}
	if cfg.KeyPath == "" {
		return nil, fmt.Errorf("sftp destination requires a key path")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	return &SFTPDestination{cfg: cfg}, nil
}

func (d *SFTPDestination) connect() (*xssh.Client, *sftp.Client, error) {
	keyData, err := os.ReadFile(d.cfg.KeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read SSH key: %w", err)
	}

	signer, err := xssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse SSH key: %w", err)
	}

	sshConfig := &xssh.ClientConfig{
		User:            d.cfg.Username,
		Auth:            []xssh.AuthMethod{xssh.PublicKeys(signer)},
		HostKeyCallback: xssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", d.cfg.Host, d.cfg.Port)
	sshClient, err := xssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to SFTP host: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshClient,
		sftp.MaxPacketUnchecked(131072),
		sftp.UseConcurrentWrites(true),
	)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}

	return sshClient, sftpClient, nil
}

func (d *SFTPDestination) Store(localPath, key string) error {
	sshClient, client, err := d.connect()
	if err != nil {
		return err
	}
	defer sshClient.Close()
	defer client.Close()

	target := path.Join(d.cfg.BasePath, key)
	if err := client.MkdirAll(path.Dir(target)); err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer src.Close()

	dst, err := client.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	logging.L().Debug("archive_stored", "destination", "sftp", "host", d.cfg.Host, "key", key)
	return nil
}

func (d *SFTPDestination) Retrieve(key, localPath string) error {
	sshClient, client, err := d.connect()
	if err != nil {
		return err
	}
	defer sshClient.Close()
	defer client.Close()

	src, err := client.Open(path.Join(d.cfg.BasePath, key))
	if err != nil {
		return fmt.Errorf("failed to open remote archive: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("failed to download archive: %w", err)
	}
	return nil
}

func (d *SFTPDestination) Delete(key string) error {
	sshClient, client, err := d.connect()
	if err != nil {
		return err
	}
	defer sshClient.Close()
	defer client.Close()

	if err := client.Remove(path.Join(d.cfg.BasePath, key)); err != nil {
		return fmt.Errorf("failed to delete remote archive: %w", err)
	}
	return nil
}

func (d *SFTPDestination) Type() string { return "sftp" }
