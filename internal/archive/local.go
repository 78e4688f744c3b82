package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/backstead/backstead/internal/logging"
)

// LocalDestination copies archives into a second directory, typically on
// another disk or a network mount.
type LocalDestination struct {
	basePath string
}

func NewLocalDestination(basePath string) *LocalDestination {
	return &LocalDestination{basePath: basePath}
}

func (d *LocalDestination) Store(localPath, key string) error {
	target := filepath.Join(d.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	if err := copyFile(localPath, target); err != nil {
		return err
	}

	logging.L().Debug("archive_stored", "destination", "local", "key", key)
	return nil
}

func (d *LocalDestination) Retrieve(key, localPath string) error {
	source := filepath.Join(d.basePath, filepath.FromSlash(key))
	return copyFile(source, localPath)
}

func (d *LocalDestination) Delete(key string) error {
	target := filepath.Join(d.basePath, filepath.FromSlash(key))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return nil
}

func (d *LocalDestination) Type() string { return "local" }

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create target: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to copy archive: %w", err)
	}
	return out.Sync()
}
