package archive

import (
	"fmt"

	"github.com/backstead/backstead/internal/config"
)

// Destination is a secondary copy target for completed backup archives.
// The local backup directory is always the primary; a destination is an
// off-box safety copy.
type Destination interface {
	// Store copies a local file to the destination under key.
	Store(localPath, key string) error

	// Retrieve copies the object at key back to a local file.
	Retrieve(key, localPath string) error

	// Delete removes the object at key.
	Delete(key string) error

	// Type returns the destination type identifier.
	Type() string
}

// New builds the configured destination, or nil when none is configured.
func New(cfg config.ArchiveConfig) (Destination, error) {
	switch cfg.Destination {
	case "":
		return nil, nil
	case "local":
		return NewLocalDestination(cfg.Local.Path), nil
	case "sftp":
		return NewSFTPDestination(cfg.SFTP)
	case "s3":
		return NewS3Destination(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown archive destination: %s", cfg.Destination)
	}
}
