// Package blob is the durable object store that mirrors crosswalk
// artifacts, with a Google Cloud Storage backend and a local directory
// backend.
package blob

import (
	"context"

	"github.com/rotisserie/eris"
)

// Sentinel errors.
var (
	ErrNotFound = eris.New("blob: object not found")
	ErrExists   = eris.New("blob: object already exists")
)

// Store is the durable object interface.
type Store interface {
	// Has reports whether key exists.
	Has(ctx context.Context, key string) (bool, error)
	// Upload copies a local file to key. With overwrite false an existing
	// object is left alone and ErrExists is returned.
	Upload(ctx context.Context, localPath, key string, overwrite bool) error
	// Download copies key to a local file, replacing it atomically.
	Download(ctx context.Context, key, localPath string) error
}

// Config selects and configures a backend.
type Config struct {
	Provider        string `yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=gcs file none"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	Dir             string `yaml:"dir" mapstructure:"dir"`
}

// Open returns the configured backend, or nil when the provider is "none"
// or empty.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "gcs":
		return NewGCS(ctx, cfg)
	case "file":
		if cfg.Dir == "" {
			return nil, eris.New("blob: file provider requires blob.dir")
		}
		return NewDir(cfg.Dir, cfg.Prefix), nil
	default:
		return nil, eris.Errorf("blob: unknown provider %q", cfg.Provider)
	}
}

func objectKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix + key
	}
	return prefix + "/" + key
}
