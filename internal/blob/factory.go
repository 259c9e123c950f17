package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	fsstore "batchcore/internal/infra/blob/fs"
	memorystore "batchcore/internal/infra/blob/memory"
	s3store "batchcore/internal/infra/blob/s3"
)

// S3Config configures the s3 driver.
type S3Config = s3store.Config

// Config selects and configures a blob driver.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open constructs the store selected by cfg. The default driver is fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		s, err := fsstore.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverS3:
		s, err := s3store.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// Replace writes data under key, deleting any previous blob first.
func Replace(ctx context.Context, s Store, key string, data []byte, opts PutOptions) (Info, error) {
	if _, err := s.Delete(ctx, key); err != nil {
		return Info{}, fmt.Errorf("replace %s: %w", key, err)
	}
	return s.Put(ctx, key, bytes.NewReader(data), opts)
}

// ReadAll returns the full content of key.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	_, rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	if cerr := rc.Close(); err == nil {
		err = cerr
	}
	return data, err
}

// IsNotFound reports whether err marks a missing key.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
