// Package core holds the blob contracts implemented by the drivers under
// internal/infra/blob. Schema catalogs and pivot archives are its only tenants.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Driver names a blob backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// ArchivePrefix is the key prefix under which pivot drops are archived.
const ArchivePrefix = "archive/"

// PutOptions carries object attributes written alongside the content.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is implemented by every driver. Put never overwrites an existing key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Stat(ctx context.Context, key string) (Info, error)
	// Delete returns (false, nil) when the key does not exist.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns blobs whose key has prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

var (
	ErrNotFound   = errors.New("blob: not found")
	ErrExists     = errors.New("blob: already exists")
	ErrInvalidKey = errors.New("blob: invalid key")
)

// ValidateKey rejects keys that are empty, absolute, escape their root or
// are not in clean slash form.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("%w: %q is absolute", ErrInvalidKey, key)
	case strings.Contains(key, `\`):
		return fmt.Errorf("%w: %q contains a backslash", ErrInvalidKey, key)
	case path.Clean(key) != key:
		return fmt.Errorf("%w: %q is not clean", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %q escapes the root", ErrInvalidKey, key)
		}
	}
	return nil
}

// ArchiveKey returns the key of one archived node of a pivot cycle.
func ArchiveKey(cycle, name string) string {
	return ArchivePrefix + cycle + "/" + name + ".json"
}

// NotFound wraps ErrNotFound for key.
func NotFound(key string) error { return fmt.Errorf("blob %s: %w", key, ErrNotFound) }

// Exists wraps ErrExists for key.
func Exists(key string) error { return fmt.Errorf("blob %s: %w", key, ErrExists) }

// CloneMetadata copies user metadata so callers cannot alias stored maps.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
