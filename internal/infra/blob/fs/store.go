// Package fs stores blobs as files under a root directory. Each blob has a
// JSON sidecar named <file>.meta holding its attributes and sha256 digest.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"batchcore/internal/blob/core"
)

const (
	sidecarExt  = ".meta"
	defaultRoot = "./blobdata"
)

// Store is rooted at a directory created on demand.
type Store struct {
	root string
}

// New returns a store rooted at root (defaultRoot when empty).
func New(root string) (*Store, error) {
	if root == "" {
		root = defaultRoot
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// Root returns the directory holding the blobs.
func (s *Store) Root() string { return s.root }

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Digest      string            `json:"sha256"`
	Size        int64             `json:"size"`
	WrittenAt   time.Time         `json:"written_at"`
}

func (m sidecar) info(key string) core.Info {
	return core.Info{
		Key:          key,
		Size:         m.Size,
		ContentType:  m.ContentType,
		ETag:         m.Digest,
		Metadata:     core.CloneMetadata(m.Metadata),
		LastModified: m.WrittenAt,
	}
}

func (s *Store) resolve(key string) (string, error) {
	if err := core.ValidateKey(key); err != nil {
		return "", err
	}
	if strings.HasSuffix(key, sidecarExt) {
		return "", fmt.Errorf("%w: %q uses the reserved %s suffix", core.ErrInvalidKey, key, sidecarExt)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Put writes r to a temporary file, renames it into place and then records
// the sidecar. Existing keys are rejected.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if err := ctx.Err(); err != nil {
		return core.Info{}, err
	}
	file, err := s.resolve(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Stat(file); err == nil {
		return core.Info{}, core.Exists(key)
	}
	size, digest, err := writeAtomic(file, r)
	if err != nil {
		return core.Info{}, fmt.Errorf("write blob %s: %w", key, err)
	}
	meta := sidecar{
		ContentType: opts.ContentType,
		Metadata:    core.CloneMetadata(opts.Metadata),
		Digest:      digest,
		Size:        size,
		WrittenAt:   time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return core.Info{}, err
	}
	if err := os.WriteFile(file+sidecarExt, raw, 0o644); err != nil {
		return core.Info{}, fmt.Errorf("write sidecar %s: %w", key, err)
	}
	return meta.info(key), nil
}

func writeAtomic(file string, r io.Reader) (int64, string, error) {
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, "", err
	}
	if err := os.Rename(tmp.Name(), file); err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// Get opens the blob content; the caller closes the reader.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	file, err := s.resolve(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	meta, err := readSidecar(file + sidecarExt)
	if err != nil {
		return core.Info{}, nil, mapMissing(key, err)
	}
	f, err := os.Open(file)
	if err != nil {
		return core.Info{}, nil, mapMissing(key, err)
	}
	return meta.info(key), f, nil
}

func (s *Store) Stat(_ context.Context, key string) (core.Info, error) {
	file, err := s.resolve(key)
	if err != nil {
		return core.Info{}, err
	}
	meta, err := readSidecar(file + sidecarExt)
	if err != nil {
		return core.Info{}, mapMissing(key, err)
	}
	return meta.info(key), nil
}

// Delete removes the blob and then its sidecar.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	file, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(file); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := os.Remove(file + sidecarExt); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return true, err
	}
	return true, nil
}

// List walks the root and reports every sidecar whose key has prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var out []core.Info
	walk := func(p string, d iofs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, sidecarExt) {
			return err
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(p, sidecarExt))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		meta, err := readSidecar(p)
		if err != nil {
			return fmt.Errorf("read sidecar %s: %w", key, err)
		}
		out = append(out, meta.info(key))
		return nil
	}
	if err := filepath.WalkDir(s.root, walk); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func mapMissing(key string, err error) error {
	if errors.Is(err, iofs.ErrNotExist) {
		return core.NotFound(key)
	}
	return err
}

func readSidecar(p string) (sidecar, error) {
	raw, err := os.ReadFile(p)
	if err != nil {
		return sidecar{}, err
	}
	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		return sidecar{}, fmt.Errorf("decode %s: %w", filepath.Base(p), err)
	}
	return meta, nil
}
