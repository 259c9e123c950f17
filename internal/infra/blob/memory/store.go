// Package memory keeps blobs in process memory. Tests and the memory blob
// driver use it.
package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"batchcore/internal/blob/core"
)

type object struct {
	info core.Info
	data []byte
}

// Store is a map of keys to immutable objects.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	clock   func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		objects: make(map[string]object),
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put copies r into a new object. Existing keys are rejected.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if err := ctx.Err(); err != nil {
		return core.Info{}, err
	}
	if err := core.ValidateKey(key); err != nil {
		return core.Info{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok {
		return core.Info{}, core.Exists(key)
	}
	obj := object{
		info: core.Info{
			Key:          key,
			Size:         int64(len(data)),
			ContentType:  opts.ContentType,
			Metadata:     core.CloneMetadata(opts.Metadata),
			LastModified: s.clock(),
		},
		data: data,
	}
	s.objects[key] = obj
	return obj.snapshot(), nil
}

func (s *Store) lookup(key string) (object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return object{}, core.NotFound(key)
	}
	return obj, nil
}

// Get returns a reader over a copy of the object content.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	return obj.snapshot(), io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

func (s *Store) Stat(_ context.Context, key string) (core.Info, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, err
	}
	return obj.snapshot(), nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	out := make([]core.Info, 0, len(s.objects))
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.snapshot())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (o object) snapshot() core.Info {
	info := o.info
	info.Metadata = core.CloneMetadata(info.Metadata)
	return info
}
