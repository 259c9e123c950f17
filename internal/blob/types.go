// Package blob is the entry point to blob storage. Packages outside the blob
// tree depend on blob.Store and never import the driver implementations.
package blob

import "batchcore/internal/blob/core"

type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Info       = core.Info
	Store      = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory

	// ArchivePrefix is the key prefix of archived pivot drops.
	ArchivePrefix = core.ArchivePrefix
)

var (
	ErrNotFound   = core.ErrNotFound
	ErrExists     = core.ErrExists
	ErrInvalidKey = core.ErrInvalidKey
)

// ArchiveKey returns the key of one archived node of a pivot cycle.
func ArchiveKey(cycle, name string) string { return core.ArchiveKey(cycle, name) }
