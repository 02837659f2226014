// Package storage defines the object store that user exports are archived to.
//
// Backends register themselves with the factory from an init function in their own
// package; cmd/server blank-imports every backend it ships:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return New(&cfg.Storage.MyBackend)
//	    })
//	}
package storage

import (
	"context"
	"errors"
	"io"
	"path"
)

// ErrNotFound is returned by Download when no object exists at the path
var ErrNotFound = errors.New("object not found")

// Storage is an object store addressed by slash-separated paths
type Storage interface {
	// Upload stores the contents of reader at path, replacing any existing object
	Upload(ctx context.Context, path string, reader io.Reader, size int64) (*UploadResult, error)

	// Download opens the object at path. The caller closes the reader.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the object at path. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
}

// UploadResult describes a stored object
type UploadResult struct {
	Path string
	Size int64
	// Checksum is the hex SHA256 of the stored bytes
	Checksum string
}

// ContentType reports the media type for an archived object by extension
func ContentType(name string) string {
	switch path.Ext(name) {
	case ".csv":
		return "text/csv"
	case ".asc":
		return "application/pgp-signature"
	default:
		return "text/plain; charset=utf-8"
	}
}
