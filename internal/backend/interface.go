package backend

import (
	"errors"
	"net/http"

	"spendly/internal/amqp"
	"spendly/internal/blob"
	"spendly/internal/docstore"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result bundles the collaborators of the API server.
type Result struct {
	Docs  docstore.Store
	Blobs blob.Store
	// Files serves locally stored blobs. Nil for remote blob stores.
	Files http.Handler
	// FilesPrefix is the URL path Files expects to be mounted under.
	FilesPrefix string
	// Publisher is nil when no broker is configured.
	Publisher *amqp.Client

	cleanups []CleanupFunc
}

func (r *Result) addCleanup(fn CleanupFunc) {
	r.cleanups = append(r.cleanups, fn)
}

// Close releases every resource in reverse creation order.
func (r *Result) Close() error {
	var errs []error
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		if err := r.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.cleanups = nil
	return errors.Join(errs...)
}

// BackendType represents the type of document store backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// BlobType selects the blob store.
type BlobType string

const (
	LocalBlobs BlobType = "local"
	DriveBlobs BlobType = "drive"
)

func (bt BlobType) IsValid() bool {
	return bt == LocalBlobs || bt == DriveBlobs
}
