// Package blob defines the blob store port used for profile photos.
package blob

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

var (
	ErrNotFound = errors.New("blob: object not found")
	ErrCanceled = errors.New("blob: upload canceled")
)

// Store uploads and serves binary objects addressed by slash-separated paths.
type Store interface {
	// Upload starts a resumable upload and returns immediately.
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) *UploadTask
	// DownloadURL returns a URL the object can be fetched from.
	DownloadURL(ctx context.Context, path string) (string, error)
	Delete(ctx context.Context, path string) error
}

// Progress of an upload. TotalBytes is 0 when unknown.
type Progress struct {
	BytesTransferred int64 `json:"bytesTransferred"`
	TotalBytes       int64 `json:"totalBytes"`
}

// UploadFunc performs the transfer, calling report with the running total.
type UploadFunc func(ctx context.Context, report func(transferred int64)) error

// UploadTask tracks an upload running on its own goroutine.
type UploadTask struct {
	total       int64
	transferred atomic.Int64
	cancel      context.CancelFunc
	done        chan struct{}

	mu  sync.Mutex
	err error
}

// StartUpload runs fn in the background. Adapters build their tasks with it.
func StartUpload(ctx context.Context, total int64, fn UploadFunc) *UploadTask {
	ctx, cancel := context.WithCancel(ctx)
	t := &UploadTask{total: total, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		err := fn(ctx, func(n int64) { t.transferred.Store(n) })
		if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
			err = ErrCanceled
		}
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
	}()
	return t
}

// Failed returns a task that has already finished with err.
func Failed(err error) *UploadTask {
	t := &UploadTask{cancel: func() {}, done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *UploadTask) Progress() Progress {
	return Progress{BytesTransferred: t.transferred.Load(), TotalBytes: t.total}
}

// Wait blocks until the upload finishes or ctx is done.
func (t *UploadTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the upload finishes.
func (t *UploadTask) Done() <-chan struct{} { return t.done }

// Cancel aborts the upload. Wait then returns ErrCanceled.
func (t *UploadTask) Cancel() { t.cancel() }
