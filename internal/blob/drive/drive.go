// Package drive stores blobs in a Google Drive folder using resumable
// media uploads.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gdrive "google.golang.org/api/drive/v3"

	"spendly/internal/blob"
	"spendly/internal/googleauth"
	"spendly/internal/log"
)

const (
	pathProperty = "spendlyPath"
	chunkSize    = 256 * 1024
)

// Store keeps objects as files in one Drive folder. The blob path is kept
// in an app property so lookups don't depend on file names.
type Store struct {
	svc      *gdrive.Service
	folderID string
	logger   *log.Logger
}

var _ blob.Store = (*Store)(nil)

// New builds a store from resolved credentials.
func New(ctx context.Context, creds googleauth.Credentials, folderID string, logger *log.Logger) (*Store, error) {
	opts, err := creds.ClientOptions(ctx, gdrive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("drive credentials: %w", err)
	}
	return NewWithOptions(ctx, folderID, logger, opts...)
}

// NewWithOptions builds a store from raw client options.
func NewWithOptions(ctx context.Context, folderID string, logger *log.Logger, opts ...option.ClientOption) (*Store, error) {
	svc, err := gdrive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{svc: svc, folderID: folderID, logger: logger.WithComponent(log.ComponentBlob)}, nil
}

func (s *Store) Upload(ctx context.Context, p string, r io.Reader, size int64, contentType string) *blob.UploadTask {
	return blob.StartUpload(ctx, size, func(ctx context.Context, report func(int64)) error {
		file := &gdrive.File{
			Name:          path.Base(p),
			MimeType:      contentType,
			AppProperties: map[string]string{pathProperty: p},
		}
		if s.folderID != "" {
			file.Parents = []string{s.folderID}
		}

		created, err := s.svc.Files.Create(file).
			Media(r, googleapi.ChunkSize(chunkSize), googleapi.ContentType(contentType)).
			ProgressUpdater(func(current, _ int64) { report(current) }).
			Fields("id").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("drive upload %s: %w", p, err)
		}

		// anyone with the link may read, as profile photos are public
		_, err = s.svc.Permissions.Create(created.Id, &gdrive.Permission{Type: "anyone", Role: "reader"}).
			Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("drive share %s: %w", p, err)
		}

		s.logger.InfoContext(ctx, "Blob uploaded", log.FieldBlobPath, p, "file_id", created.Id)
		return nil
	})
}

func (s *Store) find(ctx context.Context, p string) (*gdrive.File, error) {
	q := fmt.Sprintf("appProperties has { key='%s' and value='%s' } and trashed = false",
		pathProperty, escapeQuery(p))
	res, err := s.svc.Files.List().Q(q).Fields("files(id, webContentLink)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("drive lookup %s: %w", p, err)
	}
	if len(res.Files) == 0 {
		return nil, blob.ErrNotFound
	}
	return res.Files[0], nil
}

func (s *Store) DownloadURL(ctx context.Context, p string) (string, error) {
	f, err := s.find(ctx, p)
	if err != nil {
		return "", err
	}
	return f.WebContentLink, nil
}

func (s *Store) Delete(ctx context.Context, p string) error {
	f, err := s.find(ctx, p)
	if errors.Is(err, blob.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.svc.Files.Delete(f.Id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("drive delete %s: %w", p, err)
	}
	return nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
