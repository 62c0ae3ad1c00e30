// Package local stores blobs on the filesystem and serves them over HTTP.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"spendly/internal/blob"
)

const chunkSize = 256 * 1024

// Store keeps objects under Dir. URLs are BaseURL + "/" + path.
type Store struct {
	dir     string
	baseURL string
}

var _ blob.Store = (*Store)(nil)

func New(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *Store) resolve(p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", fmt.Errorf("invalid blob path %q", p)
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

func (s *Store) Upload(ctx context.Context, p string, r io.Reader, size int64, _ string) *blob.UploadTask {
	dst, err := s.resolve(p)
	if err != nil {
		return blob.Failed(err)
	}
	return blob.StartUpload(ctx, size, func(ctx context.Context, report func(int64)) error {
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("create blob directory: %w", err)
		}
		tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		defer os.Remove(tmp.Name())

		buf := make([]byte, chunkSize)
		var written int64
		for {
			if err := ctx.Err(); err != nil {
				tmp.Close()
				return err
			}
			n, rerr := r.Read(buf)
			if n > 0 {
				if _, err := tmp.Write(buf[:n]); err != nil {
					tmp.Close()
					return fmt.Errorf("write blob: %w", err)
				}
				written += int64(n)
				report(written)
			}
			if errors.Is(rerr, io.EOF) {
				break
			}
			if rerr != nil {
				tmp.Close()
				return fmt.Errorf("read upload: %w", rerr)
			}
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("close blob: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return os.Rename(tmp.Name(), dst)
	})
}

func (s *Store) DownloadURL(ctx context.Context, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.resolve(p)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", blob.ErrNotFound
		}
		return "", err
	}
	return s.baseURL + path.Clean("/"+p), nil
}

func (s *Store) Delete(_ context.Context, p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Handler serves stored objects. Mount it under the BaseURL path prefix.
func (s *Store) Handler() http.Handler {
	return http.FileServer(http.Dir(s.dir))
}
