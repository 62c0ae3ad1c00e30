package drive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"spendly/internal/blob"
)

type fakeDrive struct {
	mu      sync.Mutex
	queries []string
	deleted []string
	files   []map[string]string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/files"):
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		_ = json.NewEncoder(w).Encode(map[string]any{"files": f.files})
	case r.Method == http.MethodDelete:
		f.deleted = append(f.deleted, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "unexpected", http.StatusNotImplemented)
	}
}

func newTestStore(t *testing.T, fake *fakeDrive) *Store {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s, err := NewWithOptions(context.Background(), "folder", nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return s
}

func TestDownloadURL(t *testing.T) {
	fake := &fakeDrive{files: []map[string]string{{"id": "f1", "webContentLink": "https://drive.example/f1"}}}
	s := newTestStore(t, fake)

	url, err := s.DownloadURL(context.Background(), "profile-photos/u1/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://drive.example/f1", url)
	require.Len(t, fake.queries, 1)
	assert.Contains(t, fake.queries[0], "value='profile-photos/u1/1.jpg'")
}

func TestDownloadURL_NotFound(t *testing.T) {
	s := newTestStore(t, &fakeDrive{})
	_, err := s.DownloadURL(context.Background(), "missing")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestDelete(t *testing.T) {
	fake := &fakeDrive{files: []map[string]string{{"id": "f9"}}}
	s := newTestStore(t, fake)
	require.NoError(t, s.Delete(context.Background(), "a/b.png"))
	assert.Equal(t, []string{"f9"}, fake.deleted)

	// deleting something absent is not an error
	require.NoError(t, newTestStore(t, &fakeDrive{}).Delete(context.Background(), "a/b.png"))
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `it\'s`, escapeQuery("it's"))
	assert.Equal(t, `a\\b`, escapeQuery(`a\b`))
}
