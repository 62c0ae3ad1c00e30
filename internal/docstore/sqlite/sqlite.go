// Package sqlite persists documents as JSON rows in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spendly/internal/docstore"
	"spendly/internal/log"

	_ "modernc.org/sqlite"
)

var fieldName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Options configures the store.
type Options struct {
	RequireIndexes bool
	Publisher      docstore.ChangePublisher
	Logger         *log.Logger
	Clock          func() time.Time
}

// Store implements docstore.Store on SQLite.
type Store struct {
	db      *sql.DB
	hub     *docstore.Hub
	indexes *docstore.IndexSet
	opts    Options
	logger  *log.Logger

	clockMu sync.Mutex
	lastTS  time.Time
}

// Open creates the database directory, runs migrations and opens the store.
func Open(dbPath string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	return &Store{
		db:      db,
		hub:     docstore.NewHub(),
		indexes: docstore.NewIndexSet(),
		opts:    opts,
		logger:  logger.WithComponent(log.ComponentDocstore),
	}, nil
}

func (s *Store) Close() error {
	s.hub.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DeclareIndex registers the composite index that serves q.
func (s *Store) DeclareIndex(q docstore.Query) {
	s.indexes.Declare(q)
}

func (s *Store) now() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	t := s.opts.Clock().UTC()
	if !t.After(s.lastTS) {
		t = s.lastTS.Add(time.Nanosecond)
	}
	s.lastTS = t
	return t
}

func (s *Store) Add(ctx context.Context, collection string, data docstore.Data) (string, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data docstore.Data) error {
	if collection == "" || id == "" {
		return docstore.NewError(docstore.CodeInvalidArgument, "collection and id are required")
	}
	now := s.now()
	doc, err := docstore.Normalize(data, now)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM documents WHERE collection = ? AND id = ?)`,
		collection, id).Scan(&exists); err != nil {
		return unavailable(err)
	}

	ts := docstore.FormatTimestamp(now)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, id, string(raw), ts, ts); err != nil {
		return unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}

	op := docstore.OpCreate
	if exists {
		op = docstore.OpUpdate
	}
	s.committed(ctx, docstore.Change{Collection: collection, ID: id, Op: op, Data: doc, At: now})
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch docstore.Data) error {
	now := s.now()
	fields, err := docstore.Normalize(patch, now)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.NewError(docstore.CodeNotFound, "No document to update: "+collection+"/"+id)
	}
	if err != nil {
		return unavailable(err)
	}

	var doc docstore.Data
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("decode document %s/%s: %w", collection, id, err)
	}
	for k, v := range fields {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		string(merged), docstore.FormatTimestamp(now), collection, id); err != nil {
		return unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}

	s.committed(ctx, docstore.Change{Collection: collection, ID: id, Op: docstore.OpUpdate, Data: doc, At: now})
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Snapshot, error) {
	snap := docstore.Snapshot{Collection: collection, ID: id}
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return snap, unavailable(err)
	}
	if err := json.Unmarshal([]byte(raw), &snap.Data); err != nil {
		return snap, fmt.Errorf("decode document %s/%s: %w", collection, id, err)
	}
	snap.Exists = true
	return snap, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return unavailable(err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.committed(ctx, docstore.Change{Collection: collection, ID: id, Op: docstore.OpDelete, At: s.now()})
	}
	return nil
}

// Query pushes equality filters down as json_extract predicates and sorts
// the rows in Go, so ordering matches the memory adapter exactly.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	if s.opts.RequireIndexes {
		if err := s.indexes.Check(q); err != nil {
			return nil, err
		}
	}

	var (
		where = []string{"collection = ?"}
		args  = []any{q.Collection}
	)
	for _, f := range q.Where {
		if !fieldName.MatchString(f.Field) {
			return nil, docstore.NewError(docstore.CodeInvalidArgument, "invalid field name: "+f.Field)
		}
		v := docstore.NormalizeValue(f.Value)
		if v == nil {
			where = append(where, fmt.Sprintf("json_type(data, '$.%s') = 'null'", f.Field))
			continue
		}
		where = append(where, fmt.Sprintf("json_extract(data, '$.%s') = ?", f.Field))
		args = append(args, v)
	}
	for _, o := range q.OrderBy {
		if !fieldName.MatchString(o.Field) {
			return nil, docstore.NewError(docstore.CodeInvalidArgument, "invalid field name: "+o.Field)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE `+strings.Join(where, " AND ")+` ORDER BY seq`, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []docstore.Snapshot
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, unavailable(err)
		}
		snap := docstore.Snapshot{Collection: q.Collection, ID: id, Exists: true}
		if err := json.Unmarshal([]byte(raw), &snap.Data); err != nil {
			return nil, fmt.Errorf("decode document %s/%s: %w", q.Collection, id, err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}

	q.Sort(out)
	return out, nil
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, onChange docstore.SnapshotFunc, onError docstore.ErrorFunc) docstore.Unsubscribe {
	s.logger.Debug("Subscription started", log.FieldQuery, q.String())
	return s.hub.Subscribe(ctx, q.Collection, func(ctx context.Context) ([]docstore.Snapshot, error) {
		return s.Query(ctx, q)
	}, onChange, onError)
}

func (s *Store) committed(ctx context.Context, change docstore.Change) {
	s.hub.Notify(change.Collection)
	if s.opts.Publisher == nil {
		return
	}
	if err := s.opts.Publisher.PublishChange(ctx, change); err != nil {
		s.logger.Warn("Failed to publish change",
			log.FieldCollection, change.Collection,
			log.FieldDocumentID, change.ID,
			log.FieldError, err)
	}
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", docstore.NewError(docstore.CodeUnavailable, "database error"), err)
}
