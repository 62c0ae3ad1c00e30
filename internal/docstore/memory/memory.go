// Package memory is an in-process docstore adapter used by tests and the
// "memory" data backend.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spendly/internal/docstore"
	"spendly/internal/log"
)

type record struct {
	data Data
	seq  uint64
}

// Data aliases the document payload type.
type Data = docstore.Data

// Store keeps collections in maps. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	cols    map[string]map[string]*record
	seq     uint64
	clock   func() time.Time
	lastTS  time.Time
	hub     *docstore.Hub
	indexes *docstore.IndexSet
	enforce bool
	pub     docstore.ChangePublisher
	logger  *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now as the source of server timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithRequiredIndexes makes multi-field ordered queries fail with
// failed-precondition unless their index was declared.
func WithRequiredIndexes() Option {
	return func(s *Store) { s.enforce = true }
}

// WithPublisher forwards committed writes to pub.
func WithPublisher(pub docstore.ChangePublisher) Option {
	return func(s *Store) { s.pub = pub }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func New(opts ...Option) *Store {
	s := &Store{
		cols:    make(map[string]map[string]*record),
		clock:   time.Now,
		hub:     docstore.NewHub(),
		indexes: docstore.NewIndexSet(),
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentDocstore)
	return s
}

// DeclareIndex registers the composite index that serves q.
func (s *Store) DeclareIndex(q docstore.Query) {
	s.indexes.Declare(q)
}

// now returns a strictly increasing timestamp. Caller holds mu.
func (s *Store) now() time.Time {
	t := s.clock().UTC()
	if !t.After(s.lastTS) {
		t = s.lastTS.Add(time.Nanosecond)
	}
	s.lastTS = t
	return t
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

func (s *Store) Add(ctx context.Context, collection string, data Data) (string, error) {
	id := newID()
	if err := s.write(ctx, collection, id, data, docstore.OpCreate, false); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data Data) error {
	return s.write(ctx, collection, id, data, docstore.OpCreate, false)
}

func (s *Store) Update(ctx context.Context, collection, id string, patch Data) error {
	return s.write(ctx, collection, id, patch, docstore.OpUpdate, true)
}

func (s *Store) write(ctx context.Context, collection, id string, data Data, op docstore.ChangeOp, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if collection == "" || id == "" {
		return docstore.NewError(docstore.CodeInvalidArgument, "collection and id are required")
	}

	s.mu.Lock()
	doc, err := docstore.Normalize(data, s.now())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	col := s.cols[collection]
	if col == nil {
		col = make(map[string]*record)
		s.cols[collection] = col
	}
	existing, ok := col[id]
	if merge {
		if !ok {
			s.mu.Unlock()
			return docstore.NewError(docstore.CodeNotFound, "No document to update: "+collection+"/"+id)
		}
		merged := make(Data, len(existing.data)+len(doc))
		for k, v := range existing.data {
			merged[k] = v
		}
		for k, v := range doc {
			merged[k] = v
		}
		existing.data = merged
		doc = merged
	} else if ok {
		existing.data = doc
		op = docstore.OpUpdate
	} else {
		s.seq++
		col[id] = &record{data: doc, seq: s.seq}
	}
	at := s.lastTS
	s.mu.Unlock()

	s.committed(ctx, docstore.Change{Collection: collection, ID: id, Op: op, Data: doc, At: at})
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := docstore.Snapshot{Collection: collection, ID: id}
	if rec, ok := s.cols[collection][id]; ok {
		snap.Exists = true
		snap.Data = copyData(rec.data)
	}
	return snap, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	_, ok := s.cols[collection][id]
	delete(s.cols[collection], id)
	at := s.now()
	s.mu.Unlock()

	if ok {
		s.committed(ctx, docstore.Change{Collection: collection, ID: id, Op: docstore.OpDelete, At: at})
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.enforce {
		if err := s.indexes.Check(q); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	recs := make([]*record, 0, len(s.cols[q.Collection]))
	ids := make(map[*record]string, len(s.cols[q.Collection]))
	for id, rec := range s.cols[q.Collection] {
		if q.Matches(rec.data) {
			recs = append(recs, rec)
			ids[rec] = id
		}
	}
	out := make([]docstore.Snapshot, 0, len(recs))
	sortBySeq(recs)
	for _, rec := range recs {
		out = append(out, docstore.Snapshot{
			Collection: q.Collection,
			ID:         ids[rec],
			Exists:     true,
			Data:       copyData(rec.data),
		})
	}
	s.mu.RUnlock()

	q.Sort(out)
	return out, nil
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, onChange docstore.SnapshotFunc, onError docstore.ErrorFunc) docstore.Unsubscribe {
	s.logger.Debug("Subscription started", log.FieldQuery, q.String())
	return s.hub.Subscribe(ctx, q.Collection, func(ctx context.Context) ([]docstore.Snapshot, error) {
		return s.Query(ctx, q)
	}, onChange, onError)
}

// Subscribers returns the number of live subscriptions.
func (s *Store) Subscribers() int {
	return s.hub.Len()
}

func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

func (s *Store) committed(ctx context.Context, change docstore.Change) {
	s.hub.Notify(change.Collection)
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishChange(ctx, change); err != nil {
		s.logger.Warn("Failed to publish change",
			log.FieldCollection, change.Collection,
			log.FieldDocumentID, change.ID,
			log.FieldError, err)
	}
}

func copyData(d Data) Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func sortBySeq(recs []*record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
}
