// Package docstore defines the document database port used by the access
// layer: collection/document CRUD, ordered and filtered queries, existence
// checks and change subscriptions. Adapters live in the memory and sqlite
// subpackages.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	// Data is the content of a document.
	Data = map[string]any

	// Snapshot is a document read from the store.
	Snapshot struct {
		Collection string
		ID         string
		Exists     bool
		Data       Data
	}

	// SnapshotFunc receives the full ordered result of a subscribed query.
	SnapshotFunc func([]Snapshot)

	// ErrorFunc receives the error that terminated a subscription.
	ErrorFunc func(error)

	// Unsubscribe releases a subscription. Calling it more than once is a no-op.
	Unsubscribe func()
)

// Store is the document database port.
type Store interface {
	// Add creates a document with a store-assigned id.
	Add(ctx context.Context, collection string, data Data) (string, error)
	// Set creates or fully replaces the document at id.
	Set(ctx context.Context, collection, id string, data Data) error
	// Get reads one document. A missing document is not an error: the
	// returned snapshot has Exists == false.
	Get(ctx context.Context, collection, id string) (Snapshot, error)
	// Update merges patch into an existing document. Fails with not-found.
	Update(ctx context.Context, collection, id string, patch Data) error
	// Delete removes a document. Deleting a missing document succeeds.
	Delete(ctx context.Context, collection, id string) error
	// Query runs a filtered, ordered query.
	Query(ctx context.Context, q Query) ([]Snapshot, error)
	// Subscribe delivers the query result now and after every change to the
	// collection, until the returned func is called or ctx is done.
	Subscribe(ctx context.Context, q Query, onChange SnapshotFunc, onError ErrorFunc) Unsubscribe
	Close() error
}

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store's clock when written.
var ServerTimestamp any = serverTimestamp{}

// TimestampLayout is how timestamps are persisted. Fixed width keeps
// lexicographic and chronological order identical.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Decode unmarshals the snapshot into v. The document id is exposed as "id".
func (s Snapshot) Decode(v any) error {
	m := make(map[string]any, len(s.Data)+1)
	for k, val := range s.Data {
		m[k] = val
	}
	m["id"] = s.ID
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode document %s/%s: %w", s.Collection, s.ID, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode document %s/%s: %w", s.Collection, s.ID, err)
	}
	return nil
}

// Normalize resolves ServerTimestamp sentinels and converts data to its
// JSON-compatible form, so every adapter stores and compares the same values.
func Normalize(data Data, now time.Time) (Data, error) {
	resolved := make(map[string]any, len(data))
	for k, v := range data {
		resolved[k] = resolveValue(v, now)
	}
	b, err := json.Marshal(resolved)
	if err != nil {
		return nil, NewError(CodeInvalidArgument, "document is not serializable: "+err.Error())
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, NewError(CodeInvalidArgument, err.Error())
	}
	return out, nil
}

func resolveValue(v any, now time.Time) any {
	switch x := v.(type) {
	case serverTimestamp:
		return FormatTimestamp(now)
	case time.Time:
		return FormatTimestamp(x)
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[k] = resolveValue(val, now)
		}
		return m
	default:
		return v
	}
}

// CollectionID returns the last segment of a collection path.
func CollectionID(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Code classifies store errors the same way the managed backend does.
type Code string

const (
	CodeNotFound           Code = "not-found"
	CodeFailedPrecondition Code = "failed-precondition"
	CodePermissionDenied   Code = "permission-denied"
	CodeUnavailable        Code = "unavailable"
	CodeAlreadyExists      Code = "already-exists"
	CodeInvalidArgument    Code = "invalid-argument"
	CodeInternal           Code = "internal"
)

// Error is a coded store error.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("docstore %s: %s", e.Code, e.Message)
}

// NewError builds a coded error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf extracts the code of a store error, or "" for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err is a store error with the given code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
