// Package storage persists item metadata records.
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hyperjump/ruiji/internal/models"
)

// MetadataStore maps item identifiers to metadata records. Records are served from
// memory; Load and Persist move them to and from disk.
type MetadataStore interface {
	// Put replaces the record for id.
	Put(ctx context.Context, id string, rec models.Record) error
	// Get returns the record for id. Unknown ids yield an empty, non-nil record and false.
	Get(ctx context.Context, id string) (models.Record, bool)
	Len() int
	// Range calls fn for every record until fn returns false. fn must not modify rec or
	// call back into the store.
	Range(ctx context.Context, fn func(id string, rec models.Record) bool) error
	Load(ctx context.Context) error
	Persist(ctx context.Context) error
	// Path is the on-disk location, for status reporting.
	Path() string
	Close() error
}

// Backend names a MetadataStore implementation.
type Backend string

const (
	// BackendFile keeps every record in one JSON document.
	BackendFile Backend = "file"
	// BackendSQLite keeps one row per record in SQLite.
	BackendSQLite Backend = "sqlite"
)

// MetadataFile is the file backend's document name inside the data directory.
const MetadataFile = "metadata.json"

// Open creates the metadata store for backend. The file backend writes
// dataDir/metadata.json; the SQLite backend uses dbPath.
func Open(backend, dataDir, dbPath string) (MetadataStore, error) {
	switch Backend(backend) {
	case BackendFile, "":
		return NewFileStore(filepath.Join(dataDir, MetadataFile)), nil
	case BackendSQLite:
		if dbPath == "" {
			dbPath = filepath.Join(dataDir, "metadata.db")
		}
		return NewSQLiteStore(dbPath)
	default:
		return nil, fmt.Errorf("unknown metadata backend: %s (supported: file, sqlite)", backend)
	}
}

// records is the in-memory map shared by both backends, with the set of ids changed
// since the last successful persist.
type records struct {
	mu    sync.RWMutex
	byID  map[string]models.Record
	dirty map[string]struct{}
}

func newRecords() records {
	return records{byID: make(map[string]models.Record), dirty: make(map[string]struct{})}
}

func (r *records) put(id string, rec models.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = rec.Clone()
	r.dirty[id] = struct{}{}
}

func (r *records) get(id string) (models.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return models.Record{}, false
	}
	return rec.Clone(), true
}

func (r *records) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *records) each(ctx context.Context, fn func(id string, rec models.Record) bool) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for id, rec := range r.byID {
		if n++; n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if !fn(id, rec) {
			return nil
		}
	}
	return ctx.Err()
}

func (r *records) replace(byID map[string]models.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if byID == nil {
		byID = make(map[string]models.Record)
	}
	r.byID = byID
	r.dirty = make(map[string]struct{})
}
