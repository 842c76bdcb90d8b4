package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	gojson "github.com/goccy/go-json"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/pkg/utils"
)

// FileStore keeps all metadata in a single JSON object keyed by identifier.
type FileStore struct {
	path string
	records
}

// NewFileStore creates a store backed by the JSON document at path. Nothing is read until Load.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, records: newRecords()}
}

// Put replaces the record for id.
func (s *FileStore) Put(ctx context.Context, id string, rec models.Record) error {
	s.put(id, rec)
	return nil
}

// Get returns the record for id.
func (s *FileStore) Get(ctx context.Context, id string) (models.Record, bool) {
	return s.get(id)
}

// Len returns the number of records.
func (s *FileStore) Len() int { return s.len() }

// Range visits every record in no particular order.
func (s *FileStore) Range(ctx context.Context, fn func(id string, rec models.Record) bool) error {
	return s.each(ctx, fn)
}

// Path returns the JSON document path.
func (s *FileStore) Path() string { return s.path }

// Load reads the document. A missing file yields an empty store. On a decode error the
// store is left empty and the error returned.
func (s *FileStore) Load(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.replace(nil)
			return nil
		}
		s.replace(nil)
		return fmt.Errorf("read metadata: %w", err)
	}
	var byID map[string]models.Record
	if err := gojson.Unmarshal(data, &byID); err != nil {
		s.replace(nil)
		return fmt.Errorf("decode metadata: %w", err)
	}
	for id, rec := range byID {
		if rec == nil {
			byID[id] = models.Record{}
		}
	}
	s.replace(byID)
	return nil
}

// Persist rewrites the whole document atomically. It is a no-op when nothing changed.
func (s *FileStore) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dirty) == 0 && utils.FileExists(s.path) {
		return nil
	}
	err := utils.WriteFileAtomic(s.path, func(w io.Writer) error {
		return gojson.NewEncoder(w).Encode(s.byID)
	})
	if err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	s.dirty = make(map[string]struct{})
	return nil
}

// Close is a no-op for FileStore.
func (s *FileStore) Close() error { return nil }
