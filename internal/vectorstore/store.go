// Package vectorstore keeps item embeddings as a normalised matrix with an identifier
// map and a similarity index, persisted together under one directory.
package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/vector"
	rjerr "github.com/hyperjump/ruiji/pkg/errors"
	"go.uber.org/zap"
)

// Artifact file names inside the store directory.
const (
	MatrixFile   = "embeddings.bin"
	IndexMapFile = "index_map.json"
)

// Row is one embedding to upsert.
type Row struct {
	ID        string
	Embedding []float32
}

// Match is a similarity hit resolved to its identifier.
type Match struct {
	ID       string
	Position int
	Score    float64
}

// Store is the embedding store. Row i of the matrix is named by ids[i]; both only grow.
// Re-upserting an identifier appends a new row and marks the previous one superseded,
// so at most one row per identifier is visible to queries.
type Store struct {
	dir         string
	indexType   string
	hnsw        vector.HNSWConfig
	compression vector.Compression
	logger      *zap.Logger

	mu          sync.RWMutex
	initialized bool
	dim         int
	matrix      *vector.Matrix
	index       vector.Index
	ids         []string
	latest      map[string]uint32
	superseded  *roaring.Bitmap
}

// New creates a store persisting under dir. Nothing is read until Init.
// A FAISS index type without FAISS compiled in falls back to flat.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	s := &Store{
		dir:        dir,
		indexType:  string(vector.IndexTypeFlat),
		logger:     zap.NewNop(),
		latest:     make(map[string]uint32),
		superseded: roaring.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	switch vector.IndexType(s.indexType) {
	case vector.IndexTypeFlat, vector.IndexTypeHNSW:
	case "":
		s.indexType = string(vector.IndexTypeFlat)
	case vector.IndexTypeFAISS:
		if !vector.IsFAISSAvailable() {
			s.logger.Warn("FAISS not compiled in, falling back to flat index",
				zap.String("requested", s.indexType))
			s.indexType = string(vector.IndexTypeFlat)
		}
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, hnsw, faiss)", s.indexType)
	}
	return s, nil
}

// Init binds the store to dimension dim, loading any persisted state on first call.
// Calling it again with the same dim is a no-op.
func (s *Store) Init(ctx context.Context, dim int) error {
	if dim <= 0 {
		return rjerr.New(rjerr.CodeIndexDimensionInvalid, "dimension must be positive",
			rjerr.Field("dimension", dim))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		if dim == s.dim {
			return nil
		}
		if s.matrix.Rows() > 0 {
			return dimensionConflict(s.dim, dim, s.matrix.Rows())
		}
		return s.resetLocked(dim)
	}

	matrix, ids, err := s.loadArtifacts()
	if err != nil {
		s.logger.Warn("discarding unreadable vector store, starting empty",
			zap.String("dir", s.dir), zap.Error(err))
		matrix, ids = nil, nil
	}
	if matrix != nil && matrix.Rows() > 0 && matrix.Dim() != dim {
		return dimensionConflict(matrix.Dim(), dim, matrix.Rows())
	}
	if matrix == nil || matrix.Dim() != dim {
		return s.resetLocked(dim)
	}

	idx, err := s.openIndex(ctx, matrix)
	if err != nil {
		return err
	}
	s.adoptLocked(dim, matrix, idx, ids)
	s.logger.Info("vector store loaded",
		zap.String("dir", s.dir),
		zap.Int("dimension", dim),
		zap.Int("rows", matrix.Rows()),
		zap.Uint64("superseded", s.superseded.GetCardinality()),
		zap.String("index", idx.Type()))
	return nil
}

func dimensionConflict(have, want, rows int) error {
	return rjerr.New(rjerr.CodeIndexDimensionConflict, "dimension differs from stored embeddings",
		rjerr.Field("stored_dimension", have),
		rjerr.Field("requested_dimension", want),
		rjerr.Field("rows", rows))
}

// resetLocked makes the store an empty 0×dim store.
func (s *Store) resetLocked(dim int) error {
	matrix, err := vector.NewMatrix(dim)
	if err != nil {
		return rjerr.Wrap(err, rjerr.CodeIndexDimensionInvalid, "create matrix")
	}
	idx, err := vector.NewIndex(s.indexType, matrix, s.hnsw)
	if err != nil {
		return fmt.Errorf("create %s index: %w", s.indexType, err)
	}
	if s.index != nil {
		_ = s.index.Close()
	}
	s.adoptLocked(dim, matrix, idx, nil)
	return nil
}

func (s *Store) adoptLocked(dim int, matrix *vector.Matrix, idx vector.Index, ids []string) {
	s.dim = dim
	s.matrix = matrix
	s.index = idx
	s.ids = ids
	s.latest, s.superseded = deriveTombstones(ids)
	s.initialized = true
}

// deriveTombstones maps each identifier to its last row and marks every earlier row superseded.
func deriveTombstones(ids []string) (map[string]uint32, *roaring.Bitmap) {
	latest := make(map[string]uint32, len(ids))
	superseded := roaring.New()
	for i, id := range ids {
		if prev, ok := latest[id]; ok {
			superseded.Add(prev)
		}
		latest[id] = uint32(i)
	}
	return latest, superseded
}

// Upsert normalises and appends every row of length Dimension. Other rows are rejected
// and reported in the result. Accepted rows are persisted before Upsert returns; when
// persistence fails the in-memory state is rolled back.
func (s *Store) Upsert(ctx context.Context, rows []Row) (*models.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil, rjerr.New(rjerr.CodeIndexNotInitialized, "vector store not initialised")
	}

	result := &models.UpsertResult{Items: make([]models.ItemResult, 0, len(rows))}
	accepted := make([][]float32, 0, len(rows))
	acceptedIDs := make([]string, 0, len(rows))
	next := s.matrix.Rows()

	for _, r := range rows {
		if reason := s.rejectReason(r); reason != "" {
			s.logger.Warn("rejecting embedding",
				zap.String("id", r.ID),
				zap.Int("length", len(r.Embedding)),
				zap.Int("dimension", s.dim),
				zap.String("reason", reason))
			result.Add(models.ItemResult{ID: r.ID, Status: models.ItemRejected, Reason: reason, Position: -1})
			continue
		}
		accepted = append(accepted, vector.Normalize(r.Embedding))
		acceptedIDs = append(acceptedIDs, r.ID)
		result.Add(models.ItemResult{ID: r.ID, Status: models.ItemAccepted, Position: next})
		next++
	}
	if len(accepted) == 0 {
		return result, nil
	}

	snap := s.snapshotLocked()
	if err := s.appendLocked(ctx, acceptedIDs, accepted); err != nil {
		s.rollbackLocked(ctx, snap)
		return nil, fmt.Errorf("append embeddings: %w", err)
	}
	if err := s.persistLocked(ctx); err != nil {
		s.rollbackLocked(ctx, snap)
		return nil, rjerr.Wrap(err, rjerr.CodeIndexPersistFailure, "persist vector store",
			rjerr.Field("dir", s.dir))
	}

	s.logger.Debug("embeddings upserted",
		zap.Int("accepted", result.Accepted),
		zap.Int("rejected", result.Rejected),
		zap.Int("rows", s.matrix.Rows()))
	return result, nil
}

func (s *Store) rejectReason(r Row) string {
	if r.ID == "" {
		return "empty id"
	}
	if len(r.Embedding) != s.dim {
		return fmt.Sprintf("dimension mismatch: got %d, expected %d", len(r.Embedding), s.dim)
	}
	return ""
}

func (s *Store) appendLocked(ctx context.Context, ids []string, rows [][]float32) error {
	if err := s.matrix.Append(rows...); err != nil {
		return err
	}
	base := uint32(len(s.ids))
	s.ids = append(s.ids, ids...)
	for i, id := range ids {
		if prev, ok := s.latest[id]; ok {
			s.superseded.Add(prev)
		}
		s.latest[id] = base + uint32(i)
	}
	return s.index.Add(ctx, rows)
}

type snapshot struct {
	rows       int
	latest     map[string]uint32
	superseded *roaring.Bitmap
	indexLen   int
}

func (s *Store) snapshotLocked() snapshot {
	latest := make(map[string]uint32, len(s.latest))
	for k, v := range s.latest {
		latest[k] = v
	}
	return snapshot{
		rows:       s.matrix.Rows(),
		latest:     latest,
		superseded: s.superseded.Clone(),
		indexLen:   s.index.Len(),
	}
}

// rollbackLocked restores the state captured by snap. The similarity index cannot drop
// rows, so it is rebuilt from the truncated matrix when it grew.
func (s *Store) rollbackLocked(ctx context.Context, snap snapshot) {
	s.matrix.Truncate(snap.rows)
	s.ids = s.ids[:snap.rows]
	s.latest = snap.latest
	s.superseded = snap.superseded
	if s.index.Len() == snap.indexLen {
		return
	}
	idx, err := s.rebuildIndex(ctx, s.matrix)
	if err != nil {
		s.logger.Error("rebuild index after rollback", zap.Error(err))
		return
	}
	_ = s.index.Close()
	s.index = idx
}

// Query returns up to k live rows most similar to vec, best first, ties by position.
// An uninitialised or empty store, or k <= 0, yields no matches.
func (s *Store) Query(ctx context.Context, vec []float32, k int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized || k <= 0 || s.matrix.Rows() == 0 {
		return []Match{}, nil
	}
	if len(vec) != s.dim {
		return nil, rjerr.New(rjerr.CodeIndexInputInvalid, "query length does not match dimension",
			rjerr.Field("length", len(vec)),
			rjerr.Field("dimension", s.dim))
	}

	dead := int(s.superseded.GetCardinality())
	live := s.matrix.Rows() - dead
	k = min(k, live)
	if k <= 0 {
		return []Match{}, nil
	}

	hits, err := s.index.Search(ctx, vector.Normalize(vec), k+dead)
	if err != nil {
		return nil, fmt.Errorf("search %s index: %w", s.index.Type(), err)
	}
	out := make([]Match, 0, k)
	for _, h := range hits {
		if s.superseded.Contains(h.Position) || int(h.Position) >= len(s.ids) {
			continue
		}
		out = append(out, Match{ID: s.ids[h.Position], Position: int(h.Position), Score: h.Score})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored rows, superseded ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.matrix == nil {
		return 0
	}
	return s.matrix.Rows()
}

// Live returns the number of distinct identifiers.
func (s *Store) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.latest)
}

// Superseded returns the number of rows hidden by a newer row for the same identifier.
func (s *Store) Superseded() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.superseded.GetCardinality())
}

// Dimension returns the bound dimension, or 0 before Init.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Initialized reports whether Init has succeeded.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// IndexType returns the effective similarity index type.
func (s *Store) IndexType() string {
	return s.indexType
}

// IndexMap returns a copy of the position → identifier map.
func (s *Store) IndexMap() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Row returns a copy of the stored unit embedding at position i.
func (s *Store) Row(i int) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.matrix == nil || i < 0 || i >= s.matrix.Rows() {
		return nil, false
	}
	out := make([]float32, s.dim)
	copy(out, s.matrix.Row(i))
	return out, true
}

// Lookup returns the stored unit embedding for id.
func (s *Store) Lookup(id string) ([]float32, bool) {
	s.mu.RLock()
	pos, ok := s.latest[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return s.Row(int(pos))
}

// Close releases the similarity index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return nil
	}
	err := s.index.Close()
	s.index = nil
	s.initialized = false
	return err
}
