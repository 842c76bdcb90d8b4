// Package index composes the vector store and the metadata store behind one entry point.
package index

import (
	"context"
	"sync"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vectorstore"
	rjerr "github.com/hyperjump/ruiji/pkg/errors"
	"github.com/hyperjump/ruiji/pkg/utils"
	"go.uber.org/zap"
)

// Manager owns a VectorStore and a MetadataStore. Upsert and Initialize are exclusive;
// Query, Get and Stats share a read lock.
type Manager struct {
	vectors  *vectorstore.Store
	metadata storage.MetadataStore
	logger   *zap.Logger

	mu             sync.RWMutex
	metadataLoaded bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = utils.OrNop(l) }
}

// NewManager wires the two stores. Neither is read until Initialize.
func NewManager(vectors *vectorstore.Store, metadata storage.MetadataStore, opts ...Option) *Manager {
	m := &Manager{vectors: vectors, metadata: metadata, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize binds the index to dimension dim. Repeated calls with the same dim only
// take the read lock.
func (m *Manager) Initialize(ctx context.Context, dim int) error {
	m.mu.RLock()
	ready := m.metadataLoaded && m.vectors.Initialized() && m.vectors.Dimension() == dim
	m.mu.RUnlock()
	if ready {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.vectors.Init(ctx, dim); err != nil {
		return err
	}
	if !m.metadataLoaded {
		if err := m.metadata.Load(ctx); err != nil {
			m.logger.Warn("metadata unreadable, starting empty",
				zap.String("path", m.metadata.Path()), zap.Error(err))
		}
		m.metadataLoaded = true
		m.logger.Info("index initialised",
			zap.Int("dimension", dim),
			zap.Int("rows", m.vectors.Len()),
			zap.Int("metadata", m.metadata.Len()))
	}
	return nil
}

// Initialized reports whether Initialize has succeeded.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadataLoaded && m.vectors.Initialized()
}

// Dimension returns the bound dimension, or 0 before Initialize.
func (m *Manager) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.metadataLoaded || !m.vectors.Initialized() {
		return 0
	}
	return m.vectors.Dimension()
}

// Upsert stores embeddings and, for accepted items only, their metadata. Both stores
// are persisted before returning.
func (m *Manager) Upsert(ctx context.Context, items []models.Item) (*models.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.metadataLoaded || !m.vectors.Initialized() {
		return nil, rjerr.New(rjerr.CodeIndexNotInitialized, "index not initialised")
	}

	rows := make([]vectorstore.Row, len(items))
	for i, it := range items {
		rows[i] = vectorstore.Row{ID: it.ID, Embedding: it.Embedding}
	}
	result, err := m.vectors.Upsert(ctx, rows)
	if err != nil {
		return nil, err
	}
	if result.Accepted == 0 {
		return result, nil
	}

	for i, it := range result.Items {
		if it.Status != models.ItemAccepted {
			continue
		}
		rec := items[i].Metadata
		if rec == nil {
			rec = models.Record{}
		}
		if err := m.metadata.Put(ctx, it.ID, rec); err != nil {
			return nil, rjerr.Wrap(err, rjerr.CodeIndexPersistFailure, "store metadata",
				rjerr.Field("id", it.ID))
		}
	}
	if err := m.metadata.Persist(ctx); err != nil {
		return nil, rjerr.Wrap(err, rjerr.CodeIndexPersistFailure, "persist metadata",
			rjerr.Field("path", m.metadata.Path()))
	}

	m.logger.Info("items upserted",
		zap.Int("accepted", result.Accepted),
		zap.Int("rejected", result.Rejected),
		zap.Int("live", m.vectors.Live()))
	return result, nil
}

// Query returns up to k matches for vec with metadata attached. Items without metadata
// get an empty record.
func (m *Manager) Query(ctx context.Context, vec []float32, k int) ([]models.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits, err := m.vectors.Query(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	out := make([]models.Match, len(hits))
	for i, h := range hits {
		rec, _ := m.metadata.Get(ctx, h.ID)
		out[i] = models.Match{ID: h.ID, Score: h.Score, Metadata: rec}
	}
	return out, nil
}

// RangeMetadata calls fn for every stored metadata record until fn returns false.
// Nothing is visited before Initialize.
func (m *Manager) RangeMetadata(ctx context.Context, fn func(id string, rec models.Record) bool) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.metadataLoaded {
		return nil
	}
	return m.metadata.Range(ctx, fn)
}

// Get returns the metadata stored for id.
func (m *Manager) Get(ctx context.Context, id string) (models.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata.Get(ctx, id)
}

// Stats summarises the index.
func (m *Manager) Stats() models.IndexStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.IndexStats{
		Initialized:  m.metadataLoaded && m.vectors.Initialized(),
		Dimension:    m.vectors.Dimension(),
		Rows:         m.vectors.Len(),
		LiveItems:    m.vectors.Live(),
		Superseded:   m.vectors.Superseded(),
		MetadataSize: m.metadata.Len(),
		IndexType:    m.vectors.IndexType(),
	}
}

// Close closes both stores.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return rjerr.Join(m.vectors.Close(), m.metadata.Close())
}
