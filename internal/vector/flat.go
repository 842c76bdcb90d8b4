package vector

import (
	"context"
	"fmt"
	"sync"
)

// FlatIndex is an exact brute-force inner product index over a shared Matrix.
// It holds no vectors of its own; the matrix is the source of truth.
type FlatIndex struct {
	matrix *Matrix
	n      int
	mu     sync.RWMutex
}

// NewFlatIndex creates a flat index reading rows from m.
func NewFlatIndex(m *Matrix) (*FlatIndex, error) {
	if m == nil {
		return nil, fmt.Errorf("matrix is required")
	}
	return &FlatIndex{matrix: m}, nil
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string {
	return string(IndexTypeFlat)
}

// Add records that vectors were appended to the matrix.
func (f *FlatIndex) Add(ctx context.Context, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n+len(vectors) > f.matrix.Rows() {
		return fmt.Errorf("flat index ahead of matrix: %d+%d > %d rows", f.n, len(vectors), f.matrix.Rows())
	}
	for _, v := range vectors {
		if len(v) != f.matrix.Dim() {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), f.matrix.Dim())
		}
	}
	f.n += len(vectors)
	return nil
}

// Search scores every indexed row against query.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != f.matrix.Dim() {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.matrix.Dim())
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || f.n == 0 {
		return nil, nil
	}
	return scanRows(ctx, f.matrix, f.n, query, k)
}

// scanRows scores the first n rows of m against query and returns the best k.
func scanRows(ctx context.Context, m *Matrix, n int, query []float32, k int) ([]Hit, error) {
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		hits[i] = Hit{Position: uint32(i), Score: finiteScore(InnerProduct(query, m.Row(i)))}
	}
	sortHits(hits)
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Save is a no-op; the matrix is persisted by its owner.
func (f *FlatIndex) Save(path string) error { return nil }

// Load re-syncs with the matrix.
func (f *FlatIndex) Load(path string) error {
	f.mu.Lock()
	f.n = f.matrix.Rows()
	f.mu.Unlock()
	return nil
}

// Len returns the number of indexed rows.
func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.n
}

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error { return nil }
