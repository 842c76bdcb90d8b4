// Package vector provides the embedding matrix, similarity helpers and the similarity
// indexes built over it.
package vector

import (
	"context"
	"sort"
)

// Index is a similarity index over matrix positions. Positions are assigned in Add
// order starting at zero and always equal the row offset in the owning Matrix.
type Index interface {
	// Add indexes vectors as positions Len() .. Len()+len(vectors)-1.
	Add(ctx context.Context, vectors [][]float32) error
	// Search returns up to k hits ordered by descending score, ties by ascending position.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Save(path string) error
	Load(path string) error
	Len() int
	Type() string
	Close() error
}

// Hit is a single similarity search result.
type Hit struct {
	Position uint32
	Score    float64 // inner product of unit vectors
}

// sortHits orders hits by score descending, then by position ascending.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
}
