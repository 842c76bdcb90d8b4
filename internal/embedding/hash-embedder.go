package embedding

import (
	"context"

	"github.com/hyperjump/ruiji/internal/vector"
)

const defaultHashDimensions = 384

// HashEmbedder embeds text by feature hashing: each word adds +1 or -1 to the bucket its
// FNV-1a hash selects and the sum is L2-normalised. Texts that share words score higher
// against each other. It needs no model, so tests and model-less setups use it.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a HashEmbedder of the given dimension, 384 when dimensions <= 0.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = defaultHashDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the hashed vector for text. Text without words embeds to all zeros.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buckets := make([]float32, e.dimensions)
	for _, w := range SplitWords(text) {
		h := HashString(w)
		// sign from bit 40, bucket from h mod D
		if h&(1<<40) != 0 {
			buckets[h%uint64(e.dimensions)]--
		} else {
			buckets[h%uint64(e.dimensions)]++
		}
	}
	return vector.Normalize(buckets), nil
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

func (e *HashEmbedder) Dimensions() int { return e.dimensions }

func (e *HashEmbedder) Close() error { return nil }
