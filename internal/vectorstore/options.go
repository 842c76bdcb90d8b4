package vectorstore

import (
	"github.com/hyperjump/ruiji/internal/vector"
	"go.uber.org/zap"
)

// Option configures a Store.
type Option func(*Store)

// WithIndexType selects the similarity index: "flat", "hnsw" or "faiss".
func WithIndexType(t string) Option {
	return func(s *Store) { s.indexType = t }
}

// WithHNSWConfig tunes the HNSW graph.
func WithHNSWConfig(cfg vector.HNSWConfig) Option {
	return func(s *Store) { s.hnsw = cfg }
}

// WithCompression sets how embeddings.bin is compressed.
func WithCompression(c vector.Compression) Option {
	return func(s *Store) { s.compression = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}
