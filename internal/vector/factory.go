package vector

import "fmt"

// IndexType names an Index implementation.
type IndexType string

const (
	// IndexTypeFlat scans every row. Exact; fine for small catalogues.
	IndexTypeFlat IndexType = "flat"
	// IndexTypeHNSW is the pure Go approximate graph.
	IndexTypeHNSW IndexType = "hnsw"
	// IndexTypeFAISS uses FAISS IndexFlatIP. Requires -tags=faiss and the FAISS library.
	IndexTypeFAISS IndexType = "faiss"
)

// NewIndex creates an index of the given type over m. The empty type means flat.
// FAISS reports a vector.accelerator.unavailable error when it is not compiled in.
func NewIndex(indexType string, m *Matrix, hnsw HNSWConfig) (Index, error) {
	if m == nil {
		return nil, fmt.Errorf("matrix is required")
	}
	var (
		idx Index
		err error
	)
	switch IndexType(indexType) {
	case IndexTypeFlat, "":
		idx, err = NewFlatIndex(m)
	case IndexTypeHNSW:
		idx, err = NewHNSWIndex(m, hnsw)
	case IndexTypeFAISS:
		idx, err = NewFAISSIndex(m.Dim())
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, hnsw, faiss)", indexType)
	}
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// ArtifactName is the file an index of this type persists to, or "" when the type
// keeps nothing beyond the matrix.
func ArtifactName(indexType string) string {
	switch IndexType(indexType) {
	case IndexTypeHNSW:
		return "vectors.hnsw"
	case IndexTypeFAISS:
		return "vectors.faiss"
	default:
		return ""
	}
}

// IsFAISSAvailable reports whether FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
