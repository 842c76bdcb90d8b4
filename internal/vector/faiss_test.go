//go:build faiss && cgo
// +build faiss,cgo

package vector

import (
	"context"
	"path/filepath"
	"testing"

	rjerr "github.com/hyperjump/ruiji/pkg/errors"
)

func newTestFAISS(t *testing.T, dim int) *FAISSIndex {
	t.Helper()
	idx, err := NewFAISSIndex(dim)
	if err != nil {
		t.Fatalf("NewFAISSIndex(%d): %v", dim, err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestFAISSIndex_RanksByInnerProduct(t *testing.T) {
	ctx := context.Background()
	idx := newTestFAISS(t, 3)
	if err := idx.Add(ctx, [][]float32{{0, 1, 0}, {0.6, 0.8, 0}, {1, 0, 0}}); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{2, 1, 0}
	if len(hits) != len(want) {
		t.Fatalf("got %d hits, want %d", len(hits), len(want))
	}
	for i, pos := range want {
		if hits[i].Position != pos {
			t.Errorf("hits[%d].Position = %d, want %d", i, hits[i].Position, pos)
		}
	}
}

func TestFAISSIndex_AddSpansBatches(t *testing.T) {
	ctx := context.Background()
	idx := newTestFAISS(t, 2)
	rows := make([][]float32, faissAddBatch+3)
	for i := range rows {
		rows[i] = []float32{0, 1}
	}
	rows[len(rows)-1] = []float32{1, 0}
	if err := idx.Add(ctx, rows); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != len(rows) {
		t.Fatalf("Len = %d, want %d", idx.Len(), len(rows))
	}
	hits, err := idx.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || int(hits[0].Position) != len(rows)-1 {
		t.Errorf("hits = %v, want last row", hits)
	}
}

func TestFAISSIndex_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ArtifactName("faiss"))

	src := newTestFAISS(t, 3)
	if err := src.Add(ctx, [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}); err != nil {
		t.Fatal(err)
	}
	if err := src.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dst := newTestFAISS(t, 3)
	if err := dst.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if dst.Len() != 3 {
		t.Errorf("Len after Load = %d, want 3", dst.Len())
	}
	hits, err := dst.Search(ctx, []float32{0, 0, 1}, 1)
	if err != nil || len(hits) != 1 || hits[0].Position != 2 {
		t.Errorf("Search after Load = %v, %v", hits, err)
	}

	narrow := newTestFAISS(t, 2)
	if err := narrow.Load(path); !rjerr.HasCode(err, rjerr.CodeIndexLoadFailure) {
		t.Errorf("Load into 2-d index: err = %v, want load failure", err)
	}
}

func TestFAISSIndex_LoadMissingKeepsIndex(t *testing.T) {
	idx := newTestFAISS(t, 2)
	if err := idx.Add(context.Background(), [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Load(filepath.Join(t.TempDir(), "absent.faiss")); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 1 {
		t.Errorf("Len = %d, want 1", idx.Len())
	}
}

func TestFAISSIndex_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	idx := newTestFAISS(t, 3)

	if err := idx.Add(ctx, [][]float32{{1, 0}}); !rjerr.HasCode(err, rjerr.CodeIndexInputInvalid) {
		t.Errorf("Add short vector: err = %v", err)
	}
	if _, err := idx.Search(ctx, []float32{1, 0}, 1); !rjerr.HasCode(err, rjerr.CodeIndexInputInvalid) {
		t.Errorf("Search short query: err = %v", err)
	}
	if hits, err := idx.Search(ctx, []float32{1, 0, 0}, 3); err != nil || len(hits) != 0 {
		t.Errorf("Search empty index = %v, %v", hits, err)
	}
	if _, err := NewFAISSIndex(0); !rjerr.HasCode(err, rjerr.CodeIndexDimensionInvalid) {
		t.Errorf("NewFAISSIndex(0): err = %v", err)
	}
}
