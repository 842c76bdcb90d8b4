package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSized(t *testing.T, path string, n int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, n), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	db := filepath.Join(data, "metadata.db")
	external := filepath.Join(dir, "elsewhere", "metadata.db")
	writeSized(t, filepath.Join(data, "embeddings.bin"), 100)
	writeSized(t, filepath.Join(data, "state", "vectors.hnsw"), 20)
	writeSized(t, db, 7)
	writeSized(t, external, 11)

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single file", []string{db}, 7},
		{"directory is recursive", []string{data}, 127},
		{"file inside directory counted once", []string{data, db}, 127},
		{"file outside directory added", []string{data, external}, 138},
		{"same path twice", []string{external, external + "/"}, 11},
		{"missing and empty skipped", []string{"", filepath.Join(dir, "absent"), external}, 11},
		{"no paths", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatalf("DiskUsageBytes: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d bytes, want %d", got, tt.want)
			}
		})
	}
}
