package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/hyperjump/ruiji/internal/models"
)

func TestSQLiteStore_PutPersistLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "meta.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "sku-1", models.Record{
		"title": models.String("Desk Lamp"),
		"price": models.Number(1299),
		"stock": models.Null(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "sku-2", models.Record{"title": models.String("Chair")}); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "sku-2", models.Record{"title": models.String("Chair v2")}); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 2 {
		t.Errorf("Len=%d, want 2", store.Len())
	}
	if err := store.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if err := reopened.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reopened.Len() != 2 {
		t.Fatalf("Len after reload=%d, want 2", reopened.Len())
	}
	rec, ok := reopened.Get(ctx, "sku-1")
	if !ok {
		t.Fatal("sku-1 missing")
	}
	if n, _ := rec["price"].AsNumber(); n != 1299 {
		t.Errorf("price = %v", rec["price"])
	}
	if !rec["stock"].IsNull() {
		t.Errorf("stock = %v, want null", rec["stock"])
	}
	rec, _ = reopened.Get(ctx, "sku-2")
	if s, _ := rec["title"].AsString(); s != "Chair v2" {
		t.Errorf("title = %q, want replaced value", s)
	}
}

func TestSQLiteStore_NonFiniteStoredAsZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	_ = store.Put(ctx, "x", models.Record{"rating": models.Number(math.NaN())})
	if err := store.Persist(ctx); err != nil {
		t.Fatal(err)
	}
	if err := store.Load(ctx); err != nil {
		t.Fatal(err)
	}
	rec, _ := store.Get(ctx, "x")
	if n, ok := rec["rating"].AsNumber(); !ok || n != 0 {
		t.Errorf("rating = %v, want 0", rec["rating"])
	}
}

func TestSQLiteStore_GetUnknown(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	rec, ok := store.Get(context.Background(), "nope")
	if ok {
		t.Error("unknown id reported as found")
	}
	if rec == nil || len(rec) != 0 {
		t.Errorf("want empty non-nil record, got %#v", rec)
	}
}
