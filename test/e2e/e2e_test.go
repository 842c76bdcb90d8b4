package e2e

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/hyperjump/ruiji/internal/cli"
	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/index"
	"github.com/hyperjump/ruiji/internal/indexer"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/search"
	"github.com/hyperjump/ruiji/internal/server"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vector"
	"github.com/hyperjump/ruiji/internal/vectorstore"
)

const e2eDimensions = 384

// stack is a running server over one data directory.
type stack struct {
	manager *index.Manager
	http    *httptest.Server
	client  *cli.Client
}

func startStack(t *testing.T, dataDir string) *stack {
	t.Helper()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DataDir:         dataDir,
			MetadataBackend: "sqlite",
			Compression:     "zstd",
		},
		Index:     config.IndexConfig{Type: "hnsw"},
		Embedding: config.EmbeddingConfig{Provider: "hash", Dimensions: e2eDimensions},
	}
	config.ApplyDefaults(cfg)

	vectors, err := vectorstore.New(dataDir,
		vectorstore.WithIndexType(cfg.Index.Type),
		vectorstore.WithHNSWConfig(vector.HNSWConfig{M: 16, EfConstruction: 200, EfSearch: 64, Seed: 7}),
		vectorstore.WithCompression(vector.CompressionZSTD),
	)
	if err != nil {
		t.Fatal(err)
	}
	metadata, err := storage.Open(cfg.Storage.MetadataBackend, dataDir, "")
	if err != nil {
		t.Fatal(err)
	}
	manager := index.NewManager(vectors, metadata)
	embedder := embedding.NewCachedEmbedder(embedding.NewHashEmbedder(e2eDimensions), 1000)

	engine := search.NewEngine(manager, embedder, &cfg.Recommend)
	idx := indexer.NewIndexer(manager, embedder)
	srv := server.NewServer(engine, idx, manager, cfg, nil, nil, "")
	ts := httptest.NewServer(srv.Handler())

	s := &stack{manager: manager, http: ts, client: cli.NewClient(ts.URL)}
	t.Cleanup(s.stop)
	return s
}

func (s *stack) stop() {
	if s.http == nil {
		return
	}
	s.http.Close()
	_ = s.manager.Close()
	s.http = nil
}

func assertTopResults(t *testing.T, ctx context.Context, client *cli.Client, c *Corpus) {
	t.Helper()
	for _, tc := range c.TestCases {
		resp, err := client.Recommend(ctx, tc.Prompt, 3)
		if err != nil {
			t.Fatalf("recommend %q: %v", tc.Prompt, err)
		}
		if len(resp.Results) == 0 {
			t.Errorf("prompt %q: no results", tc.Prompt)
			continue
		}
		if got := resp.Results[0].ID; got != tc.ExpectedID {
			t.Errorf("prompt %q: top result %q, want %q", tc.Prompt, got, tc.ExpectedID)
		}
		seen := make(map[string]bool)
		for i, r := range resp.Results {
			if seen[r.ID] {
				t.Errorf("prompt %q: duplicate id %q", tc.Prompt, r.ID)
			}
			seen[r.ID] = true
			if i > 0 && r.Score > resp.Results[i-1].Score {
				t.Errorf("prompt %q: scores not descending at %d", tc.Prompt, i)
			}
		}
	}
}

func TestE2E_RecommendReturnsExpectedProducts(t *testing.T) {
	ctx := context.Background()
	corpus := BuildCorpus()
	s := startStack(t, t.TempDir())

	empty, err := s.client.Recommend(ctx, "anything at all", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty.Results) != 0 || empty.Message != search.NoItemsMessage {
		t.Errorf("empty index response = %+v", empty)
	}

	res, err := s.client.Ingest(ctx, corpus.Items())
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted != len(corpus.Products) || res.Rejected != 0 {
		t.Fatalf("ingest accepted=%d rejected=%d", res.Accepted, res.Rejected)
	}

	assertTopResults(t, ctx, s.client, corpus)

	resp, err := s.client.Recommend(ctx, "ultrawide monitor", 1)
	if err != nil {
		t.Fatal(err)
	}
	top := resp.Results[0]
	if top.Price == nil || *top.Price != 32000 || top.PriceDisplay != "₹32000" {
		t.Errorf("price = %v display = %q", top.Price, top.PriceDisplay)
	}
	if top.Description == "" {
		t.Error("expected a generated description")
	}
}

func TestE2E_PersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	corpus := BuildCorpus()
	dir := filepath.Join(t.TempDir(), "index")

	first := startStack(t, dir)
	if _, err := first.client.Ingest(ctx, corpus.Items()); err != nil {
		t.Fatal(err)
	}
	// Re-ingesting an id supersedes its old row.
	updated := []models.ItemInput{{
		ID:          "lamp-brass",
		Title:       "Brass Desk Lamp",
		Description: "Adjustable brass arm with warm LED bulb and dimmer",
		Categories:  "lighting, office",
		Metadata:    models.Record{"price": models.Number(1499)},
	}}
	if _, err := first.client.Ingest(ctx, updated); err != nil {
		t.Fatal(err)
	}
	first.stop()

	second := startStack(t, dir)
	// The first prompt initialises the reopened index.
	assertTopResults(t, ctx, second.client, corpus)

	status, err := second.client.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	st := status.Index
	if st.Rows != len(corpus.Products)+1 || st.LiveItems != len(corpus.Products) || st.Superseded != 1 {
		t.Errorf("stats after restart = %+v", st)
	}

	resp, err := second.client.Recommend(ctx, "brass desk lamp", 5)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, r := range resp.Results {
		if r.ID == "lamp-brass" {
			count++
			if r.PriceDisplay != "₹1499" {
				t.Errorf("lamp price = %q, want the updated ₹1499", r.PriceDisplay)
			}
		}
	}
	if count != 1 {
		t.Errorf("lamp-brass returned %d times, want once", count)
	}
}
