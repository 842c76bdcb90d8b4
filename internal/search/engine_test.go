package search

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/index"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vectorstore"
	rjerr "github.com/hyperjump/ruiji/pkg/errors"
)

// promptEmbedder maps known prompts to fixed vectors.
type promptEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (p *promptEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	if v, ok := p.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (p *promptEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *promptEmbedder) Dimensions() int { return 3 }
func (p *promptEmbedder) Close() error    { return nil }

func newTestEngine(t *testing.T, emb *promptEmbedder) (*Engine, *index.Manager) {
	t.Helper()
	dir := t.TempDir()
	vs, err := vectorstore.New(dir, vectorstore.WithIndexType("flat"))
	if err != nil {
		t.Fatal(err)
	}
	ms, err := storage.Open("file", dir, "")
	if err != nil {
		t.Fatal(err)
	}
	m := index.NewManager(vs, ms)
	t.Cleanup(func() { _ = m.Close() })

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return NewEngine(m, emb, &cfg.Recommend), m
}

func TestEngine_Recommend(t *testing.T) {
	ctx := context.Background()
	emb := &promptEmbedder{vectors: map[string][]float32{"desk lamp": {1, 0, 0}}}
	engine, m := newTestEngine(t, emb)

	if err := m.Initialize(ctx, 3); err != nil {
		t.Fatal(err)
	}
	_, err := m.Upsert(ctx, []models.Item{
		{ID: "a", Embedding: []float32{1, 0, 0}, Metadata: models.Record{
			"title": models.String("Desk Lamp"), "brand": models.String("Lumo"), "price": models.String("1,299"),
		}},
		{ID: "b", Embedding: []float32{0.9, 0.1, 0}, Metadata: models.Record{
			"title": models.String("Floor Lamp"), "price": models.Number(math.NaN()),
		}},
		{ID: "c", Embedding: []float32{0, 1, 0}, Metadata: models.Record{"title": models.String("Rug")}},
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := engine.Recommend(ctx, "  desk lamp ", 2)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message != "" {
		t.Errorf("unexpected message %q", resp.Message)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	first, second := resp.Results[0], resp.Results[1]
	if first.ID != "a" || math.Abs(first.Score-1) > 1e-6 {
		t.Errorf("first = %s (%v), want a with score 1", first.ID, first.Score)
	}
	if first.PriceDisplay != "₹1299" || first.Price == nil || *first.Price != 1299 {
		t.Errorf("first price = %v / %q", first.Price, first.PriceDisplay)
	}
	if first.Description != "Desk Lamp by Lumo, priced at ₹1299. Great choice when you want desk lamp." {
		t.Errorf("description = %q", first.Description)
	}
	if second.ID != "b" || second.Score >= first.Score {
		t.Errorf("second = %s (%v)", second.ID, second.Score)
	}
	if second.Price != nil || second.PriceDisplay != "N/A" {
		t.Errorf("second price = %v / %q", second.Price, second.PriceDisplay)
	}
	if resp.Prompt != "desk lamp" {
		t.Errorf("prompt = %q", resp.Prompt)
	}

	resp, err = engine.Recommend(ctx, "desk lamp", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 3 {
		t.Errorf("default k should return all 3 items, got %d", len(resp.Results))
	}
}

func TestEngine_RecommendEmptyIndex(t *testing.T) {
	engine, m := newTestEngine(t, &promptEmbedder{})
	resp, err := engine.Recommend(context.Background(), "anything", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 || resp.Results == nil {
		t.Errorf("results = %v, want empty slice", resp.Results)
	}
	if resp.Message != NoItemsMessage {
		t.Errorf("message = %q", resp.Message)
	}
	if !m.Initialized() || m.Stats().Dimension != 3 {
		t.Errorf("recommend should initialise the index with the query dimension, stats = %+v", m.Stats())
	}
}

func TestEngine_RecommendErrors(t *testing.T) {
	ctx := context.Background()

	engine, _ := newTestEngine(t, &promptEmbedder{})
	_, err := engine.Recommend(ctx, "   ", 3)
	if !rjerr.HasCode(err, rjerr.CodeRecommendInputInvalid) {
		t.Errorf("empty prompt: err = %v", err)
	}

	boom := errors.New("model offline")
	engine, _ = newTestEngine(t, &promptEmbedder{err: boom})
	_, err = engine.Recommend(ctx, "lamp", 3)
	if !rjerr.HasCode(err, rjerr.CodeEmbeddingUpstreamFailure) || !errors.Is(err, boom) {
		t.Errorf("embed failure: err = %v", err)
	}

	emb := &promptEmbedder{vectors: map[string][]float32{"short": {1, 0}}}
	engine, m := newTestEngine(t, emb)
	if err := m.Initialize(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Upsert(ctx, []models.Item{{ID: "a", Embedding: []float32{1, 0, 0}}}); err != nil {
		t.Fatal(err)
	}
	_, err = engine.Recommend(ctx, "short", 3)
	if !rjerr.HasCode(err, rjerr.CodeIndexDimensionConflict) {
		t.Errorf("dimension mismatch: err = %v", err)
	}
}

func TestProcessRequest(t *testing.T) {
	cfg := &config.RecommendConfig{DefaultK: 6, MaxK: 10}
	tests := []struct {
		k, want int
	}{
		{0, 6}, {-2, 6}, {4, 4}, {50, 10},
	}
	for _, tt := range tests {
		req := &models.RecommendRequest{Prompt: " lamp ", K: tt.k}
		if err := ProcessRequest(req, cfg); err != nil {
			t.Fatal(err)
		}
		if req.K != tt.want || req.Prompt != "lamp" {
			t.Errorf("k=%d: got %+v, want k=%d", tt.k, req, tt.want)
		}
	}
	if got := candidates(2, &config.RecommendConfig{MinCandidates: 20, OverfetchFactor: 3}); got != 20 {
		t.Errorf("candidates(2) = %d, want 20", got)
	}
	if got := candidates(10, &config.RecommendConfig{MinCandidates: 20, OverfetchFactor: 3}); got != 30 {
		t.Errorf("candidates(10) = %d, want 30", got)
	}
}
