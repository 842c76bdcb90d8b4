package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()
	a, err := e.Embed(ctx, "wireless noise cancelling headphones")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(ctx, "wireless noise cancelling headphones")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding differs at %d", i)
		}
	}
	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("squared norm = %v, want 1", sum)
	}
}

func TestHashEmbedder_SharedWordsAreCloser(t *testing.T) {
	e := NewHashEmbedder(256)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "red running shoes")
	near, _ := e.Embed(ctx, "running shoes for men")
	far, _ := e.Embed(ctx, "stainless steel kettle")
	if dot(q, near) <= dot(q, far) {
		t.Errorf("dot(q, near)=%v should exceed dot(q, far)=%v", dot(q, near), dot(q, far))
	}
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	e := NewHashEmbedder(8)
	v, err := e.Embed(context.Background(), "  ")
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector, got %v", v)
		}
	}
	if NewHashEmbedder(0).Dimensions() != 384 {
		t.Error("default dimension should be 384")
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text))}, nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func (c *countingEmbedder) Dimensions() int { return 1 }
func (c *countingEmbedder) Close() error    { return nil }

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 4)
	ctx := context.Background()

	out, err := c.EmbedBatch(ctx, []string{"ab", "abc", "ab"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 || out[0][0] != 2 || out[1][0] != 3 || out[2][0] != 2 {
		t.Errorf("out = %v", out)
	}
	if inner.calls != 2 {
		t.Errorf("inner called %d times, want 2", inner.calls)
	}
	if c.Dimensions() != 1 {
		t.Errorf("Dimensions = %d", c.Dimensions())
	}

	boom := errors.New("upstream down")
	failing := NewCachedEmbedder(&countingEmbedder{err: boom}, 4)
	if _, err := failing.Embed(ctx, "x"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want upstream error", err)
	}
}

func TestNew(t *testing.T) {
	e, err := New(Options{Provider: "hash", Dimensions: 16, CacheSize: 8})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if _, ok := e.(*CachedEmbedder); !ok {
		t.Errorf("expected cached embedder, got %T", e)
	}
	if e.Dimensions() != 16 {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}

	e, err = New(Options{Dimensions: 16})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*HashEmbedder); !ok {
		t.Errorf("expected bare hash embedder, got %T", e)
	}

	if _, err := New(Options{Provider: "openai"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := New(Options{Provider: "onnx", Dimensions: 16}); err == nil {
		t.Error("expected error for onnx without a model path")
	}
}
