package cli

import (
	"bytes"
	"strings"
	"testing"

	gojson "github.com/goccy/go-json"

	"github.com/hyperjump/ruiji/internal/models"
)

func price(v float64) *float64 { return &v }

func sampleResponse() *models.RecommendResponse {
	return &models.RecommendResponse{
		Prompt:    "desk lamp",
		QueryTime: 12,
		Results: []*models.Recommendation{
			{
				ID:           "lamp-1",
				Score:        0.93,
				Metadata:     models.Record{"title": models.String("Brass Desk Lamp")},
				Price:        price(1299),
				PriceDisplay: "₹1299",
				Description:  "Brass Desk Lamp, priced at ₹1299. Great choice when you want desk lamp.",
			},
			{
				ID:           "rug-2",
				Score:        0.31,
				Metadata:     models.Record{},
				PriceDisplay: "N/A",
			},
		},
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{" json ", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteRecommendations_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecommendations(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatalf("WriteRecommendations(json): %v", err)
	}
	var decoded map[string]any
	if err := gojson.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	results, ok := decoded["results"].([]any)
	if !ok || len(results) != 2 {
		t.Fatalf("results = %v, want 2 entries", decoded["results"])
	}
	first := results[0].(map[string]any)
	if first["id"] != "lamp-1" || first["price_display"] != "₹1299" {
		t.Errorf("first result = %v", first)
	}
	second := results[1].(map[string]any)
	if second["price"] != nil {
		t.Errorf("missing price should encode as null, got %v", second["price"])
	}
}

func TestWriteRecommendations_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecommendations(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatalf("WriteRecommendations(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"2 recommendation(s)", "12ms", "Rank: 1", "ID: lamp-1", "Brass Desk Lamp", "₹1299", "Rank: 2", "N/A"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
	if strings.Index(out, "lamp-1") > strings.Index(out, "rug-2") {
		t.Error("results should be printed in rank order")
	}
}

func TestWriteRecommendations_textEmpty(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.RecommendResponse{Results: []*models.Recommendation{}, Message: "No items indexed yet"}
	if err := WriteRecommendations(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "No items indexed yet" {
		t.Errorf("output = %q", got)
	}

	buf.Reset()
	_ = WriteRecommendations(&buf, &models.RecommendResponse{}, OutputText)
	if !strings.Contains(buf.String(), "No matching items") {
		t.Errorf("output without message = %q", buf.String())
	}
}

func TestWriteIngestResult(t *testing.T) {
	result := &models.UpsertResult{}
	result.Add(models.ItemResult{ID: "a", Status: models.ItemAccepted, Position: 0})
	result.Add(models.ItemResult{ID: "b", Status: models.ItemRejected, Reason: "no text to embed", Position: -1})

	var buf bytes.Buffer
	if err := WriteIngestResult(&buf, result, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Indexed 1 item(s), rejected 1") {
		t.Errorf("missing summary:\n%s", out)
	}
	if !strings.Contains(out, "rejected b: no text to embed") {
		t.Errorf("missing rejected item:\n%s", out)
	}
	if strings.Contains(out, "rejected a") {
		t.Errorf("accepted item listed as rejected:\n%s", out)
	}

	buf.Reset()
	if err := WriteIngestResult(&buf, result, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.UpsertResult
	if err := gojson.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Accepted != 1 || decoded.Rejected != 1 || len(decoded.Items) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteStatus_text(t *testing.T) {
	status := &models.StatusResponse{
		Index: models.IndexStats{
			Initialized: true, Dimension: 384, Rows: 5, LiveItems: 4, Superseded: 1,
			MetadataSize: 4, IndexType: "hnsw",
		},
		DiskUsageBytes: 2048,
		WatchedDirs:    []string{"/srv/catalogue"},
		Config:         map[string]any{"index_type": "hnsw", "max_k": 50},
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, status, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"initialized:        true", "dimension:          384", "live_items:         4", "superseded:         1", "disk_usage_bytes:   2048", "/srv/catalogue", "# configuration", "max_k:"} {
		if !strings.Contains(out, sub) {
			t.Errorf("status output missing %q:\n%s", sub, out)
		}
	}
}

func TestTruncateWords(t *testing.T) {
	if got := TruncateWords("one two three four", 2); got != "one two..." {
		t.Errorf("TruncateWords = %q", got)
	}
	if got := TruncateWords("one two", 5); got != "one two" {
		t.Errorf("TruncateWords short = %q", got)
	}
}
