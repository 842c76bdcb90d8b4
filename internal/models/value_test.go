package models

import (
	"math"
	"testing"

	gojson "github.com/goccy/go-json"
)

func TestFromAny(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Kind
	}{
		{"nil", nil, KindNull},
		{"string", "hello", KindString},
		{"float", 1.5, KindNumber},
		{"int", 3, KindNumber},
		{"bool", true, KindBool},
		{"json number", gojson.Number("12.5"), KindNumber},
		{"nested", map[string]any{"a": 1}, KindString},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromAny(tt.in).Kind; got != tt.want {
				t.Errorf("FromAny(%v).Kind = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestValue_JSONRoundTrip(t *testing.T) {
	in := `{"title":"Lamp","price":1299,"rating":4.5,"stock":null,"sale":false,"tags":["a","b"]}`
	var r Record
	if err := gojson.Unmarshal([]byte(in), &r); err != nil {
		t.Fatal(err)
	}
	if s, _ := r["title"].AsString(); s != "Lamp" {
		t.Errorf("title = %q", s)
	}
	if n, ok := r["price"].AsNumber(); !ok || n != 1299 {
		t.Errorf("price = %v, %v", n, ok)
	}
	if !r["stock"].IsNull() {
		t.Error("stock should be null")
	}
	if s, _ := r["tags"].AsString(); s != `["a","b"]` {
		t.Errorf("tags = %q", s)
	}
	out, err := gojson.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := gojson.Unmarshal(out, &back); err != nil {
		t.Fatal(err)
	}
	if back["price"].(float64) != 1299 || back["stock"] != nil || back["sale"] != false {
		t.Errorf("round trip lost values: %v", back)
	}
}

func TestValue_MarshalNonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		b, err := Number(f).MarshalJSON()
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != "0" {
			t.Errorf("MarshalJSON(%v) = %s, want 0", f, b)
		}
	}
}

func TestRecord_GetAndSanitized(t *testing.T) {
	r := Record{"score": Number(math.NaN()), "title": String("x")}
	if !r.Get("missing").IsNull() {
		t.Error("missing key should be Null")
	}
	s := r.Sanitized()
	if n, _ := s["score"].AsNumber(); n != 0 {
		t.Errorf("sanitized score = %v", n)
	}
	if n, _ := r["score"].AsNumber(); !math.IsNaN(n) {
		t.Error("Sanitized must not mutate the receiver")
	}
	if s["title"] != String("x") {
		t.Error("non-numeric fields must pass through")
	}
}

func TestValue_Text(t *testing.T) {
	if Number(120).Text() != "120" {
		t.Errorf("got %q", Number(120).Text())
	}
	if Number(99.5).Text() != "99.5" {
		t.Errorf("got %q", Number(99.5).Text())
	}
	if Null().Text() != "" {
		t.Error("null text should be empty")
	}
}

func TestUpsertResult_AcceptedIDs(t *testing.T) {
	var r UpsertResult
	r.Add(ItemResult{ID: "a", Status: ItemAccepted, Position: 0})
	r.Add(ItemResult{ID: "b", Status: ItemRejected, Reason: "dimension mismatch", Position: -1})
	r.Add(ItemResult{ID: "c", Status: ItemAccepted, Position: 1})
	if r.Accepted != 2 || r.Rejected != 1 {
		t.Fatalf("counts: %+v", r)
	}
	ids := r.AcceptedIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Errorf("AcceptedIDs = %v", ids)
	}
}
