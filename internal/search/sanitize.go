package search

import (
	"math"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/pkg/utils"
)

// SanitizeFloat replaces NaN and ±Inf with 0.
func SanitizeFloat(f float64) float64 {
	return utils.FiniteOr(f, 0)
}

// SanitizeAny walks v and replaces every non-finite float with 0. Maps and slices are
// copied element-wise; all other values pass through unchanged.
func SanitizeAny(v any) any {
	switch x := v.(type) {
	case float64:
		return SanitizeFloat(x)
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return float32(0)
		}
		return x
	case *float64:
		if x == nil {
			return x
		}
		f := SanitizeFloat(*x)
		return &f
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = SanitizeAny(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = SanitizeAny(e)
		}
		return out
	case []float64:
		out := make([]float64, len(x))
		for i, e := range x {
			out[i] = SanitizeFloat(e)
		}
		return out
	case models.Value:
		return x.Sanitized()
	case models.Record:
		return x.Sanitized()
	case models.Match:
		x.Score = SanitizeFloat(x.Score)
		x.Metadata = x.Metadata.Sanitized()
		return x
	case *models.Recommendation:
		return SanitizeRecommendation(x)
	default:
		return v
	}
}

// SanitizeRecommendation returns a copy of r with every float made finite.
func SanitizeRecommendation(r *models.Recommendation) *models.Recommendation {
	if r == nil {
		return nil
	}
	out := *r
	out.Score = SanitizeFloat(r.Score)
	out.Metadata = r.Metadata.Sanitized()
	if r.Price != nil {
		p := SanitizeFloat(*r.Price)
		out.Price = &p
	}
	return &out
}
