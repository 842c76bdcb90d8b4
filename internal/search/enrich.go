package search

import (
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/pkg/utils"
)

// scorePlaces is the number of decimals scores are rounded to.
const scorePlaces = 6

// Enrich turns reconciled matches into recommendations: it parses the price, renders
// its display string, writes a description and rounds the score. Every result is
// sanitized before it is returned.
func Enrich(matches []models.Match, prompt, currency string, d Describer) []*models.Recommendation {
	out := make([]*models.Recommendation, 0, len(matches))
	for _, m := range matches {
		meta := m.Metadata
		if meta == nil {
			meta = models.Record{}
		}
		price := ParsePrice(meta.Get(PriceField))
		display := FormatPrice(price, currency)
		rec := &models.Recommendation{
			ID:           m.ID,
			Score:        utils.Round(SanitizeFloat(m.Score), scorePlaces),
			Metadata:     meta,
			Price:        price,
			PriceDisplay: display,
			Description:  describe(d, meta, display, prompt),
		}
		out = append(out, SanitizeRecommendation(rec))
	}
	return out
}
