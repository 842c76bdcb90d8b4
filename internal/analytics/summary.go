// Package analytics summarises the indexed catalogue from its metadata records.
package analytics

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/pkg/utils"
)

// TopN is how many brands and categories a summary lists.
const TopN = 10

// unknown stands in for a missing value once some item carries the field.
const unknown = "Unknown"

// Metadata keys read by the summary. Categories come from the first of categoryKeys
// that any record carries.
var (
	priceKey     = "price"
	brandKey     = "brand"
	categoryKeys = []string{"categories", "category", "type"}
)

// Source iterates metadata records.
type Source interface {
	RangeMetadata(ctx context.Context, fn func(id string, rec models.Record) bool) error
}

// Summarize counts the records in src, averages their numeric prices and ranks the most
// common brands and categories.
func Summarize(ctx context.Context, src Source) (*models.AnalyticsSummary, error) {
	var (
		total, priced int
		priceSum      float64
		brands        = newCounter()
		categories    = make(map[string]*counter, len(categoryKeys))
	)
	for _, k := range categoryKeys {
		categories[k] = newCounter()
	}

	err := src.RangeMetadata(ctx, func(_ string, rec models.Record) bool {
		total++
		if p, ok := price(rec.Get(priceKey)); ok {
			priceSum += p
			priced++
		}
		brands.add(rec, brandKey)
		for _, k := range categoryKeys {
			categories[k].add(rec, k)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	out := &models.AnalyticsSummary{
		TotalProducts: total,
		TopBrands:     []models.BrandCount{},
		TopCategories: []models.CategoryCount{},
	}
	if priced > 0 {
		avg := utils.Round(priceSum/float64(priced), 2)
		out.AvgPrice = &avg
	}
	for _, e := range brands.top(total, TopN) {
		out.TopBrands = append(out.TopBrands, models.BrandCount{Brand: e.value, Count: e.count})
	}
	for _, k := range categoryKeys {
		if c := categories[k]; c.present > 0 {
			for _, e := range c.top(total, TopN) {
				out.TopCategories = append(out.TopCategories, models.CategoryCount{Category: e.value, Count: e.count})
			}
			break
		}
	}
	return out, nil
}

// price reads a numeric price. Strings may carry a currency sign and thousands separators.
func price(v models.Value) (float64, bool) {
	if n, ok := v.AsNumber(); ok {
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	}
	s, ok := v.AsString()
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£¥₹")
	s = strings.ReplaceAll(s, ",", "")
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

type entry struct {
	value string
	count int
}

// counter tallies the values of one metadata field.
type counter struct {
	counts  map[string]int
	present int // records carrying the field
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(rec models.Record, key string) {
	v, ok := rec[key]
	if !ok || v.IsNull() {
		return
	}
	text := strings.TrimSpace(v.Text())
	if text == "" {
		return
	}
	c.present++
	c.counts[text]++
}

// top returns the n most common values, most common first and ties by value. Records
// without the field count as Unknown once any record has it.
func (c *counter) top(total, n int) []entry {
	if c.present == 0 {
		return nil
	}
	entries := make([]entry, 0, len(c.counts)+1)
	for v, k := range c.counts {
		entries = append(entries, entry{value: v, count: k})
	}
	if missing := total - c.present; missing > 0 {
		if i := slices.IndexFunc(entries, func(e entry) bool { return e.value == unknown }); i >= 0 {
			entries[i].count += missing
		} else {
			entries = append(entries, entry{value: unknown, count: missing})
		}
	}
	slices.SortFunc(entries, func(a, b entry) int {
		if a.count != b.count {
			return cmp.Compare(b.count, a.count)
		}
		return cmp.Compare(a.value, b.value)
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
