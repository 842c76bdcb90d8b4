package search

import (
	"regexp"
	"strings"

	"github.com/hyperjump/ruiji/internal/models"
)

// Describer writes a short display text for a recommended item.
type Describer interface {
	Describe(meta models.Record, priceDisplay, prompt string) string
}

// TemplateDescriber builds "<title> by <brand>, priced at <price>. Great choice when you
// want <prompt>." from the item metadata. Missing brand or price drop their clause.
type TemplateDescriber struct{}

// Describe implements Describer.
func (TemplateDescriber) Describe(meta models.Record, priceDisplay, prompt string) string {
	title := strings.TrimSpace(meta.Get("title").Text())
	if title == "" {
		title = "Product"
	}
	var b strings.Builder
	b.WriteString(title)
	if brand := strings.TrimSpace(meta.Get("brand").Text()); brand != "" {
		b.WriteString(" by ")
		b.WriteString(brand)
	}
	if priceDisplay != "" && priceDisplay != NotAvailable {
		b.WriteString(", priced at ")
		b.WriteString(priceDisplay)
	}
	b.WriteString(". Great choice when you want ")
	b.WriteString(prompt)
	b.WriteString(".")
	return b.String()
}

var nanWord = regexp.MustCompile(`(?i)\bnan\b`)

// describe runs d and replaces any stray "nan" word with N/A. A nil Describer
// falls back to TemplateDescriber.
func describe(d Describer, meta models.Record, priceDisplay, prompt string) string {
	if d == nil {
		d = TemplateDescriber{}
	}
	return nanWord.ReplaceAllString(d.Describe(meta, priceDisplay, prompt), NotAvailable)
}
