package indexer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/hyperjump/ruiji/internal/models"
)

// Header names recognised in CSV item files, compared case-insensitively. The first
// matching column of each list wins.
var (
	csvIDColumns          = []string{"uniq_id", "id"}
	csvTitleColumns       = []string{"title"}
	csvDescriptionColumns = []string{"description"}
	csvCategoryColumns    = []string{"categories", "category"}
	csvTextColumns        = []string{"text"}
)

// decodeCSV reads a header row and one item per following row. Every non-empty cell is
// kept as metadata under its header; cells that read as finite numbers are stored as numbers.
func decodeCSV(r io.Reader) ([]models.ItemInput, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	names := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		names[i] = strings.TrimSpace(h)
	}
	col := func(candidates []string) int {
		for _, c := range candidates {
			for i, n := range names {
				if strings.EqualFold(n, c) {
					return i
				}
			}
		}
		return -1
	}
	idCol, titleCol, descCol := col(csvIDColumns), col(csvTitleColumns), col(csvDescriptionColumns)
	catCol, textCol := col(csvCategoryColumns), col(csvTextColumns)

	var items []models.ItemInput
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		cell := func(i int) string {
			if i < 0 || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		it := models.ItemInput{
			ID:          cell(idCol),
			Title:       cell(titleCol),
			Description: cell(descCol),
			Categories:  cell(catCol),
			Text:        cell(textCol),
			Metadata:    make(models.Record, len(names)),
		}
		for i, name := range names {
			if v := cell(i); v != "" && name != "" {
				it.Metadata[name] = csvValue(v)
			}
		}
		items = append(items, it)
	}
}

// csvValue stores numeric-looking cells as numbers. Integers with a leading zero, such as
// codes and zip codes, stay strings.
func csvValue(s string) models.Value {
	if len(s) > 1 && s[0] == '0' && s[1] != '.' {
		return models.String(s)
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return models.String(s)
	}
	return models.Number(n)
}
