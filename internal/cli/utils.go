// Package cli provides output formatting and the HTTP client used by the ruiji CLI.
package cli

import (
	"fmt"
	"io"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --format value. The empty string means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := gojson.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteRecommendations writes a recommendation response to w in the given format.
func WriteRecommendations(w io.Writer, response *models.RecommendResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	if len(response.Results) == 0 {
		msg := response.Message
		if msg == "" {
			msg = "No matching items"
		}
		fmt.Fprintln(w, msg)
		return nil
	}
	fmt.Fprintf(w, "\n%d recommendation(s) in %dms\n\n", len(response.Results), response.QueryTime)
	for i, rec := range response.Results {
		writeOneRecommendation(w, i+1, rec)
	}
	return nil
}

func writeOneRecommendation(w io.Writer, rank int, rec *models.Recommendation) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f | Price: %s\n", rank, rec.Score, rec.PriceDisplay)
	fmt.Fprintf(w, "ID: %s\n", rec.ID)
	if title := rec.Metadata.Get("title").Text(); title != "" {
		fmt.Fprintf(w, "Title: %s\n", title)
	}
	if rec.Description != "" {
		fmt.Fprintf(w, "\n%s\n", TruncateWords(rec.Description, 40))
	}
	fmt.Fprintln(w)
}

// WriteIngestResult writes an ingest batch outcome. Text output lists only rejected items.
func WriteIngestResult(w io.Writer, result *models.UpsertResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	fmt.Fprintf(w, "Indexed %d item(s), rejected %d\n", result.Accepted, result.Rejected)
	for _, it := range result.Items {
		if it.Status == models.ItemRejected {
			fmt.Fprintf(w, "  rejected %s: %s\n", it.ID, utils.Truncate(it.Reason, 120))
		}
	}
	return nil
}

// WriteStatus writes index state and configuration.
func WriteStatus(w io.Writer, status *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	st := status.Index
	fmt.Fprintf(w, "initialized:        %t\n", st.Initialized)
	fmt.Fprintf(w, "dimension:          %d\n", st.Dimension)
	fmt.Fprintf(w, "rows:               %d   # rows in the vector matrix\n", st.Rows)
	fmt.Fprintf(w, "live_items:         %d   # identifiers reachable by query\n", st.LiveItems)
	fmt.Fprintf(w, "superseded:         %d\n", st.Superseded)
	fmt.Fprintf(w, "metadata_records:   %d\n", st.MetadataSize)
	fmt.Fprintf(w, "index_type:         %s\n", st.IndexType)
	fmt.Fprintf(w, "disk_usage_bytes:   %d\n", status.DiskUsageBytes)
	if len(status.WatchedDirs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# watched directories")
		for _, d := range status.WatchedDirs {
			fmt.Fprintln(w, d)
		}
	}
	if len(status.Config) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		for _, key := range configKeys {
			if v, ok := status.Config[key]; ok {
				fmt.Fprintf(w, "%-20s%v\n", key+":", v)
			}
		}
	}
	return nil
}

// configKeys orders the configuration block of text status output.
var configKeys = []string{
	"data_dir",
	"metadata_backend",
	"compression",
	"index_type",
	"embedding_provider",
	"embedding_dimensions",
	"default_k",
	"max_k",
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
