package models

// Match is a raw similarity hit with the item's metadata attached.
type Match struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	Metadata Record  `json:"metadata"`
}

// Recommendation is a reconciled, enriched match ready to return to callers.
// Price is nil when the item has no usable price.
type Recommendation struct {
	ID           string   `json:"id"`
	Score        float64  `json:"score"`
	Metadata     Record   `json:"metadata"`
	Price        *float64 `json:"price"`
	PriceDisplay string   `json:"price_display"`
	Description  string   `json:"generated_description"`
}

// RecommendRequest is the body of a recommendation request.
type RecommendRequest struct {
	Prompt string `json:"prompt"`
	K      int    `json:"k,omitempty"`
}

// RecommendResponse is the result of a recommendation request.
type RecommendResponse struct {
	Results   []*Recommendation `json:"results"`
	Message   string            `json:"message,omitempty"`
	Prompt    string            `json:"prompt,omitempty"`
	QueryTime int64             `json:"query_time_ms"`
}

// IngestRequest is the body of an ingest request.
type IngestRequest struct {
	Items []ItemInput `json:"items"`
}

// IngestResponse reports an ingest batch.
type IngestResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
	UpsertResult
}

// IndexStats describes the current state of the index.
type IndexStats struct {
	Initialized  bool   `json:"initialized"`
	Dimension    int    `json:"dimension"`
	Rows         int    `json:"rows"`
	LiveItems    int    `json:"live_items"`
	Superseded   int    `json:"superseded"`
	MetadataSize int    `json:"metadata_size"`
	IndexType    string `json:"index_type"`
}

// ItemResponse is the stored metadata of one item.
type ItemResponse struct {
	ID       string `json:"id"`
	Metadata Record `json:"metadata"`
}

// StatusResponse reports index state, disk usage and the effective configuration.
type StatusResponse struct {
	Index          IndexStats     `json:"index"`
	DiskUsageBytes int64          `json:"disk_usage_bytes"`
	WatchedDirs    []string       `json:"watched_directories,omitempty"`
	Config         map[string]any `json:"config"`
}

// BrandCount is a brand and its item count.
type BrandCount struct {
	Brand string `json:"brand"`
	Count int    `json:"count"`
}

// CategoryCount is a category and its item count.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// AnalyticsSummary describes the indexed catalogue. AvgPrice is nil when no item has a
// numeric price.
type AnalyticsSummary struct {
	TotalProducts int             `json:"total_products"`
	AvgPrice      *float64        `json:"avg_price"`
	TopBrands     []BrandCount    `json:"top_brands"`
	TopCategories []CategoryCount `json:"top_categories"`
}
