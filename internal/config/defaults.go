package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/usr/local/var/ruiji/data/index"
	}
	if cfg.Storage.MetadataBackend == "" {
		cfg.Storage.MetadataBackend = "file"
	}
	if cfg.Storage.Compression == "" {
		cfg.Storage.Compression = "none"
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "flat"
	}
	if cfg.Index.HNSW.M == 0 {
		cfg.Index.HNSW.M = 16
	}
	if cfg.Index.HNSW.EfConstruction == 0 {
		cfg.Index.HNSW.EfConstruction = 200
	}
	if cfg.Index.HNSW.EfSearch == 0 {
		cfg.Index.HNSW.EfSearch = 64
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/ruiji/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Recommend.DefaultK == 0 {
		cfg.Recommend.DefaultK = 6
	}
	if cfg.Recommend.MaxK == 0 {
		cfg.Recommend.MaxK = 50
	}
	if cfg.Recommend.MinCandidates == 0 {
		cfg.Recommend.MinCandidates = 20
	}
	if cfg.Recommend.OverfetchFactor == 0 {
		cfg.Recommend.OverfetchFactor = 3
	}
	if cfg.Recommend.CurrencySymbol == "" {
		cfg.Recommend.CurrencySymbol = "₹"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".json", ".jsonl", ".csv"}
	}
	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = 500
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
