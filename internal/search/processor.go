package search

import (
	"strings"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/models"
	rjerr "github.com/hyperjump/ruiji/pkg/errors"
)

// ProcessRequest validates req and applies defaults: the prompt is trimmed and must not
// be empty, a missing or non-positive k becomes DefaultK, and k is capped at MaxK.
func ProcessRequest(req *models.RecommendRequest, cfg *config.RecommendConfig) error {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return rjerr.New(rjerr.CodeRecommendInputInvalid, "prompt must not be empty")
	}
	if req.K <= 0 {
		req.K = cfg.DefaultK
	}
	if cfg.MaxK > 0 && req.K > cfg.MaxK {
		req.K = cfg.MaxK
	}
	return nil
}

// candidates is how many raw matches to fetch for k results.
func candidates(k int, cfg *config.RecommendConfig) int {
	return max(cfg.MinCandidates, k*max(cfg.OverfetchFactor, 1))
}
