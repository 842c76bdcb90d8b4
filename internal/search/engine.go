package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/index"
	"github.com/hyperjump/ruiji/internal/models"
	rjerr "github.com/hyperjump/ruiji/pkg/errors"
	"github.com/hyperjump/ruiji/pkg/utils"
)

// NoItemsMessage is returned with an empty result when nothing matched.
const NoItemsMessage = "No items indexed yet. Upload dataset first."

// Engine answers recommendation prompts: embed, query the index, reconcile, enrich.
type Engine struct {
	manager   *index.Manager
	embedder  embedding.Embedder
	describer Describer
	config    *config.RecommendConfig
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDescriber replaces the default TemplateDescriber.
func WithDescriber(d Describer) EngineOption {
	return func(e *Engine) {
		if d != nil {
			e.describer = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = utils.OrNop(l) }
}

// NewEngine creates a recommendation engine with the given dependencies.
func NewEngine(manager *index.Manager, embedder embedding.Embedder, cfg *config.RecommendConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		manager:   manager,
		embedder:  embedder,
		describer: TemplateDescriber{},
		config:    cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recommend returns up to k recommendations for prompt. k <= 0 uses the configured default.
func (e *Engine) Recommend(ctx context.Context, prompt string, k int) (*models.RecommendResponse, error) {
	startTime := time.Now()
	req := &models.RecommendRequest{Prompt: prompt, K: k}
	if err := ProcessRequest(req, e.config); err != nil {
		return nil, err
	}

	queryEmbedding, err := e.embedder.Embed(ctx, req.Prompt)
	if err != nil {
		return nil, rjerr.Wrap(err, rjerr.CodeEmbeddingUpstreamFailure, "failed to generate embedding")
	}
	if len(queryEmbedding) == 0 {
		return nil, rjerr.New(rjerr.CodeEmbeddingUpstreamFailure, "embedder returned an empty vector")
	}

	if err := e.manager.Initialize(ctx, len(queryEmbedding)); err != nil {
		return nil, err
	}

	raw, err := e.manager.Query(ctx, queryEmbedding, candidates(req.K, e.config))
	if err != nil {
		return nil, err
	}

	response := &models.RecommendResponse{
		Results: []*models.Recommendation{},
		Prompt:  req.Prompt,
	}
	if len(raw) == 0 {
		response.Message = NoItemsMessage
		response.QueryTime = time.Since(startTime).Milliseconds()
		return response, nil
	}

	matches := Reconcile(raw, req.K)
	response.Results = Enrich(matches, req.Prompt, e.config.CurrencySymbol, e.describer)
	response.QueryTime = time.Since(startTime).Milliseconds()
	e.logger.Debug("recommend",
		zap.String("prompt", utils.Truncate(req.Prompt, 80)),
		zap.Int("k", req.K),
		zap.Int("candidates", len(raw)),
		zap.Int("results", len(response.Results)),
	)
	return response, nil
}
