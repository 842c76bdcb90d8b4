// Package indexer turns ingest items into embeddings and upserts them into the index.
package indexer

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/index"
	"github.com/hyperjump/ruiji/internal/models"
	rjerr "github.com/hyperjump/ruiji/pkg/errors"
	"github.com/hyperjump/ruiji/pkg/utils"
)

// Indexer embeds ingest items and writes them through the index manager.
type Indexer struct {
	manager  *index.Manager
	embedder embedding.Embedder
	logger   *zap.Logger

	mu    sync.Mutex
	files map[string]fileStamp // last ingested state per absolute path
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for ingest events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = utils.OrNop(l) }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(manager *index.Manager, embedder embedding.Embedder, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		manager:  manager,
		embedder: embedder,
		logger:   zap.NewNop(),
		files:    make(map[string]fileStamp),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Metadata fields filled from the item's text fields when not set explicitly.
const (
	metaKeyTitle       = "title"
	metaKeyDescription = "description"
	metaKeyCategories  = "categories"
)

// ItemText returns the text embedded for an item: Text when set, otherwise
// "title . description . categories" with empty parts left out.
func ItemText(in *models.ItemInput) string {
	if t := Preprocess(in.Text); t != "" {
		return t
	}
	return Preprocess(utils.JoinNonEmpty(" . ", in.Title, in.Description, in.Categories))
}

// Ingest embeds and upserts items. Items without an id get a new UUID; items that carry an
// embedding are stored as given. Items that cannot be embedded, or whose embedding does not
// fit the index dimension, are reported as rejected and the batch continues. An unbound
// index takes its dimension from the embedder, never from a client-supplied embedding
// unless the embedder cannot say. It is an ingest.batch.invalid error when the batch is
// empty or no item could be indexed.
func (idx *Indexer) Ingest(ctx context.Context, inputs []models.ItemInput) (*models.UpsertResult, error) {
	if len(inputs) == 0 {
		return nil, rjerr.New(rjerr.CodeIngestBatchInvalid, "no items to ingest")
	}

	ids := make([]string, len(inputs))
	reasons := make([]string, len(inputs))
	items := make([]models.Item, 0, len(inputs))
	embedded := 0 // dimension of the first vector the embedder produced
	for i := range inputs {
		in := &inputs[i]
		ids[i] = strings.TrimSpace(in.ID)
		if ids[i] == "" {
			ids[i] = uuid.New().String()
		}

		vec, reason := idx.embed(ctx, in)
		if reason != "" {
			reasons[i] = reason
			idx.logger.Warn("item skipped", zap.String("id", ids[i]), zap.String("reason", reason))
			continue
		}
		if embedded == 0 && len(in.Embedding) == 0 {
			embedded = len(vec)
		}
		items = append(items, models.Item{ID: ids[i], Embedding: vec, Metadata: itemMetadata(in)})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, rjerr.New(rjerr.CodeIngestBatchInvalid, "no items could be embedded",
			rjerr.Field("items", len(inputs)))
	}

	if err := idx.manager.Initialize(ctx, idx.dimension(embedded, items)); err != nil {
		return nil, err
	}
	upserted, err := idx.manager.Upsert(ctx, items)
	if err != nil {
		return nil, err
	}

	result := &models.UpsertResult{Items: make([]models.ItemResult, 0, len(inputs))}
	j := 0
	for i := range inputs {
		if reasons[i] != "" {
			result.Add(models.ItemResult{ID: ids[i], Status: models.ItemRejected, Reason: reasons[i], Position: -1})
			continue
		}
		result.Add(upserted.Items[j])
		j++
	}
	if result.Accepted == 0 {
		return nil, rjerr.New(rjerr.CodeIngestBatchInvalid, "no items could be indexed",
			rjerr.Field("items", len(inputs)),
			rjerr.Field("first_reason", result.Items[0].Reason))
	}
	idx.logger.Debug("ingest batch done",
		zap.Int("items", len(inputs)),
		zap.Int("accepted", result.Accepted),
		zap.Int("rejected", result.Rejected))
	return result, nil
}

// dimension picks the dimension to bind: the index's own, then the embedder's output,
// then the embedder's declared size. A batch of client embeddings decides only when the
// embedder reports no size.
func (idx *Indexer) dimension(embedded int, items []models.Item) int {
	if d := idx.manager.Dimension(); d > 0 {
		return d
	}
	if embedded > 0 {
		return embedded
	}
	if d := idx.embedder.Dimensions(); d > 0 {
		return d
	}
	return len(items[0].Embedding)
}

// embed returns the item's embedding or the reason it has none.
func (idx *Indexer) embed(ctx context.Context, in *models.ItemInput) ([]float32, string) {
	if len(in.Embedding) > 0 {
		return in.Embedding, ""
	}
	text := ItemText(in)
	if text == "" {
		return nil, "no text to embed"
	}
	vec, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return nil, "embedding failed: " + err.Error()
	}
	if len(vec) == 0 {
		return nil, "embedding failed: empty vector"
	}
	return vec, ""
}

// itemMetadata is the item's metadata with title, description and categories filled in
// from the text fields unless already present.
func itemMetadata(in *models.ItemInput) models.Record {
	meta := in.Metadata.Clone()
	for key, v := range map[string]string{
		metaKeyTitle:       in.Title,
		metaKeyDescription: in.Description,
		metaKeyCategories:  in.Categories,
	} {
		if _, ok := meta[key]; ok || v == "" {
			continue
		}
		meta[key] = models.String(v)
	}
	return meta
}
