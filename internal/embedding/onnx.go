//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	rjerr "github.com/hyperjump/ruiji/pkg/errors"
)

// Tensor names of sentence-transformers exports.
var (
	onnxInputs  = []string{"input_ids", "attention_mask", "token_type_ids"}
	onnxOutputs = []string{"last_hidden_state"}
)

// ONNXEmbedder runs a sentence-transformers model (all-MiniLM-L6-v2 and friends) through
// ONNX Runtime and mean-pools the token states into one L2-normalised vector. It needs cgo
// and the onnxruntime shared library. One session serves all calls, one at a time.
type ONNXEmbedder struct {
	mu        sync.Mutex
	session   *ort.AdvancedSession
	tokenizer *SimpleTokenizer
	dims      int
	maxTokens int

	ids, mask, types *ort.Tensor[int64]
	hidden           *ort.Tensor[float32] // 1 × maxTokens × dims
}

// NewONNXEmbedder loads the model at modelPath. dimensions is the model's hidden size.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("embedding.model_path is required for the onnx provider")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, rjerr.Wrap(err, rjerr.CodeEmbeddingUpstreamFailure, "initialise onnx runtime")
		}
	}

	e := &ONNXEmbedder{tokenizer: &SimpleTokenizer{}, dims: dimensions, maxTokens: maxTokens}
	if err := e.allocate(); err != nil {
		_ = e.Close()
		return nil, err
	}
	session, err := ort.NewAdvancedSession(modelPath, onnxInputs, onnxOutputs,
		[]ort.ArbitraryTensor{e.ids, e.mask, e.types},
		[]ort.ArbitraryTensor{e.hidden},
		nil)
	if err != nil {
		_ = e.Close()
		return nil, rjerr.Wrap(err, rjerr.CodeEmbeddingUpstreamFailure, "create onnx session",
			rjerr.Field("model_path", modelPath))
	}
	e.session = session
	return e, nil
}

func (e *ONNXEmbedder) allocate() error {
	seq := ort.NewShape(1, int64(e.maxTokens))
	var err error
	if e.ids, err = ort.NewEmptyTensor[int64](seq); err != nil {
		return fmt.Errorf("input_ids tensor: %w", err)
	}
	if e.mask, err = ort.NewEmptyTensor[int64](seq); err != nil {
		return fmt.Errorf("attention_mask tensor: %w", err)
	}
	if e.types, err = ort.NewEmptyTensor[int64](seq); err != nil {
		return fmt.Errorf("token_type_ids tensor: %w", err)
	}
	if e.hidden, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.maxTokens), int64(e.dims))); err != nil {
		return fmt.Errorf("output tensor: %w", err)
	}
	return nil
}

// Embed runs the model on text. Text without words still yields the [CLS] [SEP] encoding.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, rjerr.New(rjerr.CodeEmbeddingUpstreamFailure, "onnx embedder is closed")
	}

	mask := e.mask.GetData()
	e.tokenizer.TokenizeInto(text, e.ids.GetData(), mask)
	if err := e.session.Run(); err != nil {
		return nil, rjerr.Wrap(err, rjerr.CodeEmbeddingUpstreamFailure, "onnx inference")
	}
	return meanPool(e.hidden.GetData(), mask, e.dims), nil
}

// EmbedBatch embeds each text in turn.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int { return e.dims }

// Close releases the session and tensors. It is safe to call more than once.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for _, t := range []*ort.Tensor[int64]{e.ids, e.mask, e.types} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if e.hidden != nil {
		_ = e.hidden.Destroy()
	}
	e.ids, e.mask, e.types, e.hidden = nil, nil, nil, nil
	return err
}
