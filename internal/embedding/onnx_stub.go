//go:build !cgo
// +build !cgo

package embedding

import (
	"context"

	rjerr "github.com/hyperjump/ruiji/pkg/errors"
)

// ONNXEmbedder is unavailable in builds without cgo; use the hash provider instead.
type ONNXEmbedder struct{}

func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	return nil, errNoONNX(modelPath)
}

func (*ONNXEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, errNoONNX("") }

func (*ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errNoONNX("")
}

func (*ONNXEmbedder) Dimensions() int { return 0 }
func (*ONNXEmbedder) Close() error    { return nil }

func errNoONNX(modelPath string) error {
	return rjerr.New(rjerr.CodeEmbeddingUpstreamFailure,
		"onnx provider needs a cgo build with onnxruntime installed",
		rjerr.Field("model", modelPath))
}
