//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"

	rjerr "github.com/hyperjump/ruiji/pkg/errors"
)

// FAISSIndex stands in for the FAISS-backed index in builds without -tags=faiss.
// Every operation fails with vector.accelerator.unavailable.
type FAISSIndex struct{}

func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	return nil, errFAISSUnavailable()
}

func (*FAISSIndex) Type() string { return string(IndexTypeFAISS) }

func (*FAISSIndex) Add(context.Context, [][]float32) error { return errFAISSUnavailable() }

func (*FAISSIndex) Search(context.Context, []float32, int) ([]Hit, error) {
	return nil, errFAISSUnavailable()
}

func (*FAISSIndex) Save(string) error { return errFAISSUnavailable() }
func (*FAISSIndex) Load(string) error { return errFAISSUnavailable() }
func (*FAISSIndex) Len() int          { return 0 }
func (*FAISSIndex) Close() error      { return nil }

func errFAISSUnavailable() error {
	return rjerr.New(rjerr.CodeVectorAcceleratorUnavailable,
		"faiss index not compiled in: rebuild with -tags=faiss and libfaiss_c installed")
}
