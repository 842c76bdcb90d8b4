//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"unsafe"

	rjerr "github.com/hyperjump/ruiji/pkg/errors"
)

// faissAddBatch bounds the rows staged in one contiguous buffer per faiss_Index_add call.
const faissAddBatch = 8192

// FAISSIndex keeps a copy of the matrix rows in a FAISS IndexFlatIP. FAISS numbers
// vectors in insertion order from zero, so a FAISS label is a matrix position.
type FAISSIndex struct {
	mu  sync.RWMutex
	ptr *C.FaissIndex
	dim int
}

// NewFAISSIndex creates an empty IndexFlatIP of the given dimension.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, rjerr.New(rjerr.CodeIndexDimensionInvalid, "faiss dimension must be positive",
			rjerr.Field("dimension", dimensions))
	}
	var flat *C.FaissIndexFlatIP
	if err := faissCall(C.faiss_IndexFlatIP_new_with(&flat, C.idx_t(dimensions)), "create index"); err != nil {
		return nil, err
	}
	return &FAISSIndex{ptr: (*C.FaissIndex)(flat), dim: dimensions}, nil
}

// faissCall converts a FAISS C API return code into an error carrying the library's message.
func faissCall(ret C.int, op string) error {
	if ret == 0 {
		return nil
	}
	msg := "unknown error"
	if cErr := C.faiss_get_last_error(); cErr != nil {
		msg = C.GoString(cErr)
	}
	return rjerr.Errorf(rjerr.CodeVectorAcceleratorUnavailable, "faiss %s: %s", op, msg)
}

func (f *FAISSIndex) Type() string { return string(IndexTypeFAISS) }

func (f *FAISSIndex) checkDim(n int, what string) error {
	if n != f.dim {
		return rjerr.New(rjerr.CodeIndexInputInvalid, what+" dimension mismatch",
			rjerr.Field("got", n), rjerr.Field("expected", f.dim))
	}
	return nil
}

// Add appends vectors in batches, staging each batch in one row-major buffer.
func (f *FAISSIndex) Add(ctx context.Context, vectors [][]float32) error {
	for _, v := range vectors {
		if err := f.checkDim(len(v), "vector"); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]float32, 0, min(len(vectors), faissAddBatch)*f.dim)
	for start := 0; start < len(vectors); start += faissAddBatch {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := vectors[start:min(start+faissAddBatch, len(vectors))]
		buf = buf[:0]
		for _, v := range batch {
			buf = append(buf, v...)
		}
		ret := C.faiss_Index_add(f.ptr, C.idx_t(len(batch)), (*C.float)(unsafe.Pointer(&buf[0])))
		if err := faissCall(ret, "add"); err != nil {
			return err
		}
	}
	return nil
}

// Search runs an exact inner product search for query.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if err := f.checkDim(len(query), "query"); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	k = min(k, f.lenLocked())
	if k <= 0 {
		return nil, nil
	}

	scores := make([]float32, k)
	labels := make([]C.idx_t, k)
	ret := C.faiss_Index_search(f.ptr, 1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&scores[0])),
		&labels[0])
	if err := faissCall(ret, "search"); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, k)
	for i, label := range labels {
		// FAISS pads with -1 when fewer than k vectors qualify.
		if label < 0 {
			continue
		}
		hits = append(hits, Hit{Position: uint32(label), Score: finiteScore(float64(scores[i]))})
	}
	sortHits(hits)
	return hits, nil
}

func (f *FAISSIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := faissCall(C.faiss_write_index_fname(f.ptr, cPath), "write index"); err != nil {
		return rjerr.Wrap(err, rjerr.CodeIndexPersistFailure, "save faiss index", rjerr.Field("path", path))
	}
	return nil
}

// Load swaps in the index stored at path. A missing file keeps the current index.
func (f *FAISSIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	var loaded *C.FaissIndex
	if err := faissCall(C.faiss_read_index_fname(cPath, 0, &loaded), "read index"); err != nil {
		return rjerr.Wrap(err, rjerr.CodeIndexLoadFailure, "load faiss index", rjerr.Field("path", path))
	}
	if d := int(C.faiss_Index_d(loaded)); d != f.dim {
		C.faiss_Index_free(loaded)
		return rjerr.New(rjerr.CodeIndexLoadFailure, "faiss index has wrong dimension",
			rjerr.Field("path", path), rjerr.Field("got", d), rjerr.Field("expected", f.dim))
	}

	f.mu.Lock()
	old := f.ptr
	f.ptr = loaded
	f.mu.Unlock()
	if old != nil {
		C.faiss_Index_free(old)
	}
	return nil
}

func (f *FAISSIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lenLocked()
}

func (f *FAISSIndex) lenLocked() int {
	if f.ptr == nil {
		return 0
	}
	return int(C.faiss_Index_ntotal(f.ptr))
}

func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ptr != nil {
		C.faiss_Index_free(f.ptr)
		f.ptr = nil
	}
	return nil
}
