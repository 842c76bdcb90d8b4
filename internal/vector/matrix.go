package vector

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how the matrix payload is stored on disk.
type Compression uint8

const (
	// CompressionNone stores raw little-endian float32s.
	CompressionNone Compression = 0
	// CompressionLZ4 stores an LZ4 block.
	CompressionLZ4 Compression = 1
	// CompressionZSTD stores a zstd frame.
	CompressionZSTD Compression = 2
)

// ParseCompression maps a config name to a Compression. The empty string means none.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression: %s (supported: none, lz4, zstd)", name)
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

var matrixMagic = [4]byte{'R', 'J', 'M', 'X'}

const matrixVersion uint32 = 1

// MaxDimension is the widest row a Matrix accepts.
const MaxDimension = 1 << 16

// lz4MaxRatio bounds how far an LZ4 block can expand.
const lz4MaxRatio = 255

// ErrCorruptMatrix is returned when a matrix file cannot be decoded.
var ErrCorruptMatrix = errors.New("corrupt matrix file")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Matrix is a row-major rows×dim float32 matrix. Rows are only appended or truncated.
// It is not safe for concurrent mutation; the owning store serialises writers.
type Matrix struct {
	dim  int
	data []float32
}

// NewMatrix returns an empty 0×dim matrix.
func NewMatrix(dim int) (*Matrix, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if dim > MaxDimension {
		return nil, fmt.Errorf("dimensions %d exceed %d", dim, MaxDimension)
	}
	return &Matrix{dim: dim}, nil
}

// Dim returns the row length.
func (m *Matrix) Dim() int { return m.dim }

// Rows returns the number of rows.
func (m *Matrix) Rows() int {
	if m == nil || m.dim == 0 {
		return 0
	}
	return len(m.data) / m.dim
}

// Row returns row i without copying. Callers must not modify it.
func (m *Matrix) Row(i int) []float32 {
	return m.data[i*m.dim : (i+1)*m.dim : (i+1)*m.dim]
}

// Append adds rows in order. Every row must have length Dim.
func (m *Matrix) Append(rows ...[]float32) error {
	for _, r := range rows {
		if len(r) != m.dim {
			return fmt.Errorf("row dimension mismatch: got %d, expected %d", len(r), m.dim)
		}
	}
	for _, r := range rows {
		m.data = append(m.data, r...)
	}
	return nil
}

// Truncate drops every row at or after n.
func (m *Matrix) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < m.Rows() {
		m.data = m.data[:n*m.dim]
	}
}

// Encode writes the matrix as:
//
//	[4B magic "RJMX"] [4B version] [1B compression] [4B rows] [4B dim]
//	[4B payload length] [payload]
//
// The uncompressed payload is rows*dim little-endian float32s.
func (m *Matrix) Encode(w io.Writer, c Compression) error {
	raw := make([]byte, len(m.data)*4)
	for i, v := range m.data {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}

	payload, c, err := compressPayload(raw, c)
	if err != nil {
		return fmt.Errorf("compress matrix: %w", err)
	}

	le := binary.LittleEndian
	if _, err := w.Write(matrixMagic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	for _, v := range []any{matrixVersion, uint8(c), uint32(m.Rows()), uint32(m.dim), uint32(len(payload))} {
		if err := binary.Write(w, le, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// DecodeMatrix reads a matrix written by Encode.
func DecodeMatrix(r io.Reader) (*Matrix, error) {
	le := binary.LittleEndian
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: read magic: %v", ErrCorruptMatrix, err)
	}
	if magic != matrixMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptMatrix, magic[:])
	}
	var (
		version          uint32
		comp             uint8
		rows, dim, psize uint32
	)
	for _, v := range []any{&version, &comp, &rows, &dim, &psize} {
		if err := binary.Read(r, le, v); err != nil {
			return nil, fmt.Errorf("%w: read header: %v", ErrCorruptMatrix, err)
		}
	}
	if version != matrixVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptMatrix, version)
	}
	if dim == 0 || dim > MaxDimension {
		return nil, fmt.Errorf("%w: dimension %d", ErrCorruptMatrix, dim)
	}
	raw64 := uint64(rows) * uint64(dim) * 4
	if raw64 > math.MaxInt {
		return nil, fmt.Errorf("%w: %d rows of %d do not fit in memory", ErrCorruptMatrix, rows, dim)
	}
	rawSize := int(raw64)
	if err := checkPayloadSize(Compression(comp), int(psize), rawSize); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptMatrix, err)
	}

	// The payload buffer grows with what the reader actually holds, not with psize.
	payload, err := io.ReadAll(io.LimitReader(r, int64(psize)))
	if err != nil {
		return nil, fmt.Errorf("%w: read payload: %v", ErrCorruptMatrix, err)
	}
	if len(payload) != int(psize) {
		return nil, fmt.Errorf("%w: read payload: %d of %d bytes", ErrCorruptMatrix, len(payload), psize)
	}
	raw, err := decompressPayload(payload, Compression(comp), rawSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptMatrix, err)
	}
	if len(raw) != rawSize {
		return nil, fmt.Errorf("%w: payload is %d bytes, expected %d", ErrCorruptMatrix, len(raw), rawSize)
	}

	m := &Matrix{dim: int(dim), data: make([]float32, int(rows)*int(dim))}
	for i := range m.data {
		m.data[i] = math.Float32frombits(le.Uint32(raw[i*4:]))
	}
	return m, nil
}

// compressPayload returns the encoded payload and the compression actually applied.
// Incompressible LZ4 input is stored raw.
func compressPayload(raw []byte, c Compression) ([]byte, Compression, error) {
	switch c {
	case CompressionNone:
		return raw, CompressionNone, nil
	case CompressionLZ4:
		if len(raw) == 0 {
			return raw, CompressionNone, nil
		}
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err != nil {
			return nil, c, err
		}
		if n == 0 {
			return raw, CompressionNone, nil
		}
		return buf[:n], CompressionLZ4, nil
	case CompressionZSTD:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(raw, nil), CompressionZSTD, nil
	default:
		return nil, c, fmt.Errorf("unknown compression %d", c)
	}
}

// checkPayloadSize rejects a header whose payload size cannot hold rawSize bytes.
func checkPayloadSize(c Compression, psize, rawSize int) error {
	switch c {
	case CompressionNone:
		if psize != rawSize {
			return fmt.Errorf("raw payload is %d bytes, header implies %d", psize, rawSize)
		}
	case CompressionLZ4:
		if rawSize > 0 && (psize == 0 || rawSize/lz4MaxRatio > psize) {
			return fmt.Errorf("lz4 payload of %d bytes cannot expand to %d", psize, rawSize)
		}
	case CompressionZSTD:
		if rawSize > 0 && psize == 0 {
			return fmt.Errorf("empty zstd payload, header implies %d bytes", rawSize)
		}
	default:
		return fmt.Errorf("unknown compression %d", c)
	}
	return nil
}

// decompressPayload expands payload, reading at most one byte past rawSize.
func decompressPayload(payload []byte, c Compression, rawSize int) ([]byte, error) {
	switch c {
	case CompressionNone:
		return payload, nil
	case CompressionLZ4:
		if rawSize == 0 {
			return []byte{}, nil
		}
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		return out[:n], nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		if err := dec.Reset(bytes.NewReader(payload)); err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		out := bytes.NewBuffer(make([]byte, 0, min(rawSize, len(payload)*8)))
		if _, err := io.Copy(out, io.LimitReader(dec, int64(rawSize)+1)); err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression %d", c)
	}
}
