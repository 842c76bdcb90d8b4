package vector

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func TestMatrix_AppendRowTruncate(t *testing.T) {
	m, err := NewMatrix(3)
	if err != nil {
		t.Fatal(err)
	}
	if m.Rows() != 0 {
		t.Fatalf("Rows=%d, want 0", m.Rows())
	}
	if err := m.Append([]float32{1, 0, 0}, []float32{0, 1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := m.Append([]float32{1, 0}); err == nil {
		t.Error("expected error for short row")
	}
	if m.Rows() != 2 {
		t.Fatalf("Rows=%d, want 2 (failed append must not add rows)", m.Rows())
	}
	if r := m.Row(1); r[1] != 1 {
		t.Errorf("Row(1) = %v", r)
	}
	m.Truncate(1)
	if m.Rows() != 1 {
		t.Errorf("after Truncate Rows=%d, want 1", m.Rows())
	}
	m.Truncate(5)
	if m.Rows() != 1 {
		t.Errorf("Truncate beyond length changed Rows to %d", m.Rows())
	}
}

func TestNewMatrix_InvalidDimension(t *testing.T) {
	if _, err := NewMatrix(0); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestMatrix_EncodeDecode(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			m, _ := NewMatrix(8)
			for i := 0; i < 50; i++ {
				row := make([]float32, 8)
				for j := range row {
					row[j] = rng.Float32()
				}
				if i%5 == 0 {
					row = make([]float32, 8) // zero rows compress well
				}
				if err := m.Append(Normalize(row)); err != nil {
					t.Fatal(err)
				}
			}

			var buf bytes.Buffer
			if err := m.Encode(&buf, c); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := DecodeMatrix(&buf)
			if err != nil {
				t.Fatalf("DecodeMatrix: %v", err)
			}
			if got.Rows() != m.Rows() || got.Dim() != m.Dim() {
				t.Fatalf("shape %dx%d, want %dx%d", got.Rows(), got.Dim(), m.Rows(), m.Dim())
			}
			for i := 0; i < m.Rows(); i++ {
				a, b := m.Row(i), got.Row(i)
				for j := range a {
					if a[j] != b[j] {
						t.Fatalf("row %d col %d: %v != %v", i, j, b[j], a[j])
					}
				}
			}
		})
	}
}

func TestMatrix_EncodeEmpty(t *testing.T) {
	m, _ := NewMatrix(4)
	var buf bytes.Buffer
	if err := m.Encode(&buf, CompressionLZ4); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeMatrix(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Rows() != 0 || got.Dim() != 4 {
		t.Errorf("got %dx%d, want 0x4", got.Rows(), got.Dim())
	}
}

// matrixHeader builds a matrix file header followed by payload.
func matrixHeader(c Compression, rows, dim, psize uint32, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Write(matrixMagic[:])
	_ = binary.Write(&buf, binary.LittleEndian, matrixVersion)
	buf.WriteByte(byte(c))
	_ = binary.Write(&buf, binary.LittleEndian, []uint32{rows, dim, psize})
	buf.Write(payload)
	return buf.Bytes()
}

func TestDecodeMatrix_Corrupt(t *testing.T) {
	m, _ := NewMatrix(2)
	_ = m.Append([]float32{1, 0}, []float32{0, 1})
	var buf bytes.Buffer
	if err := m.Encode(&buf, CompressionNone); err != nil {
		t.Fatal(err)
	}
	full := buf.Bytes()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XXXX"), full[4:]...)},
		{"truncated payload", full[:len(full)-3]},
		{"huge zstd header", matrixHeader(CompressionZSTD, math.MaxUint32, math.MaxUint32, 0, nil)},
		{"huge rows empty zstd", matrixHeader(CompressionZSTD, math.MaxUint32, 4, 0, nil)},
		{"raw size mismatch", matrixHeader(CompressionNone, 2, 2, 8, make([]byte, 8))},
		{"lz4 cannot expand", matrixHeader(CompressionLZ4, 1<<20, 64, 4, make([]byte, 4))},
		{"payload shorter than header claims", matrixHeader(CompressionNone, 1<<16, 1024, 1<<28, make([]byte, 16))},
		{"zstd expands past header", zstdMatrix(t, 1, 2, make([]byte, 64))},
		{"unknown compression", matrixHeader(Compression(9), 1, 2, 8, make([]byte, 8))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMatrix(bytes.NewReader(tt.data))
			if !errors.Is(err, ErrCorruptMatrix) {
				t.Errorf("err = %v, want ErrCorruptMatrix", err)
			}
		})
	}
}

// zstdMatrix wraps raw as a zstd payload under a header claiming rows×dim.
func zstdMatrix(t *testing.T, rows, dim uint32, raw []byte) []byte {
	t.Helper()
	payload, _, err := compressPayload(raw, CompressionZSTD)
	if err != nil {
		t.Fatal(err)
	}
	return matrixHeader(CompressionZSTD, rows, dim, uint32(len(payload)), payload)
}

func TestNewMatrix_TooWide(t *testing.T) {
	if _, err := NewMatrix(MaxDimension + 1); err == nil {
		t.Error("expected an error above MaxDimension")
	}
	if _, err := NewMatrix(MaxDimension); err != nil {
		t.Errorf("MaxDimension rejected: %v", err)
	}
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "lz4": CompressionLZ4, "zstd": CompressionZSTD} {
		got, err := ParseCompression(name)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("expected error for unknown compression")
	}
}
