package vector

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Caps on decoded header fields so a corrupt header cannot force a huge allocation.
const (
	maxIDLen      = 1 << 16
	maxDimensions = 1 << 16
)

// WriteVectors encodes a vector section, all integers little-endian uint32:
//
//	dimensions | count | count x (idLen | id | dimensions x float32)
func WriteVectors(w io.Writer, dimensions int, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	le := binary.LittleEndian
	header := le.AppendUint32(le.AppendUint32(nil, uint32(dimensions)), uint32(len(ids)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write section header: %w", err)
	}
	row := make([]byte, 0, 4+dimensions*4)
	for i, id := range ids {
		if len(vectors[i]) != dimensions {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(vectors[i]), dimensions)
		}
		if len(id) > maxIDLen {
			return fmt.Errorf("id %d is %d bytes, limit %d", i, len(id), maxIDLen)
		}
		row = le.AppendUint32(row[:0], uint32(len(id)))
		row = append(row, id...)
		for _, v := range vectors[i] {
			row = le.AppendUint32(row, math.Float32bits(v))
		}
		if _, err := w.Write(row); err != nil {
			return fmt.Errorf("write vector %d: %w", i, err)
		}
	}
	return nil
}

// ReadVectors decodes a section written by WriteVectors.
func ReadVectors(r io.Reader) (dimensions int, ids []string, vectors [][]float32, err error) {
	le := binary.LittleEndian
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, nil, fmt.Errorf("read section header: %w", err)
	}
	dim, n := le.Uint32(header[:4]), le.Uint32(header[4:])
	if dim == 0 || dim > maxDimensions {
		return 0, nil, nil, fmt.Errorf("invalid dimensions: %d", dim)
	}
	// Every row is at least an id length plus its vector.
	if lr, ok := r.(interface{ Len() int }); ok {
		need := uint64(n) * (4 + uint64(dim)*4)
		if remaining := uint64(lr.Len()); need > remaining {
			return 0, nil, nil, fmt.Errorf("section declares %d vectors of %d dimensions, only %d bytes remain", n, dim, remaining)
		}
	}

	ids = make([]string, 0, min(n, 1024))
	vectors = make([][]float32, 0, min(n, 1024))
	var lenBuf [4]byte
	vecBuf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return 0, nil, nil, fmt.Errorf("read id %d length: %w", i, err)
		}
		idLen := le.Uint32(lenBuf[:])
		if idLen > maxIDLen {
			return 0, nil, nil, fmt.Errorf("id %d length %d exceeds limit", i, idLen)
		}
		id := make([]byte, idLen)
		if _, err := io.ReadFull(r, id); err != nil {
			return 0, nil, nil, fmt.Errorf("read id %d: %w", i, err)
		}
		if _, err := io.ReadFull(r, vecBuf); err != nil {
			return 0, nil, nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(le.Uint32(vecBuf[j*4:]))
		}
		ids = append(ids, string(id))
		vectors = append(vectors, vec)
	}
	return int(dim), ids, vectors, nil
}
