package indexstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/Khandelwalgov/AskPro/internal/models"
	"github.com/Khandelwalgov/AskPro/internal/vector"
)

// Artifact layout (little-endian):
//
//	magic   [8]byte  "AKPXIDX1"
//	version uint32
//	length  uint64   payload length
//	crc     uint32   CRC-32 (IEEE) of payload
//	payload          vector section, then gob-encoded artifactMeta
const (
	formatVersion = 1
	headerSize    = 8 + 4 + 8 + 4
)

var magic = [8]byte{'A', 'K', 'P', 'X', 'I', 'D', 'X', '1'}

var errChecksum = errors.New("checksum mismatch")

type artifactMeta struct {
	Filename  string
	CreatedAt time.Time
	Chunks    []models.Chunk
}

// artifact is the decoded content of one persisted index.
type artifact struct {
	meta       artifactMeta
	dimensions int
	vectors    [][]float32
}

func encodeArtifact(w io.Writer, a *artifact) error {
	if len(a.meta.Chunks) != len(a.vectors) {
		return fmt.Errorf("chunks and vectors length mismatch")
	}
	var payload bytes.Buffer
	ids := make([]string, len(a.meta.Chunks))
	for i, ch := range a.meta.Chunks {
		ids[i] = ch.ID
	}
	if err := vector.WriteVectors(&payload, a.dimensions, ids, a.vectors); err != nil {
		return err
	}
	if err := gob.NewEncoder(&payload).Encode(&a.meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	var header [headerSize]byte
	copy(header[:8], magic[:])
	binary.LittleEndian.PutUint32(header[8:12], formatVersion)
	binary.LittleEndian.PutUint64(header[12:20], uint64(payload.Len()))
	binary.LittleEndian.PutUint32(header[20:24], crc32.ChecksumIEEE(payload.Bytes()))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(payload.Bytes()); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

func decodeArtifact(data []byte) (*artifact, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("short file: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], magic[:]) {
		return nil, fmt.Errorf("bad magic")
	}
	if v := binary.LittleEndian.Uint32(data[8:12]); v != formatVersion {
		return nil, fmt.Errorf("unsupported version %d", v)
	}
	length := binary.LittleEndian.Uint64(data[12:20])
	payload := data[headerSize:]
	if uint64(len(payload)) != length {
		return nil, fmt.Errorf("payload length %d, header says %d", len(payload), length)
	}
	if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(data[20:24]) {
		return nil, errChecksum
	}

	r := bytes.NewReader(payload)
	dims, ids, vecs, err := vector.ReadVectors(r)
	if err != nil {
		return nil, err
	}
	var meta artifactMeta
	if err := gob.NewDecoder(r).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(meta.Chunks) != len(ids) {
		return nil, fmt.Errorf("%d chunks for %d vectors", len(meta.Chunks), len(ids))
	}
	for i, ch := range meta.Chunks {
		if ch.ID != ids[i] {
			return nil, fmt.Errorf("chunk %d id %q does not match vector id %q", i, ch.ID, ids[i])
		}
	}
	return &artifact{meta: meta, dimensions: dims, vectors: vecs}, nil
}
