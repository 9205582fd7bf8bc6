package compress

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstd frames start with this magic number. Blobs written while
// compression was disabled won't carry it, and Decompress must still
// return their bytes unchanged.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Compressor compresses and decompresses content blobs with zstd.
// The zero value is not usable; construct with New.
type Compressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New creates a Compressor at the given level, clamped to [1, 22].
func New(level int) (*Compressor, error) {
	if level < 1 {
		level = 1
	}
	if level > 22 {
		level = 22
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Compressor{enc: enc, dec: dec}, nil
}

// Compress returns the stored form of data together with the original and
// stored sizes.
func (c *Compressor) Compress(data []byte) (stored []byte, originalSize, storedSize int64) {
	stored = c.enc.EncodeAll(data, nil)
	return stored, int64(len(data)), int64(len(stored))
}

// Decompress returns the original bytes for data produced by Compress.
// Input without the zstd frame header is returned unchanged: whether a
// blob was compressed depends on the write-time policy, while reads are
// format-agnostic.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing content: %w", err)
	}
	return out, nil
}
