package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"
)

// Compression algorithms
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionLZ4    = "lz4"
)

// File extensions selecting a compression algorithm
const (
	ExtSnappy = ".snappy"
	ExtLZ4    = ".lz4"
)

// ErrDecompression is returned when an archive cannot be decompressed
var ErrDecompression = errors.New("decompression failed")

// ErrUnknownAlgorithm is returned for an unsupported algorithm name
var ErrUnknownAlgorithm = errors.New("unknown compression algorithm")

// Compress compresses content with algorithm. "none" and "" return content unchanged.
func Compress(content []byte, algorithm string) ([]byte, error) {
	switch algorithm {
	case CompressionNone, "":
		return content, nil

	case CompressionSnappy:
		return snappy.Encode(nil, content), nil

	case CompressionLZ4:
		// Stream format embeds the content size
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(content); err != nil {
			w.Close()
			return nil, fmt.Errorf("lz4 compression failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compression close failed: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}

// Decompress reverses Compress
func Decompress(content []byte, algorithm string) ([]byte, error) {
	switch algorithm {
	case CompressionNone, "":
		return content, nil

	case CompressionSnappy:
		out, err := snappy.Decode(nil, content)
		if err != nil {
			return nil, fmt.Errorf("%w: snappy: %w", ErrDecompression, err)
		}
		return out, nil

	case CompressionLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(content)))
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %w", ErrDecompression, err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}

// DetectAlgorithm infers the compression algorithm from a file name
func DetectAlgorithm(path string) string {
	switch {
	case strings.HasSuffix(path, ExtSnappy):
		return CompressionSnappy
	case strings.HasSuffix(path, ExtLZ4):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}
