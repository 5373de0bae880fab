package archive

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestContent(size int) []byte {
	pattern := []byte(`{"page_id":"abc","html":"<p>The quick brown fox</p>"}` + "\n")
	return bytes.Repeat(pattern, size/len(pattern)+1)[:size]
}

func TestCompressRoundTrip(t *testing.T) {
	original := generateTestContent(4000)

	for _, algorithm := range []string{CompressionSnappy, CompressionLZ4} {
		t.Run(algorithm, func(t *testing.T) {
			compressed, err := Compress(original, algorithm)
			require.NoError(t, err)
			assert.Less(t, len(compressed), len(original))

			decompressed, err := Decompress(compressed, algorithm)
			require.NoError(t, err)
			assert.Equal(t, original, decompressed)
		})
	}
}

func TestCompressNone(t *testing.T) {
	original := generateTestContent(100)

	for _, algorithm := range []string{CompressionNone, ""} {
		out, err := Compress(original, algorithm)
		require.NoError(t, err)
		assert.Equal(t, original, out)

		back, err := Decompress(out, algorithm)
		require.NoError(t, err)
		assert.Equal(t, original, back)
	}
}

func TestCompressEmpty(t *testing.T) {
	for _, algorithm := range []string{CompressionSnappy, CompressionLZ4} {
		compressed, err := Compress(nil, algorithm)
		require.NoError(t, err, algorithm)
		out, err := Decompress(compressed, algorithm)
		require.NoError(t, err, algorithm)
		assert.Empty(t, out, algorithm)
	}
}

func TestUnknownAlgorithm(t *testing.T) {
	_, err := Compress([]byte("x"), "zstd")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)

	_, err = Decompress([]byte("x"), "zstd")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestDecompressCorrupt(t *testing.T) {
	garbage := []byte("definitely not compressed data")

	for _, algorithm := range []string{CompressionSnappy, CompressionLZ4} {
		_, err := Decompress(garbage, algorithm)
		assert.ErrorIs(t, err, ErrDecompression, algorithm)
	}
}

func TestDetectAlgorithm(t *testing.T) {
	tests := map[string]string{
		"pages.jsonl":        CompressionNone,
		"pages.jsonl.snappy": CompressionSnappy,
		"pages.jsonl.lz4":    CompressionLZ4,
		"/tmp/backup.lz4":    CompressionLZ4,
		"snappy.jsonl":       CompressionNone,
	}
	for path, want := range tests {
		assert.Equal(t, want, DetectAlgorithm(path), path)
	}
}
