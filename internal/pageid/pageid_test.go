package pageid

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ShapeAndAlphabet(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, err := Generator{}.New()
		require.NoError(t, err)
		assert.Len(t, id, Length)
		assert.True(t, Valid(id), id)
		for _, c := range id {
			assert.True(t, strings.ContainsRune(Alphabet, c))
		}
		seen[id] = true
	}
	assert.Len(t, seen, 200, "ids should not repeat")
}

func TestNew_RejectsBiasedBytes(t *testing.T) {
	// 0xff is above the acceptance bound and must be skipped, 0x00 maps to 'A'
	src := bytes.NewReader(append(bytes.Repeat([]byte{0xff}, Length*2), bytes.Repeat([]byte{0x00}, Length*2)...))
	id, err := Generator{Rand: src}.New()
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("A", Length), id)
}

func TestNew_RandomSourceFailure(t *testing.T) {
	_, err := Generator{Rand: bytes.NewReader(nil)}.New()
	assert.Error(t, err)
}

func TestGenerate_ResamplesOnCollision(t *testing.T) {
	calls := 0
	id, err := Generate(func(candidate string) bool {
		calls++
		return calls < 3
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, Valid(id))
}

func TestGenerate_Exhausted(t *testing.T) {
	calls := 0
	_, err := Generate(func(string) bool {
		calls++
		return true
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))
	assert.Equal(t, MaxAttempts, calls)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("abcdEFGH01234567"))
	assert.False(t, Valid("short"))
	assert.False(t, Valid("abcdEFGH0123456_"))
	assert.False(t, Valid("abcdEFGH012345678"))
}
