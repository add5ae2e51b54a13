package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashKnownDigest(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)
}

func TestHashDeterministicAndDistinct(t *testing.T) {
	t.Parallel()

	h := New()
	first, err := h.Hash([]byte("같은 내용"))
	require.NoError(t, err)
	second, err := h.Hash([]byte("같은 내용"))
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := h.Hash([]byte("다른 내용"))
	require.NoError(t, err)
	require.NotEqual(t, first, other)
	require.Len(t, other, 64)
}
