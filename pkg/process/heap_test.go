package process

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeapAllocShrinksFree(t *testing.T) {
	h, err := NewHeap(1024)
	require.NoError(t, err)
	require.Equal(t, 1024, h.Free())

	a, err := h.Alloc(256)
	require.NoError(t, err)
	require.Len(t, a.Bytes, 256)
	require.Equal(t, 768, h.Free())
}

func TestHeapAllocExhaustion(t *testing.T) {
	h, err := NewHeap(128)
	require.NoError(t, err)

	_, err = h.Alloc(128)
	require.NoError(t, err)

	_, err = h.Alloc(1)
	require.ErrorIs(t, err, ErrHeapFull)
}

func TestHeapReleaseCoalesces(t *testing.T) {
	h, err := NewHeap(128)
	require.NoError(t, err)

	a1, err := h.Alloc(64)
	require.NoError(t, err)
	a2, err := h.Alloc(64)
	require.NoError(t, err)
	require.Equal(t, 0, h.Free())

	h.Release(a1)
	h.Release(a2)
	require.Equal(t, 128, h.Free())

	a3, err := h.Alloc(128)
	require.NoError(t, err)
	require.Len(t, a3.Bytes, 128)
}

func TestHeapRejectsNonPositiveSize(t *testing.T) {
	_, err := NewHeap(0)
	require.Error(t, err)

	h, err := NewHeap(16)
	require.NoError(t, err)
	_, err = h.Alloc(0)
	require.Error(t, err)
}
