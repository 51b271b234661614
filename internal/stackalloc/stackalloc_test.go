package stackalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocRoundsUpAndGuards(t *testing.T) {
	r, err := Alloc(1)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Release()) }()

	require.Equal(t, pageSize, r.Size())
	require.Len(t, r.Bytes(), pageSize)
}

func TestAllocDefaultSize(t *testing.T) {
	r, err := Alloc(0)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Release()) }()

	require.GreaterOrEqual(t, r.Size(), DefaultStackSize)
}

func TestReleaseIdempotent(t *testing.T) {
	r, err := Alloc(DefaultStackSize)
	require.NoError(t, err)
	require.NoError(t, r.Release())
	require.NoError(t, r.Release())
}

func TestUsableRegionIsWritable(t *testing.T) {
	r, err := Alloc(DefaultStackSize)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Release()) }()

	b := r.Bytes()
	b[0] = 0xAB
	b[len(b)-1] = 0xCD
	require.Equal(t, byte(0xAB), b[0])
	require.Equal(t, byte(0xCD), b[len(b)-1])
}
