package termindex

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempBlob(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "termindex-blob-*")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestEnsureGrowsLazily(t *testing.T) {
	idx := Open(tempBlob(t))
	require.Equal(t, 0, idx.Len())

	require.NoError(t, idx.Ensure(3))
	require.Equal(t, 4, idx.Len())

	require.NoError(t, idx.Ensure(1))
	require.Equal(t, 4, idx.Len(), "Ensure with a smaller id must not shrink or duplicate entries")
}

func TestAddAndReadBackPostings(t *testing.T) {
	idx := Open(tempBlob(t))

	require.NoError(t, idx.Add(5, 0, nil, 0))
	require.NoError(t, idx.Add(5, 0, nil, 2))
	require.NoError(t, idx.Add(5, 1, []int32{3}, 0))
	require.EqualValues(t, 3, idx.Count(5))

	require.NoError(t, idx.Rewind(5))
	di, li, pi, ok, err := idx.Next(5)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 0, di)
	require.EqualValues(t, 0, pi)
	require.Empty(t, li)

	_, _, _, ok, err = idx.Next(5)
	require.NoError(t, err)
	require.True(t, ok)

	di, li, pi, ok, err = idx.Next(5)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, di)
	require.EqualValues(t, 0, pi)
	require.Equal(t, []int32{3}, li)

	_, _, _, ok, err = idx.Next(5)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDistinctIdsHaveIndependentPVs(t *testing.T) {
	idx := Open(tempBlob(t))
	require.NoError(t, idx.Add(0, 0, nil, 0))
	require.NoError(t, idx.Add(1, 7, nil, 0))

	require.EqualValues(t, 1, idx.Count(0))
	require.EqualValues(t, 1, idx.Count(1))

	require.NoError(t, idx.Rewind(1))
	di, _, _, ok, err := idx.Next(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 7, di)
}

func TestWriteFullReadFullRoundTrip(t *testing.T) {
	blob := tempBlob(t)
	idx := Open(blob)
	require.NoError(t, idx.Add(0, 0, nil, 0))
	require.NoError(t, idx.Add(2, 4, []int32{1}, 0))

	var buf bytes.Buffer
	require.NoError(t, idx.WriteFull(&buf))

	got, err := ReadFull(&buf, blob)
	require.NoError(t, err)
	require.Equal(t, idx.Len(), got.Len())
	require.EqualValues(t, idx.Count(0), got.Count(0))
	require.EqualValues(t, idx.Count(2), got.Count(2))

	require.NoError(t, got.Rewind(2))
	di, li, pi, ok, err := got.Next(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 4, di)
	require.EqualValues(t, 0, pi)
	require.Equal(t, []int32{1}, li)
}
