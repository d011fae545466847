package pv

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

type posting struct {
	di int32
	li []int32
	pi int32
}

func tempStore(t *testing.T) (*Store, *os.File) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "pv-blob-*")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return NewStore(f), f
}

func TestRoundTripSimple(t *testing.T) {
	s, _ := tempStore(t)
	h := &Header{}
	require.NoError(t, s.Init(h))

	postings := []posting{
		{0, nil, 0},
		{0, nil, 1},
		{0, nil, 5},
		{1, nil, 0},
		{1, nil, 2},
		{3, nil, 0},
	}
	for _, p := range postings {
		require.NoError(t, s.Append(h, p.di, p.li, p.pi))
	}
	require.NoError(t, s.Rewind(h))

	for _, want := range postings {
		di, li, pi, ok, err := s.ReadNext(h)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want.di, di)
		require.Equal(t, want.pi, pi)
		require.Empty(t, li)
	}
	_, _, _, ok, err := s.ReadNext(h)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRoundTripWithFields(t *testing.T) {
	s, _ := tempStore(t)
	h := &Header{}
	require.NoError(t, s.Init(h))

	postings := []posting{
		{0, []int32{2, 5}, 0},
		{0, nil, 1},
		{0, []int32{2}, 2},
		{2, []int32{9}, 0},
	}
	for _, p := range postings {
		require.NoError(t, s.Append(h, p.di, p.li, p.pi))
	}
	require.NoError(t, s.Rewind(h))

	for _, want := range postings {
		di, li, pi, ok, err := s.ReadNext(h)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want.di, di)
		require.Equal(t, want.pi, pi)
		require.Equal(t, want.li, li)
	}
}

func TestOrderingInvariantEnforced(t *testing.T) {
	s, _ := tempStore(t)
	h := &Header{}
	require.NoError(t, s.Init(h))
	require.NoError(t, s.Append(h, 0, nil, 5))

	require.ErrorIs(t, s.Append(h, 0, nil, 5), ErrInvariant)
	require.ErrorIs(t, s.Append(h, 0, nil, 2), ErrInvariant)
	require.ErrorIs(t, s.Append(h, -1, nil, 0), ErrInvariant)
}

func TestSegmentGrowthChainsCorrectly(t *testing.T) {
	s, _ := tempStore(t)
	h := &Header{}
	require.NoError(t, s.Init(h))

	var want []posting
	for di := int32(0); di < 50; di++ {
		for pi := int32(0); pi < 20; pi++ {
			require.NoError(t, s.Append(h, di, nil, pi))
			want = append(want, posting{di, nil, pi})
		}
	}
	require.Greater(t, h.writeSeg, h.Start, "many postings must have rolled past the first segment")

	require.NoError(t, s.Rewind(h))
	for _, p := range want {
		di, _, pi, ok, err := s.ReadNext(h)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, p.di, di)
		require.Equal(t, p.pi, pi)
	}
	_, _, _, ok, err := s.ReadNext(h)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUnreadReplaysOnce(t *testing.T) {
	s, _ := tempStore(t)
	h := &Header{}
	require.NoError(t, s.Init(h))
	require.NoError(t, s.Append(h, 0, nil, 0))
	require.NoError(t, s.Append(h, 0, nil, 1))
	require.NoError(t, s.Rewind(h))

	_, _, pi1, ok, err := s.ReadNext(h)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 0, pi1)

	require.NoError(t, s.Unread(h))
	require.Error(t, s.Unread(h), "a second consecutive Unread must fail")

	_, _, pi1Again, ok, err := s.ReadNext(h)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pi1, pi1Again)

	_, _, pi2, ok, err := s.ReadNext(h)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, pi2)
}

func TestUnreadReplaysFieldIds(t *testing.T) {
	s, _ := tempStore(t)
	h := &Header{}
	require.NoError(t, s.Init(h))
	require.NoError(t, s.Append(h, 0, []int32{4, 7}, 0))
	require.NoError(t, s.Rewind(h))

	_, li, _, ok, err := s.ReadNext(h)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []int32{4, 7}, li)

	require.NoError(t, s.Unread(h))

	_, liAgain, _, ok, err := s.ReadNext(h)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, li, liAgain, "the replayed posting must carry its field ids")
}

func TestHeaderWriteReadRoundTrip(t *testing.T) {
	s, f := tempStore(t)
	h := &Header{}
	require.NoError(t, s.Init(h))
	require.NoError(t, s.Append(h, 0, []int32{1}, 0))
	require.NoError(t, s.Append(h, 4, nil, 3))

	const at = 1 << 20
	require.NoError(t, h.WriteTo(f, at))

	got, err := ReadHeaderAt(f, at)
	require.NoError(t, err)
	require.Equal(t, h.Count, got.Count)
	require.Equal(t, h.Start, got.Start)
	require.Equal(t, h.writeLastDi, got.writeLastDi)
	require.Equal(t, h.writeLastPi, got.writeLastPi)
}
