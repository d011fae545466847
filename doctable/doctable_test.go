package doctable

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func newDocTable() *Table {
	return New(DocRecordSize, NewDocRecord)
}

func newTempFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "doctable-*")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestAddAssignsDenseIds(t *testing.T) {
	tbl := newDocTable()
	a, err := tbl.Add("foo.txt", &DocRecord{WordCount: 3, Di: 0})
	require.NoError(t, err)
	require.EqualValues(t, 0, a)

	b, err := tbl.Add("bar.txt", &DocRecord{WordCount: 5, Di: 1})
	require.NoError(t, err)
	require.EqualValues(t, 1, b)

	require.Equal(t, 2, tbl.Len())
}

func TestAddRejectsDuplicateKey(t *testing.T) {
	tbl := newDocTable()
	_, err := tbl.Add("foo.txt", &DocRecord{WordCount: 1})
	require.NoError(t, err)

	_, err = tbl.Add("foo.txt", &DocRecord{WordCount: 1})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestIndexOfAndGetByKey(t *testing.T) {
	tbl := newDocTable()
	id, err := tbl.Add("foo.txt", &DocRecord{WordCount: 3})
	require.NoError(t, err)

	got, err := tbl.IndexOf("foo.txt")
	require.NoError(t, err)
	require.Equal(t, id, got)

	rec, err := tbl.GetByKey("foo.txt")
	require.NoError(t, err)
	require.Equal(t, int32(3), rec.(*DocRecord).WordCount)

	_, err = tbl.IndexOf("missing.txt")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTombstoneRewriteInPlace(t *testing.T) {
	tbl := newDocTable()
	id, err := tbl.Add("foo.txt", &DocRecord{WordCount: 7, Di: 0})
	require.NoError(t, err)

	rec := tbl.GetByIndex(id).(*DocRecord)
	require.True(t, rec.Live())

	tombstoned := rec.Tombstone()
	require.True(t, tombstoned.Tombstoned())
	require.EqualValues(t, -7, tombstoned.WordCount)
	tbl.PutByIndex(id, &tombstoned)

	got := tbl.GetByIndex(id).(*DocRecord)
	require.True(t, got.Tombstoned())

	undeleted := got.Undelete()
	require.True(t, undeleted.Live())
	require.EqualValues(t, 7, undeleted.WordCount)
}

func TestWriteIncReadIncRoundTrip(t *testing.T) {
	tbl := newDocTable()
	_, err := tbl.Add("foo.txt", &DocRecord{WordCount: 3, Di: 0})
	require.NoError(t, err)
	_, err = tbl.Add("bar.txt", &DocRecord{WordCount: 5, Di: 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteInc(&buf, 0))

	got := newDocTable()
	require.NoError(t, got.ReadInc(&buf))
	require.Equal(t, tbl.Len(), got.Len())

	rec, err := got.GetByKey("bar.txt")
	require.NoError(t, err)
	require.EqualValues(t, 5, rec.(*DocRecord).WordCount)
}

func TestWriteIncAppendsOnlyNewRecords(t *testing.T) {
	tbl := newDocTable()
	_, err := tbl.Add("foo.txt", &DocRecord{WordCount: 3})
	require.NoError(t, err)

	var first bytes.Buffer
	require.NoError(t, tbl.WriteInc(&first, 0))

	_, err = tbl.Add("bar.txt", &DocRecord{WordCount: 5})
	require.NoError(t, err)

	var second bytes.Buffer
	require.NoError(t, tbl.WriteInc(&second, 1))
	require.Less(t, second.Len(), first.Len()+DocRecordSize, "incremental write should not repeat the first record's bytes")
}

func TestSumLiveWordCountIgnoresTombstones(t *testing.T) {
	tbl := newDocTable()
	_, err := tbl.Add("foo.txt", &DocRecord{WordCount: 3})
	require.NoError(t, err)
	id, err := tbl.Add("bar.txt", &DocRecord{WordCount: 5})
	require.NoError(t, err)

	require.EqualValues(t, 8, SumLiveWordCount(tbl))

	rec := tbl.GetByIndex(id).(*DocRecord)
	tombstoned := rec.Tombstone()
	tbl.PutByIndex(id, &tombstoned)

	require.EqualValues(t, 3, SumLiveWordCount(tbl))
}

func TestInternAssignsStableIdsToFieldTable(t *testing.T) {
	tbl := New(FieldRecordSize, NewFieldRecord)

	title := tbl.Intern("title")
	body := tbl.Intern("body")
	again := tbl.Intern("title")

	require.Equal(t, title, again)
	require.NotEqual(t, title, body)
	require.Equal(t, 2, tbl.Len())
	require.EqualValues(t, title, tbl.Lookup("title"))
	require.EqualValues(t, -1, tbl.Lookup("missing"))
}

func TestIterVisitsEveryKeyInIndexOrder(t *testing.T) {
	tbl := New(FieldRecordSize, NewFieldRecord)
	tbl.Intern("title")
	tbl.Intern("body")
	tbl.Intern("author")

	var got []string
	tbl.Iter(func(id int32, key string) bool {
		require.Equal(t, tbl.KeyOf(id), key)
		got = append(got, key)
		return true
	})
	require.Equal(t, []string{"title", "body", "author"}, got)
}

func TestReadWriteRecordAt(t *testing.T) {
	f := newTempFile(t)
	const base = 128
	rec := &DocRecord{Tag: 1, WordCount: -9, Di: 4}
	require.NoError(t, WriteRecordAt(f, base, DocRecordSize, 4, rec))

	got, err := ReadRecordAt(f, base, DocRecordSize, 4, NewDocRecord)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}
