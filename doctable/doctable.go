// Package doctable implements the keyed record arrays that back archer's
// document table and field table: a StringId map from key to a dense
// index, paired with a fixed-size record array so that any record can be
// rewritten in place by index, the operation tombstoning and word-count
// maintenance depend on.
package doctable

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/go-mizu/archer/strid"
)

// ErrDuplicate is returned by Add when key is already present.
var ErrDuplicate = errors.New("doctable: duplicate key")

// ErrNotFound is returned when a key has no entry.
var ErrNotFound = errors.New("doctable: not found")

// Record is the fixed-size payload kept alongside a key. Implementations
// must encode to and decode from exactly RecordSize() bytes.
type Record interface {
	Encode() []byte
	Decode([]byte) error
}

// NewRecord builds a zero-value Record of the table's element type; used by
// read paths that only have bytes in hand.
type NewRecord func() Record

// Table is a keyed array of fixed-size records. Ids are dense, assigned in
// first-seen order by the embedded strid.Table, and never reused: Table
// mirrors the original bow document/field table on-disk layout, generalised
// to any fixed-size record type via the Record interface.
//
// A bloom filter over keys gives Add/IndexOf a fast negative pre-check
// before falling through to the exact strid lookup — the table is expected
// to grow to millions of keys during a bulk index run, at which point a
// cheap "definitely absent" answer avoids the hash-probe chain entirely.
type Table struct {
	keys       *strid.Table
	records    []Record
	recordSize int
	newRecord  NewRecord
	filter     *bloom.BloomFilter
}

// New creates an empty table. recordSize is the fixed encoded size every
// Record must produce; newRecord constructs zero-value records for Decode.
func New(recordSize int, newRecord NewRecord) *Table {
	return &Table{
		keys:       strid.New(),
		recordSize: recordSize,
		newRecord:  newRecord,
		filter:     bloom.NewWithEstimates(1<<20, 0.01),
	}
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.records) }

// RecordSize returns the fixed per-record encoded size.
func (t *Table) RecordSize() int { return t.recordSize }

// Add inserts key with rec and returns its dense index. It fails with
// ErrDuplicate if key already exists.
func (t *Table) Add(key string, rec Record) (int32, error) {
	if t.filter.TestString(key) && t.keys.Lookup(key) != -1 {
		return -1, ErrDuplicate
	}
	id := t.keys.Intern(key)
	if int(id) != len(t.records) {
		return -1, ErrDuplicate
	}
	t.filter.AddString(key)
	t.records = append(t.records, rec)
	return id, nil
}

// GetByIndex returns the record at i.
func (t *Table) GetByIndex(i int32) Record {
	return t.records[i]
}

// GetByKey returns the record for key, or ErrNotFound.
func (t *Table) GetByKey(key string) (Record, error) {
	i, err := t.IndexOf(key)
	if err != nil {
		return nil, err
	}
	return t.records[i], nil
}

// IndexOf returns the dense index for key, or ErrNotFound.
func (t *Table) IndexOf(key string) (int32, error) {
	if !t.filter.TestString(key) {
		return -1, ErrNotFound
	}
	id := t.keys.Lookup(key)
	if id == -1 {
		return -1, ErrNotFound
	}
	return id, nil
}

// KeyOf returns the key stored for a dense index.
func (t *Table) KeyOf(i int32) string { return t.keys.Get(i) }

// Lookup returns the dense index for key, or -1 if key has never been seen
// — the strid.Table.Lookup convention, for callers (package queryexec,
// package indexer) that want a sentinel instead of ErrNotFound.
func (t *Table) Lookup(key string) int32 {
	id, err := t.IndexOf(key)
	if err != nil {
		return -1
	}
	return id
}

// Intern returns the dense index for key, adding a fresh zero-value record
// if key has not been seen before. Mirrors strid.Table.Intern so that
// package indexer can treat the field table the same way it treats the
// vocabulary.
func (t *Table) Intern(key string) int32 {
	if id, err := t.IndexOf(key); err == nil {
		return id
	}
	id, err := t.Add(key, t.newRecord())
	if err != nil {
		// Only reachable if key was added concurrently between the IndexOf
		// miss above and this Add, which Table's single-writer contract
		// rules out; fall back to a lookup rather than panic.
		id, _ = t.IndexOf(key)
	}
	return id
}

// Iter calls yield for every (index, key) pair in index order. Iteration
// stops early if yield returns false.
func (t *Table) Iter(yield func(id int32, key string) bool) {
	t.keys.Iter(yield)
}

// PutByIndex rewrites the record at i in place — used for tombstoning and
// for word-count updates that must not disturb any other record's bytes.
func (t *Table) PutByIndex(i int32, rec Record) {
	t.records[i] = rec
}

// WriteInc writes the whole key map, then every record from index `from`
// onward, in a format ReadInc can resume from. Records before `from` are
// not written again.
func (t *Table) WriteInc(w io.Writer, from int32) error {
	bw := bufio.NewWriter(w)
	if err := t.keys.Write(bw); err != nil {
		return err
	}
	for i := from; int(i) < len(t.records); i++ {
		buf := t.records[i].Encode()
		if len(buf) != t.recordSize {
			return fmt.Errorf("doctable: record %d encoded to %d bytes, want %d", i, len(buf), t.recordSize)
		}
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadInc loads a table written by WriteInc, or extends an existing table
// in place by appending every record found after the ones already held.
func (t *Table) ReadInc(r io.Reader) error {
	br := bufio.NewReader(r)
	keys, err := strid.Read(br)
	if err != nil {
		return err
	}
	t.keys = keys
	buf := make([]byte, t.recordSize)
	for {
		_, err := io.ReadFull(br, buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		rec := t.newRecord()
		if err := rec.Decode(buf); err != nil {
			return err
		}
		t.records = append(t.records, rec)
		t.filter.AddString(t.keys.Get(int32(len(t.records) - 1)))
	}
}

// WriteRecordAt rewrites the single record at index i in an already-open
// random-access file at the given base offset, the in-place rewrite
// tombstoning and word-count maintenance depend on.
func WriteRecordAt(w io.WriterAt, baseOffset int64, recordSize int, i int32, rec Record) error {
	buf := rec.Encode()
	if len(buf) != recordSize {
		return fmt.Errorf("doctable: record encoded to %d bytes, want %d", len(buf), recordSize)
	}
	at := baseOffset + int64(i)*int64(recordSize)
	_, err := w.WriteAt(buf, at)
	return err
}

// ReadRecordAt reads and decodes the single record at index i from an
// already-open random-access file at the given base offset.
func ReadRecordAt(r io.ReaderAt, baseOffset int64, recordSize int, i int32, newRecord NewRecord) (Record, error) {
	buf := make([]byte, recordSize)
	at := baseOffset + int64(i)*int64(recordSize)
	if _, err := r.ReadAt(buf, at); err != nil {
		return nil, err
	}
	rec := newRecord()
	if err := rec.Decode(buf); err != nil {
		return nil, err
	}
	return rec, nil
}
