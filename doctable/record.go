package doctable

import "encoding/binary"

// DocRecord is the per-document payload: word_count doubles as a liveness
// flag via tombstone-by-negation, di is the dense document id it was
// assigned, and tag preserves a legacy train/test/unlabeled enum only for
// compatibility with tools that still read it.
type DocRecord struct {
	Tag       int32
	WordCount int32
	Di        int32
}

// DocRecordSize is the fixed encoded size of a DocRecord.
const DocRecordSize = 12

// Encode implements Record.
func (r DocRecord) Encode() []byte {
	buf := make([]byte, DocRecordSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(r.Tag))
	binary.BigEndian.PutUint32(buf[4:8], uint32(r.WordCount))
	binary.BigEndian.PutUint32(buf[8:12], uint32(r.Di))
	return buf
}

// Decode implements Record.
func (r *DocRecord) Decode(buf []byte) error {
	r.Tag = int32(binary.BigEndian.Uint32(buf[0:4]))
	r.WordCount = int32(binary.BigEndian.Uint32(buf[4:8]))
	r.Di = int32(binary.BigEndian.Uint32(buf[8:12]))
	return nil
}

// Live reports whether the document is present and not tombstoned.
func (r DocRecord) Live() bool { return r.WordCount > 0 }

// Tombstoned reports whether the document has been deleted.
func (r DocRecord) Tombstoned() bool { return r.WordCount < 0 }

// Tombstone negates WordCount, leaving postings intact but marking the
// document deleted for query-time filtering.
func (r DocRecord) Tombstone() DocRecord {
	if r.WordCount > 0 {
		r.WordCount = -r.WordCount
	}
	return r
}

// Undelete restores a tombstoned document, reversing Tombstone.
func (r DocRecord) Undelete() DocRecord {
	if r.WordCount < 0 {
		r.WordCount = -r.WordCount
	}
	return r
}

// NewDocRecord constructs a zero-value DocRecord for use as a NewRecord.
func NewDocRecord() Record { return &DocRecord{} }

// FieldRecord is the per-field-name payload: how many term occurrences have
// been tagged with the field, and the field's id. It is kept current by the
// indexer and persisted with the field table.
type FieldRecord struct {
	WordCount int32
	Li        int32
}

// FieldRecordSize is the fixed encoded size of a FieldRecord.
const FieldRecordSize = 8

// Encode implements Record.
func (r FieldRecord) Encode() []byte {
	buf := make([]byte, FieldRecordSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(r.WordCount))
	binary.BigEndian.PutUint32(buf[4:8], uint32(r.Li))
	return buf
}

// Decode implements Record.
func (r *FieldRecord) Decode(buf []byte) error {
	r.WordCount = int32(binary.BigEndian.Uint32(buf[0:4]))
	r.Li = int32(binary.BigEndian.Uint32(buf[4:8]))
	return nil
}

// NewFieldRecord constructs a zero-value FieldRecord for use as a NewRecord.
func NewFieldRecord() Record { return &FieldRecord{} }

// SumLiveWordCount adds up WordCount across every live DocRecord in t. Used
// as the corpus-size denominator some scoring modes want as |D|; recomputed
// on demand here since Table does not know the semantics of an arbitrary
// Record, rather than kept as a running total adjusted in place by
// tombstone/undelete.
func SumLiveWordCount(t *Table) int32 {
	var sum int32
	for i := int32(0); i < int32(t.Len()); i++ {
		if rec, ok := t.GetByIndex(i).(*DocRecord); ok && rec.Live() {
			sum += rec.WordCount
		}
	}
	return sum
}
