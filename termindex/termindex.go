// Package termindex implements the wi→PV and li→PV header arrays: a
// lazily-grown array of pv.Header records indexed by term id or field id,
// persisted as a small header file pointing into one shared blob file.
package termindex

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-mizu/archer/pv"
)

// magic identifies a persisted header file, mirroring strid's own
// "bow_int4str\n" convention for this index family.
const magic = "bow_wi2pv\n"

// Index is an array of pv.Header, one per term or field id, backed by a
// single shared blob file for all PV segment bytes. Entries are allocated
// lazily: requesting an id past the current length grows the array with
// freshly initialised headers.
type Index struct {
	store   *pv.Store
	headers []*pv.Header
}

// Open wraps an already-open blob file. The header array starts empty;
// callers load it from a header file with ReadFull, or build it up fresh
// by calling Ensure as new ids are interned.
func Open(blob *os.File) *Index {
	return &Index{store: pv.NewStore(blob)}
}

// Len returns the number of allocated header slots.
func (idx *Index) Len() int { return len(idx.headers) }

// Ensure grows the header array so that id is valid, initialising any newly
// allocated headers with a freshly reserved PV segment. It is a no-op if id
// is already within range.
func (idx *Index) Ensure(id int32) error {
	for int32(len(idx.headers)) <= id {
		h := &pv.Header{}
		if err := idx.store.Init(h); err != nil {
			return err
		}
		idx.headers = append(idx.headers, h)
	}
	return nil
}

// Header returns the PV header for id. Callers must Ensure(id) first.
func (idx *Index) Header(id int32) *pv.Header {
	return idx.headers[id]
}

// Add appends one posting to the PV for id, growing the header array first
// if necessary.
func (idx *Index) Add(id int32, di int32, li []int32, pi int32) error {
	if err := idx.Ensure(id); err != nil {
		return err
	}
	return idx.store.Append(idx.headers[id], di, li, pi)
}

// Next reads the next posting from id's PV. ok is false at end of stream.
// An id past the current length is allocated first (an empty PV).
func (idx *Index) Next(id int32) (di int32, li []int32, pi int32, ok bool, err error) {
	if err := idx.Ensure(id); err != nil {
		return 0, nil, 0, false, err
	}
	return idx.store.ReadNext(idx.headers[id])
}

// Unread undoes the last Next call for id.
func (idx *Index) Unread(id int32) error {
	if err := idx.Ensure(id); err != nil {
		return err
	}
	return idx.store.Unread(idx.headers[id])
}

// Rewind resets id's read cursor to the start of its PV, allocating an
// empty PV first if id is past the current length.
func (idx *Index) Rewind(id int32) error {
	if err := idx.Ensure(id); err != nil {
		return err
	}
	return idx.store.Rewind(idx.headers[id])
}

// Count returns the total number of postings written for id.
func (idx *Index) Count(id int32) int64 {
	return idx.headers[id].Count
}

// Reader iterates one id's PV from the start with its own private copy of
// the header, so its cursor never touches the shared header state: two
// readers over the same id, or readers in concurrent query goroutines, are
// independent. The copy also snapshots the write cursor, so a Reader sees
// the postings present at creation time and nothing appended later.
type Reader struct {
	store *pv.Store
	h     pv.Header
}

// NewReader returns a Reader positioned at the start of id's PV, or an
// error if id has never been allocated.
func (idx *Index) NewReader(id int32) (*Reader, error) {
	if id < 0 || int(id) >= len(idx.headers) {
		return nil, fmt.Errorf("termindex: no PV for id %d", id)
	}
	r := &Reader{store: idx.store, h: *idx.headers[id]}
	if err := r.store.Rewind(&r.h); err != nil {
		return nil, err
	}
	return r, nil
}

// Next reads the next posting. ok is false at end of stream.
func (r *Reader) Next() (di int32, li []int32, pi int32, ok bool, err error) {
	return r.store.ReadNext(&r.h)
}

// Unread undoes the last Next call.
func (r *Reader) Unread() error {
	return r.store.Unread(&r.h)
}

// Count returns the total number of postings in the PV snapshot.
func (r *Reader) Count() int64 { return r.h.Count }

// fileHeader is the fixed prefix of a persisted header file: how many
// header records follow.
type fileHeader struct {
	NumWords int64
}

// WriteFull rewrites the entire header file: magic, record count, then
// every pv.Header record in id order. Used at the end of a batch index.
func (idx *Index) WriteFull(w io.Writer) error {
	if _, err := io.WriteString(w, magic); err != nil {
		return err
	}
	fh := fileHeader{NumWords: int64(len(idx.headers))}
	if err := binary.Write(w, binary.BigEndian, &fh); err != nil {
		return err
	}
	buf := make([]byte, pv.RecordSize)
	for _, h := range idx.headers {
		n, err := h.Encode(buf)
		if err != nil {
			return err
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
	}
	return nil
}

// ReadFull replaces the header array by reading a file written by WriteFull.
func ReadFull(r io.Reader, blob *os.File) (*Index, error) {
	idx := Open(blob)
	magicBuf := make([]byte, len(magic))
	if _, err := io.ReadFull(r, magicBuf); err != nil {
		return nil, fmt.Errorf("termindex: reading magic: %w", err)
	}
	if string(magicBuf) != magic {
		return nil, fmt.Errorf("termindex: bad magic %q", magicBuf)
	}
	var fh fileHeader
	if err := binary.Read(r, binary.BigEndian, &fh); err != nil {
		return nil, fmt.Errorf("termindex: reading count: %w", err)
	}
	buf := make([]byte, pv.RecordSize)
	for i := int64(0); i < fh.NumWords; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("termindex: reading header %d: %w", i, err)
		}
		h, err := pv.DecodeHeader(buf)
		if err != nil {
			return nil, err
		}
		idx.headers = append(idx.headers, h)
	}
	return idx, nil
}

// WriteHeaderAt rewrites a single header record in place within an
// already-open header file, used for incremental commits that should not
// pay the cost of rewriting the whole header file.
func (idx *Index) WriteHeaderAt(f *os.File, id int32) error {
	at := int64(len(magic)) + 8 + int64(id)*int64(pv.RecordSize)
	return idx.headers[id].WriteTo(f, at)
}
