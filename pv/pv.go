// Package pv implements the position-vector store: a segmented,
// delta-encoded, append-only byte stream per term (or field) id, all
// segments sharing one blob file.
package pv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// ErrInvariant is returned when a caller violates a PV ordering invariant,
// e.g. appending a posting out of order or calling Unread twice in a row.
var ErrInvariant = errors.New("pv: invariant violation")

const (
	segHeaderLen  = 4 // length (int32) of a segment's payload capacity
	segTrailerLen = 4 // offset (int32) of the next segment, or -1
	noSuccessor   = -1

	// maxVarintPairSize is the worst-case byte length of one (di, pi) pair:
	// a uint32 varint needs at most 5 bytes (6 + 7*4 = 34 bits), so a pair
	// needs at most 10.
	maxVarintPairSize = 2 * 5
	firstSegmentSize  = 2 * maxVarintPairSize
)

// Header is a PV's in-memory control block: total occurrence count plus
// independent read and write cursors. It is what gets persisted, one per
// term/field id, by package termindex.
type Header struct {
	Count int64 // total postings written

	Start int64 // absolute offset of the first segment's length header

	writeSeg     int64 // offset of the segment currently being written
	writeSegSize int64 // payload capacity of that segment
	writeOffset  int64 // absolute offset of the next byte to write
	writeLastDi  int32
	writeLastPi  int32

	readSeg     int64
	readSegSize int64
	readOffset  int64
	readLastDi  int32
	readLastPi  int32
	readUnread  bool

	// prev* snapshot the read cursor as it was before the last ReadNext,
	// so Unread can rewind to it and the replay re-decodes the full entry,
	// field ids included.
	prevSeg     int64
	prevSegSize int64
	prevOffset  int64
	prevLastDi  int32
	prevLastPi  int32
}

// rawHeader is the fixed-size on-disk representation of Header.
type rawHeader struct {
	Count int64
	Start int64

	WriteSeg     int64
	WriteSegSize int64
	WriteOffset  int64
	WriteLastDi  int32
	WriteLastPi  int32

	ReadSeg     int64
	ReadSegSize int64
	ReadOffset  int64
	ReadLastDi  int32
	ReadLastPi  int32
	ReadUnread  int32

	PrevSeg     int64
	PrevSegSize int64
	PrevOffset  int64
	PrevLastDi  int32
	PrevLastPi  int32
}

// RecordSize is the fixed byte length of one persisted Header record.
var RecordSize = binary.Size(rawHeader{})

func (h *Header) toRaw() rawHeader {
	unread := int32(0)
	if h.readUnread {
		unread = 1
	}
	return rawHeader{
		Count: h.Count, Start: h.Start,
		WriteSeg: h.writeSeg, WriteSegSize: h.writeSegSize, WriteOffset: h.writeOffset,
		WriteLastDi: h.writeLastDi, WriteLastPi: h.writeLastPi,
		ReadSeg: h.readSeg, ReadSegSize: h.readSegSize, ReadOffset: h.readOffset,
		ReadLastDi: h.readLastDi, ReadLastPi: h.readLastPi, ReadUnread: unread,
		PrevSeg: h.prevSeg, PrevSegSize: h.prevSegSize, PrevOffset: h.prevOffset,
		PrevLastDi: h.prevLastDi, PrevLastPi: h.prevLastPi,
	}
}

func (h *Header) fromRaw(r rawHeader) {
	h.Count, h.Start = r.Count, r.Start
	h.writeSeg, h.writeSegSize, h.writeOffset = r.WriteSeg, r.WriteSegSize, r.WriteOffset
	h.writeLastDi, h.writeLastPi = r.WriteLastDi, r.WriteLastPi
	h.readSeg, h.readSegSize, h.readOffset = r.ReadSeg, r.ReadSegSize, r.ReadOffset
	h.readLastDi, h.readLastPi = r.ReadLastDi, r.ReadLastPi
	h.readUnread = r.ReadUnread != 0
	h.prevSeg, h.prevSegSize, h.prevOffset = r.PrevSeg, r.PrevSegSize, r.PrevOffset
	h.prevLastDi, h.prevLastPi = r.PrevLastDi, r.PrevLastPi
}

// WriteTo serialises the header as one fixed-size record at absolute offset at.
func (h *Header) WriteTo(w *os.File, at int64) error {
	raw := h.toRaw()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, &raw); err != nil {
		return err
	}
	_, err := w.WriteAt(buf.Bytes(), at)
	return err
}

// ReadHeaderAt deserialises one fixed-size Header record at absolute offset at.
func ReadHeaderAt(f *os.File, at int64) (*Header, error) {
	buf := make([]byte, RecordSize)
	if _, err := f.ReadAt(buf, at); err != nil {
		return nil, err
	}
	return DecodeHeader(buf)
}

// Encode serialises the header into buf, which must be at least RecordSize
// bytes, and returns the number of bytes written. Used by callers streaming
// many headers to an io.Writer rather than an already-open *os.File.
func (h *Header) Encode(buf []byte) (int, error) {
	raw := h.toRaw()
	w := bytes.NewBuffer(buf[:0])
	if err := binary.Write(w, binary.BigEndian, &raw); err != nil {
		return 0, err
	}
	return w.Len(), nil
}

// DecodeHeader deserialises one fixed-size Header record from buf.
func DecodeHeader(buf []byte) (*Header, error) {
	var raw rawHeader
	if err := binary.Read(bytes.NewReader(buf), binary.BigEndian, &raw); err != nil {
		return nil, err
	}
	h := &Header{}
	h.fromRaw(raw)
	return h, nil
}

// Store is a shared blob file holding segments for many PVs. All access is
// by absolute offset (ReadAt/WriteAt) rather than a single shared seek
// position, so no file-descriptor-reopen dance is needed after spawning a
// goroutine or a new process: concurrent readers and a single writer can
// safely share *os.File.
type Store struct {
	f *os.File
}

// NewStore wraps f. f must support ReadAt/WriteAt (a regular *os.File does).
func NewStore(f *os.File) *Store { return &Store{f: f} }

func (s *Store) size() (int64, error) {
	fi, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (s *Store) readInt32(at int64) (int32, error) {
	var buf [4]byte
	if _, err := s.f.ReadAt(buf[:], at); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

func (s *Store) writeInt32(at int64, v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	_, err := s.f.WriteAt(buf[:], at)
	return err
}

// Init reserves the first segment for a brand new PV.
func (s *Store) Init(h *Header) error {
	end, err := s.size()
	if err != nil {
		return err
	}
	if err := s.writeInt32(end, firstSegmentSize); err != nil {
		return err
	}
	payload := end + segHeaderLen
	if err := s.writeInt32(payload+firstSegmentSize, noSuccessor); err != nil {
		return err
	}
	h.Count = 0
	h.Start = end
	h.writeSeg, h.writeSegSize, h.writeOffset = end, firstSegmentSize, payload
	h.writeLastDi, h.writeLastPi = -1, -1
	h.readSeg, h.readSegSize, h.readOffset = end, firstSegmentSize, payload
	h.readLastDi, h.readLastPi = -1, -1
	h.readUnread = false
	h.prevSeg, h.prevSegSize, h.prevOffset = end, firstSegmentSize, payload
	h.prevLastDi, h.prevLastPi = -1, -1
	return nil
}

// entrySize returns the number of bytes Append would need to write di/li/pi
// given the write cursor's current last-di/last-pi, per the delta-encoding
// rule below.
func entrySize(lastDi, lastPi int32, di int32, li []int32, pi int32) int {
	n := 0
	if di != lastDi || len(li) > 0 {
		n += varintSize(uint32(di - lastDi))
	}
	for _, l := range li {
		n += varintSize(uint32(l))
	}
	if di == lastDi {
		n += varintSize(uint32(pi - lastPi))
	} else {
		n += varintSize(uint32(pi + 1))
	}
	return n
}

// Append writes one posting (di, li, pi) to the PV described by h, growing
// the segment chain if necessary. It enforces the ordering invariant:
// di must never decrease, and pi must strictly increase within one di.
func (s *Store) Append(h *Header, di int32, li []int32, pi int32) error {
	if di < h.writeLastDi || (di == h.writeLastDi && pi <= h.writeLastPi) {
		return fmt.Errorf("%w: out-of-order posting (di=%d pi=%d) after (di=%d pi=%d)",
			ErrInvariant, di, pi, h.writeLastDi, h.writeLastPi)
	}

	needed := entrySize(h.writeLastDi, h.writeLastPi, di, li, pi)
	segEnd := h.writeSeg + segHeaderLen + h.writeSegSize
	remaining := segEnd - h.writeOffset

	if remaining < int64(needed)+1 {
		if err := s.rollSegment(h, needed); err != nil {
			return err
		}
	}

	buf := encodeEntry(h.writeLastDi, h.writeLastPi, di, li, pi)
	if _, err := s.f.WriteAt(buf, h.writeOffset); err != nil {
		return err
	}
	h.writeOffset += int64(len(buf))
	h.writeLastDi = di
	h.writeLastPi = pi
	h.Count++
	return nil
}

// rollSegment closes the current write segment (writing the 1-byte
// end-of-segment marker), allocates a new one at EOF sized to hold at
// least `needed` bytes, and patches the old segment's trailer only after
// the new segment is fully written — so a crash mid-roll leaves the old
// trailer as -1 (an orphaned but harmless tail), never a dangling pointer.
func (s *Store) rollSegment(h *Header, needed int) error {
	if _, err := s.f.WriteAt([]byte{0}, h.writeOffset); err != nil {
		return err
	}

	newSize := h.writeSegSize
	for {
		newSize *= 2
		if newSize >= int64(needed) {
			break
		}
	}

	newSeg, err := s.size()
	if err != nil {
		return err
	}
	if err := s.writeInt32(newSeg, int32(newSize)); err != nil {
		return err
	}
	newPayload := newSeg + segHeaderLen
	if err := s.writeInt32(newPayload+newSize, noSuccessor); err != nil {
		return err
	}

	oldTrailer := h.writeSeg + segHeaderLen + h.writeSegSize
	if err := s.writeInt32(oldTrailer, int32(newSeg)); err != nil {
		return err
	}

	h.writeSeg = newSeg
	h.writeSegSize = newSize
	h.writeOffset = newPayload
	return nil
}

// ReadNext returns the next posting in PV order, or ok == false at the live
// end of the stream (the read cursor has caught up with the write cursor).
func (s *Store) ReadNext(h *Header) (di int32, li []int32, pi int32, ok bool, err error) {
	if h.readUnread {
		h.readUnread = false
		h.readSeg, h.readSegSize, h.readOffset = h.prevSeg, h.prevSegSize, h.prevOffset
		h.readLastDi, h.readLastPi = h.prevLastDi, h.prevLastPi
	}
	h.prevSeg, h.prevSegSize, h.prevOffset = h.readSeg, h.readSegSize, h.readOffset
	h.prevLastDi, h.prevLastPi = h.readLastDi, h.readLastPi

	for {
		if h.readSeg == h.writeSeg && h.readOffset == h.writeOffset {
			return 0, nil, 0, false, nil
		}

		var first byte
		var buf [1]byte
		if _, err := s.f.ReadAt(buf[:], h.readOffset); err != nil {
			return 0, nil, 0, false, err
		}
		first = buf[0]
		if first == 0 {
			trailerAt := h.readSeg + segHeaderLen + h.readSegSize
			next, err := s.readInt32(trailerAt)
			if err != nil {
				return 0, nil, 0, false, err
			}
			if next == noSuccessor {
				return 0, nil, 0, false, fmt.Errorf("%w: segment chain ends without reaching write cursor", ErrInvariant)
			}
			size, err := s.readInt32(int64(next))
			if err != nil {
				return 0, nil, 0, false, err
			}
			h.readSeg = int64(next)
			h.readSegSize = int64(size)
			h.readOffset = int64(next) + segHeaderLen
			continue
		}

		break
	}

	di, li, pi, n, err := s.decodeEntry(h.readOffset, h.readLastDi, h.readLastPi)
	if err != nil {
		return 0, nil, 0, false, err
	}
	h.readOffset += int64(n)
	h.readLastDi, h.readLastPi = di, pi
	return di, li, pi, true, nil
}

// Unread undoes the last ReadNext: the read cursor rewinds to where it was
// before that call, so the next ReadNext re-decodes the same full posting,
// field ids included. It is a one-step lookahead undo: calling Unread twice
// in a row without an intervening ReadNext is an invariant violation.
func (s *Store) Unread(h *Header) error {
	if h.readUnread {
		return fmt.Errorf("%w: Unread called twice without an intervening ReadNext", ErrInvariant)
	}
	h.readUnread = true
	return nil
}

// Rewind resets the read cursor to the start of the first segment.
func (s *Store) Rewind(h *Header) error {
	size, err := s.readInt32(h.Start)
	if err != nil {
		return err
	}
	h.readSeg = h.Start
	h.readSegSize = int64(size)
	h.readOffset = h.Start + segHeaderLen
	h.readLastDi, h.readLastPi = -1, -1
	h.readUnread = false
	h.prevSeg, h.prevSegSize, h.prevOffset = h.readSeg, h.readSegSize, h.readOffset
	h.prevLastDi, h.prevLastPi = -1, -1
	return nil
}

// decodeEntry reads one posting starting at offset, given the read cursor's
// last di/pi: the first varint is read; if it is di-flagged, it is a doc
// delta (last_pi resets to -1 only if the delta is nonzero) and every
// subsequent di-flagged varint is a field id, until a pi-flagged varint
// terminates the entry.
func (s *Store) decodeEntry(offset int64, lastDi, lastPi int32) (di int32, li []int32, pi int32, n int, err error) {
	val, isDi, size, err := decodeVarintAt(s.f, offset)
	if err != nil {
		return 0, nil, 0, 0, err
	}
	n += size
	curDi, curPi := lastDi, lastPi

	if isDi {
		delta := int32(val)
		curDi = lastDi + delta
		if delta != 0 {
			curPi = -1
		}
		val, isDi, size, err = decodeVarintAt(s.f, offset+int64(n))
		if err != nil {
			return 0, nil, 0, 0, err
		}
		n += size
		for isDi {
			li = append(li, int32(val))
			val, isDi, size, err = decodeVarintAt(s.f, offset+int64(n))
			if err != nil {
				return 0, nil, 0, 0, err
			}
			n += size
		}
	}
	curPi = curPi + int32(val)
	return curDi, li, curPi, n, nil
}
