package pv

import "os"

// Varint layout: the first byte carries a 1-bit is-di flag (bit 7), a
// 1-bit continuation flag (bit 6), and 6 payload bits.
// Each continuation byte carries a continuation flag (bit 7) and 7 payload
// bits. A value is self-delimiting: the reader knows it is done when a byte
// has its continuation bit clear.
const (
	firstByteIsDiBit     = 0x80
	firstByteMoreBit     = 0x40
	firstBytePayload     = 0x3f
	firstBytePayloadBits = 6

	contByteMoreBit     = 0x80
	contBytePayload     = 0x7f
	contBytePayloadBits = 7
)

// varintSize returns the number of bytes appendVarint would write for v.
func varintSize(v uint32) int {
	n := 1
	v >>= firstBytePayloadBits
	for v != 0 {
		n++
		v >>= contBytePayloadBits
	}
	return n
}

// appendVarint appends the self-delimiting encoding of v to buf, flagged
// is-di or is-pi by isDi.
func appendVarint(buf []byte, v uint32, isDi bool) []byte {
	first := byte(v & firstBytePayload)
	if isDi {
		first |= firstByteIsDiBit
	}
	v >>= firstBytePayloadBits
	if v == 0 {
		return append(buf, first)
	}
	first |= firstByteMoreBit
	buf = append(buf, first)
	for {
		b := byte(v & contBytePayload)
		v >>= contBytePayloadBits
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|contByteMoreBit)
	}
}

// encodeEntry encodes one posting as a sequence of varints, given the
// write cursor's last di/pi: a di-delta (present whenever the doc changes
// or li is non-empty), each field id in li, then a pi-delta (from the
// previous pi in the same doc, or pi+1 when the doc just changed).
func encodeEntry(lastDi, lastPi int32, di int32, li []int32, pi int32) []byte {
	var buf []byte
	if di != lastDi || len(li) > 0 {
		buf = appendVarint(buf, uint32(di-lastDi), true)
	}
	for _, l := range li {
		buf = appendVarint(buf, uint32(l), true)
	}
	var delta uint32
	if di == lastDi {
		delta = uint32(pi - lastPi)
	} else {
		delta = uint32(pi + 1)
	}
	return appendVarint(buf, delta, false)
}

// decodeVarintAt reads one varint starting at absolute offset at.
func decodeVarintAt(f *os.File, at int64) (val uint32, isDi bool, size int, err error) {
	var b [1]byte
	if _, err = f.ReadAt(b[:], at); err != nil {
		return 0, false, 0, err
	}
	size = 1
	isDi = b[0]&firstByteIsDiBit != 0
	more := b[0]&firstByteMoreBit != 0
	val = uint32(b[0] & firstBytePayload)
	shift := uint(firstBytePayloadBits)
	for more {
		var nb [1]byte
		if _, err = f.ReadAt(nb[:], at+int64(size)); err != nil {
			return 0, false, 0, err
		}
		size++
		more = nb[0]&contByteMoreBit != 0
		val |= uint32(nb[0]&contBytePayload) << shift
		shift += contBytePayloadBits
	}
	return val, isDi, size, nil
}
