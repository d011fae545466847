// Package strid implements a bijective string<->int table: the vocabulary
// mapping shared by terms, fields, and document paths throughout archer.
//
// Ids are assigned the first time a string is interned and are stable for
// the life of the table — callers rely on that stability to treat an id as
// a permanent key into position-vector storage (see package pv).
package strid

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Header is the magic line written at the start of a persisted table.
const Header = "bow_int4str\n"

const emptySlot = -1

const defaultCapacity = 1024

// Table is an open-addressed, double-hashed string<->int map. Duplicate
// Intern calls for the same string share one id; Lookup never mutates the
// table.
type Table struct {
	strs []string // id -> string, append-only
	hash []int32  // hash slots -> id, or emptySlot
}

// New creates an empty table with a default initial capacity.
func New() *Table { return NewSize(defaultCapacity) }

// NewSize creates an empty table sized for roughly capacity entries.
func NewSize(capacity int) *Table {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	t := &Table{strs: make([]string, 0, capacity)}
	t.hash = newHashSlots(nextPrime(capacity * 2))
	return t
}

func newHashSlots(n int) []int32 {
	h := make([]int32, n)
	for i := range h {
		h[i] = emptySlot
	}
	return h
}

// Len returns the number of interned strings.
func (t *Table) Len() int { return len(t.strs) }

// Get returns the string for id. It panics if id is out of range, the same
// as an unchecked array index.
func (t *Table) Get(id int32) string {
	return t.strs[id]
}

// Lookup returns the id for s, or -1 if s has never been interned. Lookup
// never modifies the table.
func (t *Table) Lookup(s string) int32 {
	if len(t.hash) == 0 {
		return emptySlot
	}
	idx, found := t.probe(s)
	if !found {
		return emptySlot
	}
	return t.hash[idx]
}

// Intern returns the id for s, assigning a new one if s has not been seen
// before. Amortised O(1).
func (t *Table) Intern(s string) int32 {
	idx, found := t.probe(s)
	if found {
		return t.hash[idx]
	}
	id := int32(len(t.strs))
	t.strs = append(t.strs, s)
	t.hash[idx] = id
	if len(t.strs)*2 > len(t.hash) {
		t.grow()
	}
	return id
}

// probe returns the hash slot for s: either the slot already holding it
// (found == true) or the first empty slot on its probe sequence. The
// second hash is forced into [1, size-1] so the probe step is never zero
// modulo the (prime) table size.
func (t *Table) probe(s string) (idx int, found bool) {
	size := uint64(len(t.hash))
	h := xxhash.Sum64String(s)
	i := int(h % size)
	step := h%(size-1) + 1
	for {
		id := t.hash[i]
		if id == emptySlot {
			return i, false
		}
		if t.strs[id] == s {
			return i, true
		}
		i = int((uint64(i) + step) % size)
	}
}

func (t *Table) grow() {
	newSize := nextPrime(len(t.hash) * 2)
	t.hash = newHashSlots(newSize)
	for id, s := range t.strs {
		idx, _ := t.probe(s)
		t.hash[idx] = int32(id)
	}
}

// Iter calls yield for every (id, string) pair in id order. Iteration stops
// early if yield returns false.
func (t *Table) Iter(yield func(id int32, s string) bool) {
	for id, s := range t.strs {
		if !yield(int32(id), s) {
			return
		}
	}
}

// Write serialises the table: the magic header, a decimal count, then one
// string per line. Write fails rather than emit a corrupt file if any
// string contains a newline.
func (t *Table) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := io.WriteString(bw, Header); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(bw, len(t.strs)); err != nil {
		return err
	}
	for _, s := range t.strs {
		if strings.ContainsRune(s, '\n') {
			return fmt.Errorf("strid: string contains newline: %q", s)
		}
		if _, err := fmt.Fprintln(bw, s); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Read builds a new table from a file written by Write: magic header,
// decimal count, then that many newline-terminated strings.
func Read(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("strid: reading header: %w", err)
	}
	if line != Header {
		return nil, fmt.Errorf("strid: bad header %q", line)
	}
	countLine, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("strid: reading count: %w", err)
	}
	count, err := strconv.Atoi(strings.TrimSuffix(countLine, "\n"))
	if err != nil {
		return nil, fmt.Errorf("strid: bad count %q: %w", countLine, err)
	}
	t := NewSize(count)
	for i := 0; i < count; i++ {
		s, err := br.ReadString('\n')
		if err != nil {
			if err == io.EOF && s != "" {
				t.Intern(s)
				continue
			}
			return nil, fmt.Errorf("strid: reading entry %d: %w", i, err)
		}
		t.Intern(strings.TrimSuffix(s, "\n"))
	}
	return t, nil
}

// ReadInc appends to t every line available on r until EOF, with no header
// and no count. It is used to sync a vocabulary that a concurrent reindex
// has appended to on disk: the reader resumes exactly where it left off
// because the underlying file descriptor's seek position carries forward.
func (t *Table) ReadInc(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		t.Intern(sc.Text())
	}
	return sc.Err()
}

// nextPrime returns the smallest prime >= n: the capacity progression is
// to double, then round up to a prime.
func nextPrime(n int) int {
	if n < 2 {
		return 2
	}
	for !isPrime(n) {
		n++
	}
	return n
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for i := 3; i*i <= n; i += 2 {
		if n%i == 0 {
			return false
		}
	}
	return true
}
