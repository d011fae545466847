// Package indexer drives the tagged lexer into the vocabulary, document,
// and position-vector stores: for each source it allocates or reuses a
// document id, walks the lexer's event stream, and emits postings keyed by
// term id and by field id.
package indexer

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-mizu/archer/doctable"
	"github.com/go-mizu/archer/lexer"
	"github.com/go-mizu/archer/strid"
	"github.com/go-mizu/archer/termindex"
)

// Stores bundles the persistent structures one Indexer writes into.
type Stores struct {
	Vocab  *strid.Table     // term -> wi
	Fields *doctable.Table  // field name -> li, FieldRecord
	Docs   *doctable.Table  // path -> di, DocRecord
	Terms  *termindex.Index // wi -> PV
	Labels *termindex.Index // li -> PV
}

// Indexer drives lexer.Lexer events into a Stores.
type Indexer struct {
	s Stores
}

// New returns an Indexer writing into s.
func New(s Stores) *Indexer {
	return &Indexer{s: s}
}

// ErrSkipUnbalanced is returned when a source closes more <skip> regions
// than it opened.
var ErrSkipUnbalanced = fmt.Errorf("indexer: unbalanced skip region")

// Index reads src under the given path. If path is already indexed and
// tombstoned, it is undeleted and src is not re-scanned (its postings
// remain valid since they were never destroyed). If path is indexed and
// live, Index returns without re-reading src: re-indexing a live document
// requires an explicit rebuild.
func (ix *Indexer) Index(path string, src io.Reader) error {
	if di, err := ix.s.Docs.IndexOf(path); err == nil {
		rec := ix.s.Docs.GetByIndex(di).(*doctable.DocRecord)
		if rec.Tombstoned() {
			undeleted := rec.Undelete()
			ix.s.Docs.PutByIndex(di, &undeleted)
		}
		return nil
	}

	di, err := ix.s.Docs.Add(path, &doctable.DocRecord{WordCount: 0, Di: int32(ix.s.Docs.Len())})
	if err != nil {
		return err
	}

	lx := lexer.Open(src)
	defer lx.Close()

	var pi int32
	skipDepth := 0
	// open tracks the currently open labels (with nesting depth): the set
	// attached to every term's posting in the term PV. wait holds labels
	// opened since the last indexed term: each gets exactly one field-PV
	// posting, at the position of the next indexed term, so the field PV
	// never carries two identical field ids at one pi and an open/close
	// pair with no term between emits nothing at all.
	open := map[int32]int{}
	var wait []int32

	for {
		ev, err := lx.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		switch ev.Kind {
		case lexer.LabelOpen:
			if ev.Text == lexer.SkipLabel {
				skipDepth++
				continue
			}
			li := ix.s.Fields.Intern(ev.Text)
			open[li]++
			if !containsLi(wait, li) {
				wait = append(wait, li)
			}

		case lexer.LabelClose:
			if ev.Text == lexer.SkipLabel {
				skipDepth--
				if skipDepth < 0 {
					return ErrSkipUnbalanced
				}
				continue
			}
			li := ix.s.Fields.Lookup(ev.Text)
			if li == -1 {
				continue
			}
			if open[li] > 0 {
				open[li]--
				if open[li] == 0 {
					delete(open, li)
					wait = removeLi(wait, li)
				}
			}

		case lexer.Term:
			if skipDepth != 0 {
				continue
			}
			wi := ix.s.Vocab.Intern(ev.Text)
			lis := make([]int32, 0, len(open))
			for li := range open {
				lis = append(lis, li)
			}
			sort.Slice(lis, func(a, b int) bool { return lis[a] < lis[b] })
			if err := ix.s.Terms.Add(wi, di, lis, pi); err != nil {
				return err
			}
			for _, li := range wait {
				if err := ix.s.Labels.Add(li, di, nil, pi); err != nil {
					return err
				}
			}
			wait = wait[:0]
			for _, li := range lis {
				ix.bumpFieldWordCount(li)
			}
			pi++
		}
	}

	// A source with zero indexable terms is a pathological input; word_count
	// stays 0 only in that case, which the data model treats as transient.
	final := doctable.DocRecord{WordCount: pi, Di: di}
	ix.s.Docs.PutByIndex(di, &final)
	return nil
}

// bumpFieldWordCount records one more occurrence tagged with field li in
// the field table's FieldRecord, setting Li on the record's first use
// (Fields.Intern only allocates a zero-value record, since the generic
// Table has no way to stamp in the index it just assigned).
func (ix *Indexer) bumpFieldWordCount(li int32) {
	rec := ix.s.Fields.GetByIndex(li).(*doctable.FieldRecord)
	updated := *rec
	updated.Li = li
	updated.WordCount++
	ix.s.Fields.PutByIndex(li, &updated)
}

func containsLi(lis []int32, li int32) bool {
	for _, l := range lis {
		if l == li {
			return true
		}
	}
	return false
}

func removeLi(lis []int32, li int32) []int32 {
	for i, l := range lis {
		if l == li {
			return append(lis[:i], lis[i+1:]...)
		}
	}
	return lis
}

// Delete tombstones path by negating its word_count. Postings are left
// intact and filtered at query time.
func (ix *Indexer) Delete(path string) error {
	di, err := ix.s.Docs.IndexOf(path)
	if err != nil {
		return err
	}
	rec := ix.s.Docs.GetByIndex(di).(*doctable.DocRecord)
	tombstoned := rec.Tombstone()
	ix.s.Docs.PutByIndex(di, &tombstoned)
	return nil
}
