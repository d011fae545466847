package archer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-mizu/archer/doctable"
	"github.com/go-mizu/archer/query"
	"github.com/go-mizu/archer/queryexec"
)

// IndexFile reads the file at path and indexes it under that path as its
// document key.
func (idx *Index) IndexFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archer: opening %s: %w", path, err)
	}
	defer f.Close()
	return idx.ix.Index(path, f)
}

// IndexAs reads the file at srcPath and indexes its content under key
// instead of under srcPath itself: the admin "nindex" command uses this to
// re-index a document from a separately supplied, already-tagged markup
// file while keeping the document's original key stable in the doc table.
func (idx *Index) IndexAs(key, srcPath string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("archer: opening %s: %w", srcPath, err)
	}
	defer f.Close()
	return idx.ix.Index(key, f)
}

// IndexDir walks dir recursively and indexes every regular file it finds,
// keyed by its path.
func (idx *Index) IndexDir(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return idx.IndexFile(path)
	})
}

// IndexLines indexes path line by line: each line becomes its own document,
// keyed "path:lineNumber" (1-based).
func (idx *Index) IndexLines(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archer: opening %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		key := fmt.Sprintf("%s:%d", path, n)
		if err := idx.ix.Index(key, strings.NewReader(sc.Text())); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Delete tombstones the document at path.
func (idx *Index) Delete(path string) error {
	return idx.ix.Delete(path)
}

// Query parses and executes a query string against the index.
func (idx *Index) Query(ctx context.Context, text string) ([]queryexec.Result, error) {
	q, err := query.Parse(text)
	if err != nil {
		return nil, err
	}
	return idx.QueryAST(ctx, q)
}

// QueryAST executes an already-parsed query.
func (idx *Index) QueryAST(ctx context.Context, q query.Query) ([]queryexec.Result, error) {
	return queryexec.Exec(ctx, idx.execIndex(), q)
}

func (idx *Index) execIndex() queryexec.Index {
	return queryexec.Index{
		Vocab:  idx.vocab,
		Fields: idx.fields,
		Docs:   idx.docs,
		Terms:  idx.terms,
		Labels: idx.labels,
	}
}

// DocPath returns the key a document id was indexed under, or "" if di was
// never assigned.
func (idx *Index) DocPath(di int32) string {
	if di < 0 || int(di) >= idx.docs.Len() {
		return ""
	}
	return idx.docs.KeyOf(di)
}

// DocIndex returns the document id a path was indexed under, and whether
// that document is still live.
func (idx *Index) DocIndex(path string) (di int32, live bool, err error) {
	di, err = idx.docs.IndexOf(path)
	if err != nil {
		return 0, false, err
	}
	rec, ok := idx.docs.GetByIndex(di).(*doctable.DocRecord)
	return di, ok && rec.Live(), nil
}

// LiveDocs lists every non-tombstoned document path, in document-id order.
func (idx *Index) LiveDocs() []string {
	var out []string
	for i := int32(0); i < int32(idx.docs.Len()); i++ {
		if rec, ok := idx.docs.GetByIndex(i).(*doctable.DocRecord); ok && rec.Live() {
			out = append(out, idx.docs.KeyOf(i))
		}
	}
	return out
}

// DocEntry pairs a document id with the path it was indexed under.
type DocEntry struct {
	ID   int32
	Path string
}

// DocEntries lists every live document as (id, path) pairs, in document-id
// order. Used by the server's "docs" command, which unlike LiveDocs must
// also report each document's id.
func (idx *Index) DocEntries() []DocEntry {
	var out []DocEntry
	for i := int32(0); i < int32(idx.docs.Len()); i++ {
		if rec, ok := idx.docs.GetByIndex(i).(*doctable.DocRecord); ok && rec.Live() {
			out = append(out, DocEntry{ID: i, Path: idx.docs.KeyOf(i)})
		}
	}
	return out
}

// FieldNames lists every field name ever interned, in id order.
func (idx *Index) FieldNames() []string {
	var out []string
	idx.fields.Iter(func(_ int32, s string) bool {
		out = append(out, s)
		return true
	})
	return out
}

// LiveWordCount returns the total of word_count across all live documents,
// summed on each call.
func (idx *Index) LiveWordCount() int32 {
	return doctable.SumLiveWordCount(idx.docs)
}

// DumpAll writes every posting in the index to w, in term-id order: one
// line per occurrence carrying the document id, position, term, and any
// field names attached at that position. This is the --print-all
// diagnostic dump; it walks the raw position vectors and does not filter
// tombstoned documents.
func (idx *Index) DumpAll(w io.Writer) error {
	var iterErr error
	idx.vocab.Iter(func(wi int32, word string) bool {
		if int(wi) >= idx.terms.Len() {
			return true
		}
		r, err := idx.terms.NewReader(wi)
		if err != nil {
			iterErr = err
			return false
		}
		for {
			di, lis, pi, ok, err := r.Next()
			if err != nil {
				iterErr = err
				return false
			}
			if !ok {
				return true
			}
			if _, err := fmt.Fprintf(w, "%010d %010d %s: ", di, pi, word); err != nil {
				iterErr = err
				return false
			}
			for _, li := range lis {
				if _, err := fmt.Fprintf(w, "%s ", idx.fields.KeyOf(li)); err != nil {
					iterErr = err
					return false
				}
			}
			if _, err := fmt.Fprintln(w); err != nil {
				iterErr = err
				return false
			}
		}
	})
	return iterErr
}

// WordStat is one line of --print-word-stats output: a term and how often
// it occurs across every indexed document, tombstoned ones included.
type WordStat struct {
	Word  string
	Df    int
	Total int64
}

// WordStats returns, for every interned term, its document frequency and
// total occurrence count, sorted by document frequency descending.
func (idx *Index) WordStats() []WordStat {
	var out []WordStat
	idx.vocab.Iter(func(wi int32, word string) bool {
		if int(wi) >= idx.terms.Len() {
			return true
		}
		total := idx.terms.Count(wi)
		if total == 0 {
			return true
		}
		df := idx.distinctDocCount(wi)
		out = append(out, WordStat{Word: word, Df: df, Total: total})
		return true
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Df > out[j].Df })
	return out
}

func (idx *Index) distinctDocCount(wi int32) int {
	r, err := idx.terms.NewReader(wi)
	if err != nil {
		return 0
	}
	seen := map[int32]bool{}
	for {
		di, _, _, ok, err := r.Next()
		if err != nil || !ok {
			break
		}
		seen[di] = true
	}
	return len(seen)
}
