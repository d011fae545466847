// Package archer is the facade over the incremental positional inverted
// index: it owns the on-disk data directory and wires together the
// vocabulary, document, and position-vector stores that the subpackages
// implement.
package archer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/go-mizu/archer/doctable"
	"github.com/go-mizu/archer/indexer"
	"github.com/go-mizu/archer/strid"
	"github.com/go-mizu/archer/termindex"
)

const (
	vocabularyFile  = "vocabulary"
	fieldsFile      = "fields"
	docsFile        = "docs.table"
	termHeaderFile  = "wi2pv"
	termBlobFile    = "pv"
	labelHeaderFile = "li2pv"
	labelBlobFile   = "lipv"
)

// Index owns every on-disk store for one data directory and drives the
// indexer and query executor over them: a functional-option constructor,
// an embedded logger, and a single lifecycle entry point (here Open/Create
// instead of Listen).
type Index struct {
	dir string
	log zerolog.Logger

	vocab  *strid.Table
	fields *doctable.Table
	docs   *doctable.Table
	terms  *termindex.Index
	labels *termindex.Index

	termBlob  *os.File
	labelBlob *os.File

	ix *indexer.Indexer
}

// Option configures an Index at construction time.
type Option func(*Index)

// WithLogger sets the structured logger used for indexing and query
// activity. The zero value logs to stderr at info level.
func WithLogger(l zerolog.Logger) Option {
	return func(idx *Index) { idx.log = l }
}

func defaultLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Create initialises a fresh, empty data directory at dir. It fails if dir
// already contains an index.
func Create(dir string, opts ...Option) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archer: creating data dir: %w", err)
	}
	if _, err := os.Stat(filepath.Join(dir, vocabularyFile)); err == nil {
		return nil, fmt.Errorf("archer: %s already contains an index", dir)
	}

	idx := newIndex(dir, opts...)
	idx.vocab = strid.New()
	idx.fields = doctable.New(doctable.FieldRecordSize, doctable.NewFieldRecord)
	idx.docs = doctable.New(doctable.DocRecordSize, doctable.NewDocRecord)

	var err error
	if idx.termBlob, err = os.Create(filepath.Join(dir, termBlobFile)); err != nil {
		return nil, fmt.Errorf("archer: creating term blob: %w", err)
	}
	if idx.labelBlob, err = os.Create(filepath.Join(dir, labelBlobFile)); err != nil {
		return nil, fmt.Errorf("archer: creating label blob: %w", err)
	}
	idx.terms = termindex.Open(idx.termBlob)
	idx.labels = termindex.Open(idx.labelBlob)
	idx.ix = indexer.New(idx.stores())

	idx.log.Info().Str("dir", dir).Msg("index created")
	return idx, nil
}

// Open loads an existing data directory written by a prior Close.
func Open(dir string, opts ...Option) (*Index, error) {
	idx := newIndex(dir, opts...)

	var err error
	if idx.vocab, err = readStrid(filepath.Join(dir, vocabularyFile)); err != nil {
		return nil, fmt.Errorf("archer: reading vocabulary: %w", err)
	}

	idx.fields = doctable.New(doctable.FieldRecordSize, doctable.NewFieldRecord)
	if f, ferr := os.Open(filepath.Join(dir, fieldsFile)); ferr == nil {
		err = idx.fields.ReadInc(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("archer: reading field table: %w", err)
		}
	}

	idx.docs = doctable.New(doctable.DocRecordSize, doctable.NewDocRecord)
	if f, ferr := os.Open(filepath.Join(dir, docsFile)); ferr == nil {
		err = idx.docs.ReadInc(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("archer: reading doc table: %w", err)
		}
	}

	if idx.termBlob, err = os.OpenFile(filepath.Join(dir, termBlobFile), os.O_RDWR|os.O_CREATE, 0o644); err != nil {
		return nil, fmt.Errorf("archer: opening term blob: %w", err)
	}
	if idx.labelBlob, err = os.OpenFile(filepath.Join(dir, labelBlobFile), os.O_RDWR|os.O_CREATE, 0o644); err != nil {
		return nil, fmt.Errorf("archer: opening label blob: %w", err)
	}

	idx.terms, err = readTermIndex(filepath.Join(dir, termHeaderFile), idx.termBlob)
	if err != nil {
		return nil, fmt.Errorf("archer: reading term index: %w", err)
	}
	idx.labels, err = readTermIndex(filepath.Join(dir, labelHeaderFile), idx.labelBlob)
	if err != nil {
		return nil, fmt.Errorf("archer: reading label index: %w", err)
	}
	idx.ix = indexer.New(idx.stores())

	idx.log.Info().Str("dir", dir).Msg("index opened")
	return idx, nil
}

func newIndex(dir string, opts ...Option) *Index {
	idx := &Index{dir: dir, log: defaultLogger()}
	for _, o := range opts {
		o(idx)
	}
	return idx
}

func (idx *Index) stores() indexer.Stores {
	return indexer.Stores{
		Vocab:  idx.vocab,
		Fields: idx.fields,
		Docs:   idx.docs,
		Terms:  idx.terms,
		Labels: idx.labels,
	}
}

func readStrid(path string) (*strid.Table, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return strid.New(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return strid.Read(f)
}

func readTermIndex(headerPath string, blob *os.File) (*termindex.Index, error) {
	f, err := os.Open(headerPath)
	if os.IsNotExist(err) {
		return termindex.Open(blob), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return termindex.ReadFull(f, blob)
}

// Logger returns the Index's structured logger.
func (idx *Index) Logger() zerolog.Logger { return idx.log }

// Close flushes every store to disk and releases file handles.
func (idx *Index) Close() error {
	if err := idx.flush(); err != nil {
		return err
	}
	if err := idx.termBlob.Close(); err != nil {
		return err
	}
	return idx.labelBlob.Close()
}

func (idx *Index) flush() error {
	if err := writeStrid(filepath.Join(idx.dir, vocabularyFile), idx.vocab); err != nil {
		return fmt.Errorf("archer: writing vocabulary: %w", err)
	}

	ff, err := os.Create(filepath.Join(idx.dir, fieldsFile))
	if err != nil {
		return fmt.Errorf("archer: creating field table file: %w", err)
	}
	if err := idx.fields.WriteInc(ff, 0); err != nil {
		ff.Close()
		return fmt.Errorf("archer: writing field table: %w", err)
	}
	if err := ff.Close(); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(idx.dir, docsFile))
	if err != nil {
		return fmt.Errorf("archer: creating doc table file: %w", err)
	}
	if err := idx.docs.WriteInc(f, 0); err != nil {
		f.Close()
		return fmt.Errorf("archer: writing doc table: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := idx.termBlob.Sync(); err != nil {
		return fmt.Errorf("archer: syncing term blob: %w", err)
	}
	if err := writeTermIndex(filepath.Join(idx.dir, termHeaderFile), idx.terms); err != nil {
		return fmt.Errorf("archer: writing term index: %w", err)
	}
	if err := idx.labelBlob.Sync(); err != nil {
		return fmt.Errorf("archer: syncing label blob: %w", err)
	}
	if err := writeTermIndex(filepath.Join(idx.dir, labelHeaderFile), idx.labels); err != nil {
		return fmt.Errorf("archer: writing label index: %w", err)
	}
	return nil
}

func writeStrid(path string, t *strid.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return t.Write(f)
}

func writeTermIndex(path string, t *termindex.Index) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return t.WriteFull(f)
}

// Reopen flushes the current state to disk, reloads every store from the
// data directory, and replaces this Index's stores and file handles in
// place, for every user of the Index. Independent per-reader cursors come
// from termindex.Reader, not from Reopen.
func (idx *Index) Reopen() error {
	if err := idx.flush(); err != nil {
		return err
	}
	oldTermBlob, oldLabelBlob := idx.termBlob, idx.labelBlob

	reopened, err := Open(idx.dir, WithLogger(idx.log))
	if err != nil {
		return err
	}
	oldTermBlob.Close()
	oldLabelBlob.Close()

	idx.vocab = reopened.vocab
	idx.fields = reopened.fields
	idx.docs = reopened.docs
	idx.terms = reopened.terms
	idx.labels = reopened.labels
	idx.termBlob = reopened.termBlob
	idx.labelBlob = reopened.labelBlob
	idx.ix = reopened.ix
	return nil
}
