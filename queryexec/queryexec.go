// Package queryexec implements the query executor: merges position
// vectors across a query's inclusion/exclusion/ranking term chains,
// verifies proximity constraints, and produces a ranked, scored result
// list.
package queryexec

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/go-mizu/archer/doctable"
	"github.com/go-mizu/archer/query"
	"github.com/go-mizu/archer/strid"
	"github.com/go-mizu/archer/termindex"
)

// Index bundles the read side of every store the executor touches.
type Index struct {
	Vocab  *strid.Table
	Fields *doctable.Table
	Docs   *doctable.Table
	Terms  *termindex.Index
	Labels *termindex.Index
}

// WordOccurrence records one chain atom's matches within a single document.
type WordOccurrence struct {
	Wi      int32
	IsField bool
	Term    string
	Pis     []int32
}

// Result is one scored, ranked document.
type Result struct {
	Di              int32
	Score           float64
	WordOccurrences []WordOccurrence
}

// docAccum is the mutable per-document accumulator used while building the
// intersection/shortlist table T.
type docAccum struct {
	occs  []WordOccurrence
	score float64
}

func (a *docAccum) clone() *docAccum {
	occs := make([]WordOccurrence, len(a.occs))
	copy(occs, a.occs)
	return &docAccum{occs: occs, score: a.score}
}

// occAtom is one chain atom's resolved identity plus its matched positions
// in a particular document, before it is folded into a docAccum.
type occAtom struct {
	wi      int32
	isField bool
	name    string
	pis     []int32
	weight  float64
}

// Exec runs q against idx and returns results sorted by descending score.
// A nil, nil return means the query matched nothing, including an
// inclusion term with an unknown word or an exclusion-only query.
func Exec(ctx context.Context, idx Index, q query.Query) ([]Result, error) {
	liveCount, err := countLiveDocs(idx)
	if err != nil {
		return nil, err
	}

	T := map[int32]*docAccum{}
	hasInclusion := len(q.Inclusion) > 0
	exclude := false

	for i, term := range q.Inclusion {
		matched, err := matchChain(ctx, idx, term)
		if err != nil {
			return nil, err
		}
		if len(matched) == 0 {
			// An inclusion term with no matches (e.g. an unknown word)
			// fails the whole query immediately.
			return nil, nil
		}
		idf := idfOf(liveCount, len(matched))
		if i == 0 {
			for di, occs := range matched {
				if restricted(q, di) {
					continue
				}
				addOccs(T, di, occs, idf)
			}
		} else {
			for di := range T {
				occs, ok := matched[di]
				if !ok {
					delete(T, di)
					continue
				}
				addOccs(T, di, occs, idf)
			}
		}
	}

	for _, term := range q.Exclusion {
		matched, err := matchChain(ctx, idx, term)
		if err != nil {
			return nil, err
		}
		if hasInclusion {
			for di := range matched {
				delete(T, di)
			}
			continue
		}
		exclude = true
		for di := range matched {
			if _, ok := T[di]; !ok {
				T[di] = &docAccum{}
			}
		}
	}

	if len(q.Ranking) > 0 {
		R := map[int32]*docAccum{}
		for _, term := range q.Ranking {
			matched, err := matchChain(ctx, idx, term)
			if err != nil {
				return nil, err
			}
			if len(matched) == 0 {
				continue
			}
			idf := idfOf(liveCount, len(matched))
			for di, occs := range matched {
				if restricted(q, di) {
					continue
				}
				switch {
				case exclude:
					if _, blacklisted := T[di]; blacklisted {
						continue
					}
					addOccs(R, di, occs, idf)
				case hasInclusion:
					if _, ok := T[di]; !ok {
						continue
					}
					if _, already := R[di]; !already {
						R[di] = T[di].clone()
					}
					addOccs(R, di, occs, idf)
				default:
					addOccs(R, di, occs, idf)
				}
			}
		}
		T = R
	} else if exclude {
		// Exclusion-only query with nothing to rank: defined to yield
		// nothing.
		return nil, nil
	}

	// By this point an exclusion-only query with no ranking has already
	// returned above, so T never still holds bare blacklist markers here.
	results := make([]Result, 0, len(T))
	for di, acc := range T {
		occs := acc.occs
		sort.SliceStable(occs, func(i, j int) bool {
			if occs[i].Wi != occs[j].Wi {
				return occs[i].Wi < occs[j].Wi
			}
			return !occs[i].IsField && occs[j].IsField
		})
		results = append(results, Result{Di: di, Score: acc.score, WordOccurrences: occs})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Di < results[j].Di
	})
	return results, nil
}

func restricted(q query.Query, di int32) bool {
	return q.DocRestriction >= 0 && di != q.DocRestriction
}

func idfOf(liveCount, df int) float64 {
	if df <= 0 {
		return 0
	}
	return math.Log(float64(liveCount) / float64(df))
}

func addOccs(table map[int32]*docAccum, di int32, occs []occAtom, idf float64) {
	acc, ok := table[di]
	if !ok {
		acc = &docAccum{}
		table[di] = acc
	}
	for _, o := range occs {
		acc.occs = append(acc.occs, WordOccurrence{Wi: o.wi, IsField: o.isField, Term: o.name, Pis: o.pis})
		acc.score += float64(len(o.pis)) * o.weight * idf
	}
}

// matchChain resolves every atom in term to its posting set, intersects
// the candidate document ids, and verifies the proximity chain at each
// candidate via depth-first search over the atoms' position lists. The
// return value maps every document where the whole chain matched to the
// per-atom occurrence records used for scoring.
func matchChain(ctx context.Context, idx Index, term query.Term) (map[int32][]occAtom, error) {
	postings := make([]map[int32][]int32, len(term.Atoms))
	meta := make([]occAtom, len(term.Atoms))

	g, ctx := errgroup.WithContext(ctx)
	for i, atom := range term.Atoms {
		i, atom := i, atom
		g.Go(func() error {
			p, m, err := readAtomPostings(ctx, idx, atom)
			if err != nil {
				return err
			}
			postings[i] = p
			meta[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matched := map[int32][]occAtom{}
	for di := range smallestPostingSet(postings) {
		if !inAllSets(postings, di) {
			continue
		}
		pisList := make([][]int32, len(postings))
		for i := range postings {
			pisList[i] = postings[i][di]
		}
		if !chainSatisfied(pisList, term.Links) {
			continue
		}
		occs := make([]occAtom, len(term.Atoms))
		for i, atom := range term.Atoms {
			occs[i] = occAtom{
				wi: meta[i].wi, isField: meta[i].isField, name: meta[i].name,
				pis: pisList[i], weight: atom.Weight,
			}
		}
		matched[di] = occs
	}
	return matched, nil
}

// smallestPostingSet returns the atom's posting map with the fewest
// candidate documents, to minimise the work in the intersection scan that
// follows.
func smallestPostingSet(postings []map[int32][]int32) map[int32][]int32 {
	best := postings[0]
	for _, p := range postings[1:] {
		if len(p) < len(best) {
			best = p
		}
	}
	return best
}

func inAllSets(postings []map[int32][]int32, di int32) bool {
	for _, p := range postings {
		if _, ok := p[di]; !ok {
			return false
		}
	}
	return true
}

// readAtomPostings resolves one Atom to its (di -> sorted pis) posting
// map, filtering out tombstoned documents. A word atom reads the term PV
// for its word, restricted to the atom's Fields (checked against the
// field-id set already attached to each posting at index time); a
// field-only probe (empty Word) reads the field PV directly. Each atom
// gets its own termindex.Reader, so two atoms naming the same word — and
// concurrent queries over the same index — never share a read cursor.
func readAtomPostings(ctx context.Context, idx Index, atom query.Atom) (map[int32][]int32, occAtom, error) {
	if atom.Word == "" {
		return readFieldProbe(ctx, idx, atom)
	}
	wi := idx.Vocab.Lookup(atom.Word)
	if wi == -1 {
		return nil, occAtom{name: atom.Word}, nil
	}

	var wantFields map[int32]bool
	if len(atom.Fields) > 0 {
		wantFields = make(map[int32]bool, len(atom.Fields))
		for _, f := range atom.Fields {
			if li := idx.Fields.Lookup(f); li != -1 {
				wantFields[li] = true
			}
		}
		if len(wantFields) == 0 {
			// None of the requested fields exist; nothing can match.
			return nil, occAtom{wi: wi, name: atom.Word}, nil
		}
	}

	if int(wi) >= idx.Terms.Len() {
		return nil, occAtom{wi: wi, name: atom.Word}, nil
	}
	r, err := idx.Terms.NewReader(wi)
	if err != nil {
		return nil, occAtom{}, err
	}
	out := map[int32][]int32{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, occAtom{}, err
		}
		di, li, pi, ok, err := r.Next()
		if err != nil {
			return nil, occAtom{}, err
		}
		if !ok {
			break
		}
		if wantFields != nil && !anyFieldMatches(li, wantFields) {
			continue
		}
		if !isLiveDoc(idx, di) {
			continue
		}
		out[di] = append(out[di], pi)
	}
	return out, occAtom{wi: wi, name: atom.Word}, nil
}

func readFieldProbe(ctx context.Context, idx Index, atom query.Atom) (map[int32][]int32, occAtom, error) {
	if len(atom.Fields) != 1 {
		return nil, occAtom{}, fmt.Errorf("queryexec: field-only probe must name exactly one field, got %v", atom.Fields)
	}
	name := atom.Fields[0]
	li := idx.Fields.Lookup(name)
	if li == -1 {
		return nil, occAtom{name: name, isField: true}, nil
	}

	if int(li) >= idx.Labels.Len() {
		return nil, occAtom{name: name, isField: true}, nil
	}
	r, err := idx.Labels.NewReader(li)
	if err != nil {
		return nil, occAtom{}, err
	}
	out := map[int32][]int32{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, occAtom{}, err
		}
		di, _, pi, ok, err := r.Next()
		if err != nil {
			return nil, occAtom{}, err
		}
		if !ok {
			break
		}
		if !isLiveDoc(idx, di) {
			continue
		}
		out[di] = append(out[di], pi)
	}
	return out, occAtom{wi: li, isField: true, name: name}, nil
}

func anyFieldMatches(li []int32, want map[int32]bool) bool {
	for _, l := range li {
		if want[l] {
			return true
		}
	}
	return false
}

func isLiveDoc(idx Index, di int32) bool {
	rec, ok := idx.Docs.GetByIndex(di).(*doctable.DocRecord)
	return ok && rec.Live()
}

func countLiveDocs(idx Index) (int, error) {
	n := 0
	for i := int32(0); i < int32(idx.Docs.Len()); i++ {
		if isLiveDoc(idx, i) {
			n++
		}
	}
	return n, nil
}

// chainSatisfied reports whether there exists at least one position
// assignment, one per atom in order, satisfying every pairwise Link
// constraint, found via depth-first search.
func chainSatisfied(pisList [][]int32, links []query.Link) bool {
	return dfs(0, 0, pisList, links)
}

func dfs(depth int, prevPi int32, pisList [][]int32, links []query.Link) bool {
	if depth == len(pisList) {
		return true
	}
	for _, pi := range pisList[depth] {
		if depth == 0 || linkSatisfied(links[depth-1], prevPi, pi) {
			if dfs(depth+1, pi, pisList, links) {
				return true
			}
		}
	}
	return false
}

func linkSatisfied(l query.Link, prev, cur int32) bool {
	switch l.Position {
	case query.Before:
		d := cur - prev
		return d > 0 && d <= int32(l.Distance)
	case query.After:
		d := prev - cur
		return d > 0 && d <= int32(l.Distance)
	case query.Within:
		d := cur - prev
		if d < 0 {
			d = -d
		}
		return d <= int32(l.Distance)
	default:
		return false
	}
}
