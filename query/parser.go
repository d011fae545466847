package query

import (
	"fmt"
	"strings"
)

// Parse converts the user query syntax into a Query: space-separated
// terms, "quoted phrases", +required/-excluded prefixes, and field:term
// restrictions. Unprefixed terms are ranking terms: when the query has
// inclusion terms they only add score to the documents those admit; when
// it has none, the documents matching a ranking term are the results.
func Parse(s string) (Query, error) {
	q := NewQuery()
	toks, err := tokenize(s)
	if err != nil {
		return Query{}, err
	}
	for _, tok := range toks {
		group := &q.Ranking
		switch {
		case strings.HasPrefix(tok, "+"):
			group = &q.Inclusion
			tok = tok[1:]
		case strings.HasPrefix(tok, "-"):
			group = &q.Exclusion
			tok = tok[1:]
		}
		if tok == "" {
			return Query{}, fmt.Errorf("query: empty term after +/- prefix")
		}
		term, err := parseTerm(tok)
		if err != nil {
			return Query{}, err
		}
		*group = append(*group, term)
	}
	return q, nil
}

// parseTerm parses one already-unprefixed token: a phrase ("a b c"),
// a field:word restriction, or a bare word.
func parseTerm(tok string) (Term, error) {
	if strings.HasPrefix(tok, `"`) {
		if !strings.HasSuffix(tok, `"`) || len(tok) < 2 {
			return Term{}, fmt.Errorf("query: unterminated phrase %q", tok)
		}
		words := strings.Fields(tok[1 : len(tok)-1])
		if len(words) == 0 {
			return Term{}, fmt.Errorf("query: empty phrase")
		}
		atoms := make([]Atom, len(words))
		links := make([]Link, len(words)-1)
		for i, w := range words {
			atoms[i] = Atom{Word: w, Weight: 1}
		}
		for i := range links {
			links[i] = Link{Position: Before, Distance: 1}
		}
		return Term{Atoms: atoms, Links: links}, nil
	}

	if idx := strings.IndexByte(tok, ':'); idx >= 0 {
		field, word := tok[:idx], tok[idx+1:]
		if field == "" {
			return Term{}, fmt.Errorf("query: empty field name in %q", tok)
		}
		if word == "" {
			// field-only probe: does this doc have any occurrence tagged
			// with this field, regardless of word.
			return Term{Atoms: []Atom{{Fields: []string{field}, Weight: 1}}}, nil
		}
		return Term{Atoms: []Atom{{Word: word, Fields: []string{field}, Weight: 1}}}, nil
	}

	return Term{Atoms: []Atom{{Word: tok, Weight: 1}}}, nil
}

// tokenize splits s on whitespace, treating a "double-quoted span" as one
// token even if it contains embedded spaces.
func tokenize(s string) ([]string, error) {
	var toks []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
			cur.WriteByte(c)
		case c == ' ' || c == '\t':
			if inQuote {
				cur.WriteByte(c)
			} else {
				flush()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("query: unterminated quote in %q", s)
	}
	flush()
	return toks, nil
}
