// Package dump implements the re-lex-and-highlight response: a source
// document is scanned again with package lexer, reproduced byte for byte
// with XML escaping, and every term occurrence whose position is in a
// query's match set is wrapped in <match>...</match>.
package dump

import (
	"bytes"
	"io"
	"sort"
	"strings"

	"github.com/go-mizu/archer/lexer"
)

// Highlight re-lexes src and returns it as an XML-escaped byte stream with
// <match>...</match> wrapped around every term whose 0-based position (in
// the same skip-aware counting the indexer uses) is in matchingPis.
// matchingPis need not be sorted or deduplicated; Highlight does both.
func Highlight(src []byte, matchingPis []int32) (string, error) {
	sorted := dedupSorted(matchingPis)

	lx := lexer.Open(bytes.NewReader(src))
	defer lx.Close()

	var out strings.Builder
	var cur int64
	var pi int32
	skipDepth := 0
	m := 0

	for {
		ev, err := lx.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		writeEscaped(&out, src[cur:ev.Start])
		cur = ev.End

		switch ev.Kind {
		case lexer.LabelOpen:
			if ev.Text == lexer.SkipLabel {
				skipDepth++
			}
			writeEscaped(&out, src[ev.Start:ev.End])

		case lexer.LabelClose:
			if ev.Text == lexer.SkipLabel && skipDepth > 0 {
				skipDepth--
			}
			writeEscaped(&out, src[ev.Start:ev.End])

		case lexer.Term:
			if skipDepth != 0 {
				writeEscaped(&out, src[ev.Start:ev.End])
				continue
			}
			for m < len(sorted) && sorted[m] < pi {
				m++
			}
			matched := m < len(sorted) && sorted[m] == pi
			if matched {
				out.WriteString("<match>")
				m++
			}
			writeEscaped(&out, src[ev.Start:ev.End])
			if matched {
				out.WriteString("</match>")
			}
			pi++
		}
	}
	writeEscaped(&out, src[cur:])
	return out.String(), nil
}

// dedupSorted returns pis sorted ascending with duplicates removed.
func dedupSorted(pis []int32) []int32 {
	sorted := append([]int32(nil), pis...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := sorted[:0]
	var last int32 = -1
	first := true
	for _, pi := range sorted {
		if first || pi != last {
			out = append(out, pi)
			last = pi
			first = false
		}
	}
	return out
}

// EscapeXML applies the same escaping rule as Highlight's internal writer
// to a single string, for callers (e.g. package server) building XML leaves
// such as <name> and <term> around values that did not come from a
// re-lexed source document.
func EscapeXML(s string) string {
	var out strings.Builder
	writeEscaped(&out, []byte(s))
	return out.String()
}

// writeEscaped XML-escapes <, >, &, ', " and strips control characters other
// than tab, newline, and carriage return, per the wire protocol's escaping
// rule.
func writeEscaped(out *strings.Builder, b []byte) {
	for _, r := range string(b) {
		switch r {
		case '<':
			out.WriteString("&lt;")
		case '>':
			out.WriteString("&gt;")
		case '&':
			out.WriteString("&amp;")
		case '\'':
			out.WriteString("&apos;")
		case '"':
			out.WriteString("&quot;")
		case '\t', '\n', '\r':
			out.WriteRune(r)
		default:
			if r < 0x20 {
				continue
			}
			out.WriteRune(r)
		}
	}
}
