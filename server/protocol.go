package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-mizu/archer"
	"github.com/go-mizu/archer/dump"
	"github.com/go-mizu/archer/queryexec"
)

// readyPrompt is written before each command read: a ".\n" ready-prompt
// line, after which the connection reads one command.
const readyPrompt = ".\n"

// wrapResult wraps body in the success envelope.
func wrapResult(body string) string {
	return "<archer-result>" + body + "</archer-result>\n"
}

// wrapError wraps msg in the error envelope.
func wrapError(msg string) string {
	return "<archer-error>" + dump.EscapeXML(msg) + "</archer-error>\n"
}

// renderHitlist renders a scored result slice as a <hitlist>, applying the
// session's current hit window ("hits all" shows every hit, "hits 0 N"
// restricts to an explicit range).
func renderHitlist(idx *archer.Index, results []queryexec.Result, win hitWindow) string {
	shown := win.slice(results)

	var b strings.Builder
	b.WriteString("<hitlist>")
	fmt.Fprintf(&b, "<count>%d</count>", len(results))
	for _, r := range shown {
		b.WriteString("<hit>")
		fmt.Fprintf(&b, "<id>%d</id>", r.Di)
		fmt.Fprintf(&b, "<name>%s</name>", dump.EscapeXML(idx.DocPath(r.Di)))
		fmt.Fprintf(&b, "<score>%s</score>", strconv.FormatFloat(r.Score, 'f', 6, 64))
		for _, occ := range r.WordOccurrences {
			fmt.Fprintf(&b, "<term>%s</term>", dump.EscapeXML(occ.Term))
		}
		b.WriteString("</hit>")
	}
	b.WriteString("</hitlist>")
	return b.String()
}

// renderDoclist renders the "docs" command's response.
func renderDoclist(entries []archer.DocEntry) string {
	var b strings.Builder
	b.WriteString("<doclist>")
	for _, e := range entries {
		b.WriteString("<document>")
		fmt.Fprintf(&b, "<id>%d</id>", e.ID)
		fmt.Fprintf(&b, "<name>%s</name>", dump.EscapeXML(e.Path))
		b.WriteString("</document>")
	}
	b.WriteString("</doclist>")
	return b.String()
}

// renderFieldlist renders the "fields" command's response.
func renderFieldlist(names []string) string {
	var b strings.Builder
	b.WriteString("<fieldlist>")
	for _, n := range names {
		fmt.Fprintf(&b, "<field>%s</field>", dump.EscapeXML(n))
	}
	b.WriteString("</fieldlist>")
	return b.String()
}

// renderRank renders the "rank" command's response. A path absent from the
// hit list renders the literal text "not found", not an error.
func renderRank(rank int) string {
	if rank < 0 {
		return "<rank>not found</rank>"
	}
	return fmt.Sprintf("<rank>%d</rank>", rank)
}
