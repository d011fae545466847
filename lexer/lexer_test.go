package lexer

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, src string) []Event {
	t.Helper()
	lx := Open(strings.NewReader(src))
	var events []Event
	for {
		ev, err := lx.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

func TestScansPlainWords(t *testing.T) {
	events := collect(t, "foo bar Baz")
	require.Len(t, events, 3)
	for i, want := range []string{"foo", "bar", "baz"} {
		require.Equal(t, Term, events[i].Kind)
		require.Equal(t, want, events[i].Text)
	}
}

func TestScansTagsAsLabelEvents(t *testing.T) {
	events := collect(t, "<title>foo</title> body bar")
	require.Len(t, events, 5)

	require.Equal(t, LabelOpen, events[0].Kind)
	require.Equal(t, "title", events[0].Text)

	require.Equal(t, Term, events[1].Kind)
	require.Equal(t, "foo", events[1].Text)

	require.Equal(t, LabelClose, events[2].Kind)
	require.Equal(t, "title", events[2].Text)

	require.Equal(t, Term, events[3].Kind)
	require.Equal(t, "body", events[3].Text)

	require.Equal(t, Term, events[4].Kind)
	require.Equal(t, "bar", events[4].Text)
}

func TestByteOffsetsCoverTheToken(t *testing.T) {
	events := collect(t, "foo bar")
	require.EqualValues(t, 0, events[0].Start)
	require.EqualValues(t, 3, events[0].End)
	require.EqualValues(t, 4, events[1].Start)
	require.EqualValues(t, 7, events[1].End)
}

func TestUngetReplaysEvent(t *testing.T) {
	lx := Open(strings.NewReader("foo bar"))
	first, err := lx.Next()
	require.NoError(t, err)
	require.Equal(t, "foo", first.Text)

	lx.Unget(first)

	again, err := lx.Next()
	require.NoError(t, err)
	require.Equal(t, first, again)

	second, err := lx.Next()
	require.NoError(t, err)
	require.Equal(t, "bar", second.Text)
}

func TestNestedTagsEachReportOwnEvents(t *testing.T) {
	events := collect(t, "<a><b>x</b></a>")
	require.Len(t, events, 5)
	kinds := make([]EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	require.Equal(t, []EventKind{LabelOpen, LabelOpen, Term, LabelClose, LabelClose}, kinds)
}
