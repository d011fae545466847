package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBareWordIsRanking(t *testing.T) {
	q, err := Parse("foo")
	require.NoError(t, err)
	require.Empty(t, q.Inclusion)
	require.Empty(t, q.Exclusion)
	require.Len(t, q.Ranking, 1)
	require.Equal(t, "foo", q.Ranking[0].Head().Word)
}

func TestParseInclusionExclusionPrefixes(t *testing.T) {
	q, err := Parse("+foo -bar")
	require.NoError(t, err)
	require.Len(t, q.Inclusion, 1)
	require.Equal(t, "foo", q.Inclusion[0].Head().Word)
	require.Len(t, q.Exclusion, 1)
	require.Equal(t, "bar", q.Exclusion[0].Head().Word)
}

func TestParsePhraseBuildsBeforeChain(t *testing.T) {
	q, err := Parse(`"foo bar"`)
	require.NoError(t, err)
	require.Len(t, q.Ranking, 1)
	term := q.Ranking[0]
	require.Len(t, term.Atoms, 2)
	require.Equal(t, "foo", term.Atoms[0].Word)
	require.Equal(t, "bar", term.Atoms[1].Word)
	require.Len(t, term.Links, 1)
	require.Equal(t, Before, term.Links[0].Position)
	require.EqualValues(t, 1, term.Links[0].Distance)
}

func TestParseFieldTermRestriction(t *testing.T) {
	q, err := Parse("title:foo")
	require.NoError(t, err)
	require.Len(t, q.Ranking, 1)
	atom := q.Ranking[0].Head()
	require.Equal(t, "foo", atom.Word)
	require.Equal(t, []string{"title"}, atom.Fields)
}

func TestParseFieldOnlyProbe(t *testing.T) {
	q, err := Parse("title:")
	require.NoError(t, err)
	atom := q.Ranking[0].Head()
	require.Empty(t, atom.Word)
	require.Equal(t, []string{"title"}, atom.Fields)
}

func TestParseMixedQuery(t *testing.T) {
	q, err := Parse(`+foo -bar "baz qux" title:intro`)
	require.NoError(t, err)
	require.Len(t, q.Inclusion, 1)
	require.Len(t, q.Exclusion, 1)
	require.Len(t, q.Ranking, 2)
	require.Equal(t, "baz", q.Ranking[0].Atoms[0].Word)
	require.Equal(t, "intro", q.Ranking[1].Head().Word)
}

func TestParseRejectsUnterminatedQuote(t *testing.T) {
	_, err := Parse(`"foo bar`)
	require.Error(t, err)
}

func TestParseRejectsEmptyPrefixedTerm(t *testing.T) {
	_, err := Parse("+")
	require.Error(t, err)
}
