package archer_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-mizu/archer"
)

func TestDumpAllListsEveryPosting(t *testing.T) {
	dir := t.TempDir()
	idx, err := archer.Create(filepath.Join(dir, "data"))
	require.NoError(t, err)
	defer idx.Close()

	src := filepath.Join(dir, "d.txt")
	require.NoError(t, os.WriteFile(src, []byte("<title>foo</title> bar foo"), 0o644))
	require.NoError(t, idx.IndexFile(src))

	var buf bytes.Buffer
	require.NoError(t, idx.DumpAll(&buf))

	out := buf.String()
	require.Contains(t, out, "0000000000 0000000000 foo: title \n")
	require.Contains(t, out, "0000000000 0000000002 foo: \n")
	require.Contains(t, out, "0000000000 0000000001 bar: \n")
}
