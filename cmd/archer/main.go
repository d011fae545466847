// Command archer is the CLI surface: indexing, one-shot querying, and the
// query/admin server, all driven off one on-disk data directory.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "archer",
		Short:         "archer: an incremental positional inverted index and query engine",
		Long:          "archer indexes text files into a positional, field-aware inverted index and answers Boolean/proximity/ranked queries against it, either one-shot from the command line or over a line-oriented socket server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("dir", defaultDataDir(), "data directory (default: $HOME/.archer)")

	root.AddCommand(newIndexCmd())
	root.AddCommand(newIndexLinesCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newServeCmd())

	if err := fang.Execute(context.Background(), root); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// defaultDataDir resolves the default data directory under $HOME.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".archer")
}

func dataDirFlag(cmd *cobra.Command) string {
	dir, _ := cmd.Root().PersistentFlags().GetString("dir")
	return strings.TrimSpace(dir)
}
