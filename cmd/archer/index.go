package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-mizu/archer"
)

// newIndexCmd recursively indexes all files below a directory.
func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <path>",
		Short: "Recursively index all files below path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := openOrCreate(dataDirFlag(cmd))
			if err != nil {
				return err
			}
			defer idx.Close()

			fi, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if fi.IsDir() {
				err = idx.IndexDir(args[0])
			} else {
				err = idx.IndexFile(args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %s\n", args[0])
			return nil
		},
	}
}

// newIndexLinesCmd indexes each line of a file as a separate document.
func newIndexLinesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index-lines <file>",
		Short: "Index each line of file as its own document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := openOrCreate(dataDirFlag(cmd))
			if err != nil {
				return err
			}
			defer idx.Close()

			if err := idx.IndexLines(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed lines of %s\n", args[0])
			return nil
		},
	}
}

// openOrCreate opens dir as an existing index, creating a fresh one if it
// does not look like one yet.
func openOrCreate(dir string) (*archer.Index, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return archer.Create(dir)
	}
	idx, err := archer.Open(dir)
	if err != nil {
		return archer.Create(dir)
	}
	return idx, nil
}
