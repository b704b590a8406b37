// Command entitygen generates CRUD helpers for table-backed structs.
//
// Structs opt in with a //tally:entity line in their doc comment and map
// fields to columns with db:"column" tags; exactly one field carries
// db:"column,pk". For each such struct entitygen emits a constructor,
// Upsert, Retrieve, RetrieveMany, RetrieveAll and Delete into a single
// *_gen.go file next to the sources.
//
// Typical use, from the target package:
//
//	//go:generate go run ../../cmd/entitygen --dir . --out entity_gen.go
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagDir string
	flagOut string
)

var rootCmd = &cobra.Command{
	Use:   "entitygen",
	Short: "Generate CRUD helpers for //tally:entity structs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := generate(flagDir)
		if err != nil {
			return err
		}

		out := flagOut
		if !filepath.IsAbs(out) {
			out = filepath.Join(flagDir, out)
		}
		if err := os.WriteFile(out, src, 0644); err != nil { //nolint:gosec // Generated source is world-readable
			return fmt.Errorf("writing %s: %w", out, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "entitygen: wrote %s\n", out)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&flagDir, "dir", ".", "package directory to scan")
	rootCmd.Flags().StringVar(&flagOut, "out", "entity_gen.go", "output file, relative to --dir")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
