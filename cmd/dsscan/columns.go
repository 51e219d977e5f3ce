package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agenthands/dsstrack/internal/tabular"
)

var columnsCmd = &cobra.Command{
	Use:   "columns FILE",
	Short: "List the columns of a file and preview its first rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, _ := cmd.Flags().GetInt("rows")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		tbl, err := tabular.Read(filepath.Base(args[0]), data, tabular.Options{})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Fprintf(out, "%s rows, %d columns\n\n", cyan(len(tbl.Rows)), len(tbl.Columns))
		for i, c := range tbl.Columns {
			fmt.Fprintf(out, "  %2d  %s\n", i+1, c)
		}

		n := min(rows, len(tbl.Rows))
		if n == 0 {
			return nil
		}
		fmt.Fprintln(out)
		for _, r := range tbl.Rows[:n] {
			cells := make([]string, len(tbl.Columns))
			for i, c := range tbl.Columns {
				cells[i] = r.Values[c]
			}
			fmt.Fprintf(out, "  %d: %s\n", r.OriginalIndex, strings.Join(cells, " | "))
		}
		return nil
	},
}

func init() {
	columnsCmd.Flags().Int("rows", 5, "number of rows to preview")
	rootCmd.AddCommand(columnsCmd)
}
