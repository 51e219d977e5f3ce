package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agenthands/dsstrack/internal/app"
	"github.com/agenthands/dsstrack/internal/config"
	"github.com/agenthands/dsstrack/internal/core"
	"github.com/agenthands/dsstrack/internal/core/model"
	"github.com/agenthands/dsstrack/internal/logger"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Group near-duplicate rows and optionally write the report",
	Long: `Analyze embeds the selected columns of every row, groups rows whose
similarity reaches the threshold and prints the groups.

Examples:
  # Compare on the name column with the default threshold
  dsscan analyze companies.csv --columns name

  # Offline run with the hashing embedder, confirm every group, write a report
  EMBEDDING_PROVIDER=hash dsscan analyze companies.xlsx --columns name,city \
      --threshold 0.9 --confirm-all --out report.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		columns, _ := cmd.Flags().GetStringSlice("columns")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		confirmAll, _ := cmd.Flags().GetBool("confirm-all")
		outPath, _ := cmd.Flags().GetString("out")
		cfgPath, _ := cmd.Flags().GetString("config")
		verbose, _ := cmd.Flags().GetBool("verbose")

		cfg, err := loadConfig(cfgPath)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("threshold") {
			threshold = cfg.Analysis.DefaultThreshold
		}

		log := logger.Nop()
		if verbose {
			if log, err = logger.New("dev"); err != nil {
				return err
			}
			defer log.Sync()
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := app.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		return runAnalyze(ctx, a.Service, cmd.OutOrStdout(), args[0], columns, threshold, confirmAll, outPath)
	},
}

func init() {
	analyzeCmd.Flags().StringSlice("columns", nil, "columns to compare, comma separated (required)")
	analyzeCmd.Flags().Float64("threshold", 0.85, "similarity threshold in (0, 1]")
	analyzeCmd.Flags().Bool("confirm-all", false, "mark every group as a confirmed duplicate")
	analyzeCmd.Flags().String("out", "", "write the XLSX report to this path")
	analyzeCmd.Flags().BoolP("verbose", "v", false, "log pipeline progress to stderr")
	_ = analyzeCmd.MarkFlagRequired("columns")
	rootCmd.AddCommand(analyzeCmd)
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runAnalyze(ctx context.Context, svc *core.Service, out io.Writer, path string, columns []string, threshold float64, confirmAll bool, outPath string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	info, err := svc.CreateSession(ctx, filepath.Base(path), data)
	if err != nil {
		return err
	}

	res, err := svc.Analyze(ctx, info.SessionID, columns, threshold)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	if len(res.IgnoredColumns) > 0 {
		fmt.Fprintf(out, "%s ignoring unknown columns: %s\n", yellow("⚠"), strings.Join(res.IgnoredColumns, ", "))
	}
	if len(res.DuplicateGroups) == 0 {
		fmt.Fprintf(out, "%s No duplicate groups at threshold %.2f (%d rows)\n", green("✓"), threshold, res.TotalRows)
	} else {
		fmt.Fprintf(out, "\n%s %d group(s), %d rows involved, threshold %.2f\n\n",
			yellow("⚠"), res.TotalGroups, res.TotalPotentialDuplicates, threshold)
		for _, g := range res.DuplicateGroups {
			printGroup(out, cyan, g, res.Columns)
		}
	}

	if confirmAll {
		for _, g := range res.DuplicateGroups {
			if _, err := svc.Review(ctx, info.SessionID, g.DuplicateID, true); err != nil {
				return err
			}
		}
	}

	if outPath == "" {
		return nil
	}
	exp, err := svc.Export(ctx, info.SessionID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, exp.Data, 0o644); err != nil {
		return err
	}
	s := exp.Report.Summary
	fmt.Fprintf(out, "%s Wrote %s (%d of %d rows kept)\n", green("✓"), outPath, s.DeduplicatedRows, s.TotalRows)
	return nil
}

func printGroup(out io.Writer, cyan func(a ...interface{}) string, g model.DuplicateGroup, columns []string) {
	fmt.Fprintf(out, "%s\n", cyan(g.DuplicateID))
	for _, m := range g.Members {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = m.Row.Values[c]
		}
		others := make([]int, 0, len(m.Scores))
		for k := range m.Scores {
			others = append(others, k)
		}
		sort.Ints(others)
		scores := make([]string, len(others))
		for i, k := range others {
			scores[i] = fmt.Sprintf("%d=%.3f", k, m.Scores[k])
		}
		fmt.Fprintf(out, "  row %-5d %s  [%s]\n", m.Row.OriginalIndex, strings.Join(cells, " | "), strings.Join(scores, " "))
	}
	fmt.Fprintln(out)
}
