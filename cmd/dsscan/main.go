package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dsscan",
	Short: "Find semantic duplicates in a CSV or XLSX file",
	Long: `dsscan runs the duplicate detection pipeline on a local file without the
HTTP server. It uses the same configuration file and environment variables
as the server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (TOML, or YAML by extension)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
