package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "ormcost",
	Short: "Query cost attribution for ORM-heavy request paths",
	Long: "Captures every database query inside a unit of work, attributes it to the\n" +
		"host source line that forced it, and reports fetched-but-never-consumed\n" +
		"fields, duplicate statements, and dependent query groups.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config.yaml (default ~/.ormcost/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
