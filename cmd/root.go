// Package cmd wires the lsf command tree: index (REPL), search (one
// shot), mount (FUSE/NFS saved-search view), serve-mcp, and version.
package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	configPath string
	refresh    bool
	jsonOut    bool
)

var rootCmd = &cobra.Command{
	Use:     "lsf",
	Short:   "lsf: a whole-filesystem search engine",
	Version: fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("LSF_LOG") != "debug" {
			log.SetOutput(io.Discard)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lsf version %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.hcl (default ~/.config/lsf/config.hcl)")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the command tree, exiting non-zero on a fatal error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
