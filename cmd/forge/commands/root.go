package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// configPath is shared by the subcommands that read forge.yml.
var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "Forge - Privacy-preserving research gap analysis",
	Long: `Forge analyzes research documents through a pipeline of reasoning
stages: gap detection, structured debate, hypothesis generation and
iterative refinement.

Every payload that crosses a stage boundary passes through a differential
privacy ledger, so numeric signals are noise-protected and the cumulative
privacy cost of a session is tracked against a configurable budget.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "forge.yml", "Path to the forge.yml configuration file")
}
