package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "npmgo",
	Short: "An npm-compatible install-tree resolver",
	Long: `npmgo resolves, places, and reifies an npm-style dependency tree from a
package.json manifest, reading and writing the same lockfile schemas npm
and yarn-berry use (package-lock.json v1/v2/v3, yarn.lock).`,
}

// Execute runs the command tree, printing any error to stderr and
// exiting non-zero.
func Execute() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "npmgo: "+err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfg.RegistryURL, "registry", cfg.RegistryURL, "npm registry base URL")
	rootCmd.PersistentFlags().IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "bounded concurrency ceiling for registry/download fan-out")
	rootCmd.PersistentFlags().BoolVar(&cfg.Debug, "debug", false, "enable verbose resolver diagnostics")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(ciCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(listCmd)
}
