// Package main provides bidctl, an offline front end to the bid compiler.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bidctl",
	Short: "Compile pilot bid preferences offline",
	Long:  "bidctl runs the bid compiler against a compile request JSON file and prints the result as JSON.",
}

var (
	requestPath string
	outputPath  string
	verbose     bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&requestPath, "request", "r", "", "Path to compile request JSON file (required)")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "out", "o", "", "Write output to this file instead of stdout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline diagnostics to stderr")
	if err := rootCmd.MarkPersistentFlagRequired("request"); err != nil {
		panic(fmt.Sprintf("failed to mark request flag as required: %v", err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
