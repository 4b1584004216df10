package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "plana",
	Short: "Expand a goal into a hierarchical plan",
	Long: `Plana turns a one-line goal into a tree of concrete steps.

Each step is expanded by asking Claude for several candidate breakdowns,
ranking them against worked examples, and recursing into the best one
until the configured depth is reached.

Decisions are cached so later runs can offer them again. With
'--human' you pick each breakdown yourself and can record the
reasoning as a worked example.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(examplesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}
