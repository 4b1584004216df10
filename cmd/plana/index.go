package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/plana/internal/config"
	"github.com/ShayCichocki/plana/internal/grounding"
)

var (
	indexPatterns []string
	searchLimit   int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the grounding document index",
	Long: `Manage the documents used to ground expansion prompts.

Indexed documents related to a step are prepended to its prompt when
expand.use_grounding is on (or --grounding is passed to expand).`,
}

var indexAddCmd = &cobra.Command{
	Use:   "add <dir>",
	Short: "Index the text, markdown and JSON files under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := openIndex()
		if err != nil {
			return err
		}
		defer idx.Close()

		stats, err := idx.Ingest(args[0], indexPatterns)
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d documents from %d files (%d skipped) into %s\n",
			stats.Documents, stats.Files, stats.Skipped, idx.Path())
		return nil
	},
}

var indexSearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Show the documents a prompt about <text> would be grounded with",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := openIndex()
		if err != nil {
			return err
		}
		defer idx.Close()

		docs, err := idx.GetRelatedDocuments(strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Println("No related documents.")
			return nil
		}
		for i, d := range docs {
			fmt.Printf("--- %d ---\n%s\n", i+1, d)
		}
		return nil
	},
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the number of indexed documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := openIndex()
		if err != nil {
			return err
		}
		defer idx.Close()

		n, err := idx.Count()
		if err != nil {
			return err
		}
		fmt.Printf("%d documents in %s\n", n, idx.Path())
		return nil
	},
}

func init() {
	indexAddCmd.Flags().StringSliceVar(&indexPatterns, "pattern", grounding.DefaultPatterns, "Glob patterns of files to index")
	indexSearchCmd.Flags().IntVar(&searchLimit, "limit", 5, "Maximum documents to show")
	indexCmd.AddCommand(indexAddCmd, indexSearchCmd, indexStatsCmd)
}

func openIndex() (*grounding.Index, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	idx, err := grounding.Open(cfg.IndexPath())
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return idx, nil
}
