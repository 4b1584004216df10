package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/plana/internal/config"
	"github.com/ShayCichocki/plana/internal/examples"
)

var examplesPrompt bool

var examplesCmd = &cobra.Command{
	Use:   "examples",
	Short: "List the worked ranking examples",
	Long: `List the worked examples used to rank candidate breakdowns.

Examples are recorded from the human chooser's 'P' menu entry.
With --prompt, prints a ranking prompt with no options, showing the few-shot
block that precedes every ranking request.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store := examples.Open(cfg.ExamplesPath())

		all := store.All()
		if len(all) == 0 {
			fmt.Printf("No examples in %s\n", store.Path())
			return nil
		}
		if examplesPrompt {
			fmt.Print(store.RankingPrompt(nil, examples.PositionPlaceholder))
			return nil
		}
		for i, ex := range all {
			best := "none"
			if b := ex.Best(); b >= 0 {
				best = fmt.Sprintf("option %d", b+1)
			}
			fmt.Printf("%2d) %-50s %d options, best %s\n", i+1, ex.Description, len(ex.Candidates), best)
		}
		return nil
	},
}

func init() {
	examplesCmd.Flags().BoolVar(&examplesPrompt, "prompt", false, "Print the examples as they appear in ranking prompts")
}
