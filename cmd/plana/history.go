package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/plana/internal/config"
	"github.com/ShayCichocki/plana/internal/state"
)

var (
	historyLimit int
	historyPurge time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past expand runs",
	Long: `List past expand runs, newest first, or show one run in detail.

Use --purge to delete runs older than a duration, e.g. --purge 720h.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err := state.Open(cfg.HistoryPath())
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer db.Close()

		if historyPurge > 0 {
			n, err := db.PurgeOldRuns(historyPurge)
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d runs\n", n)
			return nil
		}

		if len(args) == 1 {
			run, err := db.GetRun(args[0])
			if err != nil {
				return err
			}
			printRun(run)
			return nil
		}

		runs, err := db.ListRuns(historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%-8s  %s  %-8s  %5d req  %s\n",
				r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), statusText(r.Status), r.Requests, r.Goal)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to list")
	historyCmd.Flags().DurationVar(&historyPurge, "purge", 0, "Delete runs older than this")
}

func statusText(s state.RunStatus) string {
	text := fmt.Sprintf("%-8s", s)
	switch s {
	case state.RunDone:
		return color.GreenString(text)
	case state.RunStopped:
		return color.YellowString(text)
	case state.RunFailed:
		return color.RedString(text)
	default:
		return text
	}
}

func printRun(r *state.Run) {
	fmt.Printf("Run:      %s\n", r.ID)
	fmt.Printf("Goal:     %s\n", r.Goal)
	fmt.Printf("Status:   %s\n", statusText(r.Status))
	fmt.Printf("Mode:     %s, chooser %s, depth %d\n", r.Mode, r.Chooser, r.MaxDepth)
	fmt.Printf("Started:  %s (%s)\n", r.StartedAt.Local().Format(time.RFC1123), r.Duration().Round(time.Second))
	fmt.Printf("Requests: %d, nodes: %d\n", r.Requests, r.Nodes)
	if r.PlanPath != "" {
		fmt.Printf("Plan:     %s\n", r.PlanPath)
	}
	if r.Error != "" {
		fmt.Printf("Error:    %s\n", r.Error)
	}
}
