package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/plana/internal/config"
	"github.com/ShayCichocki/plana/internal/plan"
)

var (
	showStates bool
	showList   bool
)

var showCmd = &cobra.Command{
	Use:   "show [plan]",
	Short: "Display a saved plan",
	Long: `Display a plan saved by 'plana expand'.

The plan may be given by name (the goal it was expanded from) or by the
path of its .plan file. Use --list to see the saved plans.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if showList || len(args) == 0 {
			return listPlans(cfg.OutputDir())
		}

		tree, err := plan.LoadDump(cfg.OutputDir(), args[0])
		if err != nil {
			return err
		}
		fmt.Print(tree.RenderTree(tree.Root(), showStates))
		fmt.Printf("\n%d nodes: %s\n", tree.Len(), countStates(tree))
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showStates, "states", false, "Show each node's expansion state")
	showCmd.Flags().BoolVar(&showList, "list", false, "List saved plans")
}

func listPlans(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*."+plan.DumpExt))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Printf("No saved plans in %s\n", dir)
		return nil
	}
	sort.Strings(matches)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(filepath.Base(m), "."+plan.DumpExt)
		fmt.Printf("%-50s %s\n", name, info.ModTime().Format("2006-01-02 15:04"))
	}
	return nil
}
