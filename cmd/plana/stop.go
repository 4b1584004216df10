package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/plana/internal/config"
	"github.com/ShayCichocki/plana/internal/signals"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running expansion to save and stop",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := signals.SendStop(cfg.SignalsDir()); err != nil {
			return fmt.Errorf("send stop: %w", err)
		}
		fmt.Println("Stop requested.")
		return nil
	},
}
