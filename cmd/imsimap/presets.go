package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MaDonald/imsimap/internal/config"
	"github.com/MaDonald/imsimap/internal/presets"
)

func newPresetsCmd(rf *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Manage saved capture frequencies",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved frequencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, rf)
			if err != nil {
				return err
			}
			list, err := presets.Load(a.cfg.PresetsPath())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(a.out, "No saved frequencies.")
				return nil
			}
			for _, p := range list {
				fmt.Fprintf(a.out, "%-16s %s\n", p.Label(), formatHz(p.Frequency))
			}
			return nil
		},
	}

	var name string
	addCmd := &cobra.Command{
		Use:   "add <frequency>",
		Short: "Save a frequency (Hz, or with K/M suffix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, rf)
			if err != nil {
				return err
			}
			hz, err := config.ParseFrequency(args[0])
			if err != nil {
				return err
			}
			if _, err := presets.Add(a.cfg.PresetsPath(), presets.Preset{Name: name, Frequency: hz}); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Saved %s\n", formatHz(hz))
			return nil
		},
	}
	addCmd.Flags().StringVarP(&name, "name", "n", "", "Label for the frequency")

	cmd.AddCommand(listCmd, addCmd)
	return cmd
}

func formatHz(hz float64) string {
	return humanize.SIWithDigits(hz, 6, "Hz")
}
