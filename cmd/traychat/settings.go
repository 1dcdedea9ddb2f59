package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/capitalize-ai/traychat/internal/middleware"
)

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the saved settings",
	}
	cmd.AddCommand(newSettingsShowCmd(opts), newSettingsSetCmd(opts))
	return cmd
}

func newSettingsShowCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the saved settings, creating the file with defaults if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			saved, err := a.store.Load(a.cfg.DefaultModel, a.cfg.DefaultPreventExit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(saved)
			}

			fmt.Fprintf(out, "%s %s\n", color.CyanString("file:"), a.store.Path())
			fmt.Fprintf(out, "%s %s\n", color.CyanString("model:"), saved.Model)
			fmt.Fprintf(out, "%s %t\n", color.CyanString("prevent_exit:"), saved.PreventExit)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output settings as JSON")
	return cmd
}

func newSettingsSetCmd(opts *rootOptions) *cobra.Command {
	var (
		modelName   string
		preventExit bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change the saved model or exit prevention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("model") && !flags.Changed("prevent-exit") {
				return fmt.Errorf("nothing to set: pass --model and/or --prevent-exit")
			}

			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			saved, err := a.store.Load(a.cfg.DefaultModel, a.cfg.DefaultPreventExit)
			if err != nil {
				return err
			}
			if flags.Changed("model") {
				if err := middleware.ValidateModel(modelName); err != nil {
					return err
				}
				saved.Model = modelName
			}
			if flags.Changed("prevent-exit") {
				saved.PreventExit = preventExit
			}

			if err := a.store.Save(saved.Model, saved.PreventExit); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s settings saved\n", color.GreenString("✓"))
			return nil
		},
	}

	cmd.Flags().StringVar(&modelName, "model", "", "Model identifier to save")
	cmd.Flags().BoolVar(&preventExit, "prevent-exit", true, "Keep the app running when its window closes")
	return cmd
}
