package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/variance-engine/factory"
)

func newThresholdsCmd(root *rootOptions) *cobra.Command {
	var orgID string

	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Show or save an organization's severity thresholds",
	}
	cmd.PersistentFlags().StringVar(&orgID, "org", "local", "Organization ID")

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the thresholds in effect (YAML, or JSON with --json)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := root.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			cfg, err := e.store.GetThresholds(ctx, orgID)
			if err != nil {
				return err
			}

			f := factory.New()
			if root.jsonOut {
				return writeJSON(cmd.OutOrStdout(), f.ThresholdsToJSON(cfg))
			}
			out, err := f.ThresholdsYAML(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	var file string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Validate and save thresholds from a JSON or YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return errors.New("--file is required (use - for stdin)")
			}
			data, err := readInput(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg, err := factory.New().ParseThresholds(data)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			e, err := root.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.store.SaveThresholds(ctx, orgID, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s thresholds for %s\n", cfg.Profile, orgID)
			return nil
		},
	}
	setCmd.Flags().StringVarP(&file, "file", "f", "", "Thresholds file (- for stdin)")

	cmd.AddCommand(getCmd, setCmd)
	return cmd
}
