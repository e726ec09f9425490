package cmd

import (
	"github.com/spf13/cobra"

	"github.com/corpusvault/corpusvault"
	"github.com/corpusvault/corpusvault/internal/output"
)

func newResetCmd() *cobra.Command {
	var vault string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Destroy all vaults, or one vault with --vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReset(cmd, vault)
		},
	}

	cmd.Flags().StringVar(&vault, "vault", "", "drop only this vault instead of destroying every vault")

	return cmd
}

func runReset(cmd *cobra.Command, vault string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := corpusvault.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	out := output.New(cmd.OutOrStdout())

	if vault == "" {
		if err := engine.Reset(cmd.Context()); err != nil {
			return err
		}
		out.Success("all vaults reset")
		return nil
	}

	if err := engine.DropVault(cmd.Context(), vault); err != nil {
		return err
	}
	out.Success("vault reset")
	return nil
}
