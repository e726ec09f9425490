package cmd

import (
	"github.com/spf13/cobra"

	"github.com/corpusvault/corpusvault"
	"github.com/corpusvault/corpusvault/internal/output"
)

func newRemoveSourceCmd() *cobra.Command {
	var vault string

	cmd := &cobra.Command{
		Use:   "remove-source <source>",
		Short: "Remove every chunk belonging to one source from a vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemoveSource(cmd, args[0], vault)
		},
	}

	cmd.Flags().StringVar(&vault, "vault", "", "vault to remove the source from (defaults to the configured default vault)")

	return cmd
}

func runRemoveSource(cmd *cobra.Command, source, vault string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := corpusvault.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	if err := engine.RemoveSource(cmd.Context(), vault, source); err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("removed source %s", source)
	return nil
}
