package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corpusvault/corpusvault"
	"github.com/corpusvault/corpusvault/internal/output"
)

func newAddCmd() *cobra.Command {
	var vault string
	var updateExisting bool

	cmd := &cobra.Command{
		Use:   "add <doc>",
		Short: "Index a single text file",
		Long:  `Reads <doc> from disk and indexes its content as one source under the chosen vault.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, args[0], vault, updateExisting)
		},
	}

	cmd.Flags().StringVar(&vault, "vault", "", "vault to index into (defaults to the configured default vault)")
	cmd.Flags().BoolVar(&updateExisting, "update", false, "replace this source's chunks if it was already indexed")

	return cmd
}

func runAdd(cmd *cobra.Command, path, vault string, updateExisting bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	engine, err := corpusvault.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	doc := corpusvault.Doc{Source: path, Text: string(content)}
	if err := engine.Build(cmd.Context(), []corpusvault.Doc{doc}, vault, updateExisting, false); err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("indexed %s", path)
	return nil
}
