package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corpusvault/corpusvault"
	"github.com/corpusvault/corpusvault/internal/output"
)

func newSearchCmd() *cobra.Command {
	var vault string
	var topN int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a vault and print the top-N (id, content) pairs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], vault, topN)
		},
	}

	cmd.Flags().StringVar(&vault, "vault", "", "vault to search (defaults to the configured default vault)")
	cmd.Flags().IntVarP(&topN, "top-n", "n", 10, "maximum number of results")

	return cmd
}

func runSearch(cmd *cobra.Command, query, vault string, topN int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := corpusvault.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	results, err := engine.Search(cmd.Context(), query, vault, topN)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if len(results) == 0 {
		out.Status("", fmt.Sprintf("no results for %q", query))
		return nil
	}
	for _, r := range results {
		out.Statusf("", "%d\t%s", r.ID, r.Content)
	}
	return nil
}
