// Package cmd provides the CLI commands for corpusvault.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/corpusvault/corpusvault/internal/config"
	"github.com/corpusvault/corpusvault/pkg/version"
)

var dataDir string

// NewRootCmd creates the root command for the corpusvault CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "corpusvault",
		Short:         "Local hybrid lexical/semantic retrieval over text documents",
		Long:          `corpusvault indexes text documents into vaults and answers queries by fusing BM25 lexical search with vector semantic search via Reciprocal Rank Fusion.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("corpusvault version {{.Version}}\n")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", ".", "directory to load corpusvault.yaml from; relative data_dir paths resolve against it")

	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newRemoveSourceCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return config.Config{}, err
	}
	return *cfg, nil
}
