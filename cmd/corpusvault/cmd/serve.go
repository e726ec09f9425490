package cmd

import (
	"github.com/spf13/cobra"

	"github.com/corpusvault/corpusvault"
	"github.com/corpusvault/corpusvault/internal/logging"
	"github.com/corpusvault/corpusvault/internal/mcpserver"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an MCP server exposing build/search/remove_source/reset over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
	return cmd
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cleanup, err := logging.SetupMCPModeWithLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer cleanup()

	engine, err := corpusvault.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	srv, err := mcpserver.NewServer(engine)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	return srv.Serve(cmd.Context())
}
