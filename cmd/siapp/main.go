// Package main implements the siapp command: the HTTP server plus data
// import/export and token tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/siapp-dev/siapp/internal/api"
	"github.com/siapp-dev/siapp/internal/store/flatfile"
	"github.com/siapp-dev/siapp/pkg/config"
	"github.com/siapp-dev/siapp/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serveCmd := newServeCmd()

	rootCmd := &cobra.Command{
		Use:          "siapp",
		Short:        "Short links and installable PWAs for Google Apps Script web apps",
		SilenceUsage: true,
		RunE:         serveCmd.RunE,
	}

	rootCmd.AddCommand(
		serveCmd,
		newImportCmd(),
		newExportCmd(),
		newTokenCmd(),
		newValidateCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.Load(); err != nil {
				return fmt.Errorf("configuration validation failed:\n%w", err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of siapp",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "siapp version %s\n", api.Version)
			return err
		},
	}
}

// openStore opens the flat-file store under cfg.DataDir.
func openStore(cfg *config.Config, log *logger.Logger) (*flatfile.FlatFileStore, error) {
	st, err := flatfile.NewFlatFileStore(flatfile.DefaultConfig(cfg.DataDir), log.WithComponent("store").Logger)
	if err != nil {
		return nil, fmt.Errorf("opening data directory %s: %w", cfg.DataDir, err)
	}
	return st, nil
}
