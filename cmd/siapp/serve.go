package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/siapp-dev/siapp/internal/api"
	"github.com/siapp-dev/siapp/internal/auth"
	"github.com/siapp-dev/siapp/internal/cleanup"
	"github.com/siapp-dev/siapp/internal/render"
	"github.com/siapp-dev/siapp/internal/shutdown"
	"github.com/siapp-dev/siapp/pkg/config"
	"github.com/siapp-dev/siapp/pkg/logger"
	"github.com/siapp-dev/siapp/ui"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			log, err := logger.Configure(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}

			st, err := openStore(cfg, log)
			if err != nil {
				log.Error("failed to open store", "error", err)
				return err
			}

			templates, err := ui.Templates(cfg.TemplateDir)
			if err != nil {
				st.Close()
				log.Error("failed to load templates", "error", err)
				return err
			}
			if cfg.TemplateDir == "" {
				log.Info("using embedded templates")
			}

			gate, err := newGate(cfg, log)
			if err != nil {
				st.Close()
				return err
			}

			settings := cleanup.DefaultSettings()
			settings.Interval = cfg.CleanupInterval
			janitor, err := cleanup.NewService(cfg.DataDir, gate, settings, log.WithComponent("cleanup").Logger)
			if err != nil {
				st.Close()
				return err
			}

			renderer := render.New(templates, log.WithComponent("render").Logger)
			srv := api.NewServer(cfg, st, gate, renderer, log.Logger)

			coordinator := shutdown.NewCoordinator(
				shutdown.WithTimeout(cfg.ShutdownTimeout),
				shutdown.WithLogger(log.Logger),
			)
			// Shut down last registered first: the listener drains before
			// the janitor stops and the store closes.
			coordinator.Register(shutdown.NewCloserComponent("store", st))
			coordinator.Register(janitor)
			coordinator.Register(shutdown.NewHTTPServerComponent("http", srv.HTTPServer()))
			janitor.Start(cmd.Context())
			go coordinator.WaitForSignal()

			log.Info("starting siapp",
				"addr", cfg.Addr(),
				"data_dir", cfg.DataDir,
				"version", api.Version,
			)

			if err := srv.Start(cmd.Context()); err != nil {
				log.Error("server error", "error", err)
				coordinator.Shutdown()
				coordinator.Wait()
				return err
			}

			coordinator.Wait()
			if coordinator.ExitCode() != 0 {
				return errors.New("shutdown timed out")
			}
			log.Info("server stopped")
			return nil
		},
	}
}

// newGate builds the admin auth gate from the configured credentials.
func newGate(cfg *config.Config, log *logger.Logger) (*auth.Gate, error) {
	hash, err := auth.HashPassword(cfg.Admin.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing admin password: %w", err)
	}
	return auth.NewGate(&auth.Config{
		Username:         cfg.Admin.Username,
		PasswordHash:     hash,
		Secret:           []byte(cfg.Admin.Secret),
		IdleTimeout:      cfg.Admin.SessionTimeout,
		RememberDuration: cfg.Admin.RememberDuration,
		SecureCookies:    cfg.Admin.SecureCookies,
	}, log.WithComponent("auth").Logger)
}
