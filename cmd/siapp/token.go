package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/siapp-dev/siapp/internal/auth"
	"github.com/siapp-dev/siapp/internal/models"
	"github.com/siapp-dev/siapp/pkg/config"
	"github.com/siapp-dev/siapp/pkg/logger"
)

func newTokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "gentoken",
		Short: "Print a remember token for the admin account",
		Long: "Print a signed remember token for the configured admin account. Sent as\n" +
			"the " + auth.RememberCookie + " cookie it signs in to the admin panel until it expires.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			gate, err := newGate(cfg, logger.NewWithWriter(cmd.ErrOrStderr(), slog.LevelWarn, false))
			if err != nil {
				return err
			}

			token, claims, err := gate.IssueRememberToken(ttl)
			if err != nil {
				return fmt.Errorf("error generating token: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, token)
			fmt.Fprintf(cmd.ErrOrStderr(), "user %s, expires %s\n", claims.Username, models.FormatTime(claims.Exp))
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: the remember duration)")
	return cmd
}
