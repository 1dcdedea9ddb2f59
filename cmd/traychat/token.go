package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/traychat/internal/middleware"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		ttl     time.Duration
		subject string
		scopes  []string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bridge token from the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.BridgeSecret == "" {
				return fmt.Errorf("no bridge secret configured: set BRIDGE_SECRET or bridge_secret")
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = a.cfg.BridgeTokenTTL
			}

			token, err := middleware.IssueToken(a.cfg.BridgeSecret, subject, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default: bridge_token_ttl, 0 for no expiry)")
	cmd.Flags().StringVar(&subject, "subject", "cli", "Token subject")
	cmd.Flags().StringSliceVar(&scopes, "scope", middleware.DefaultScopes, "Scopes to grant")
	return cmd
}
