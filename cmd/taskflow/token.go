package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/taskflow-api/internal/config"
	"github.com/phrazzld/taskflow-api/internal/service/auth"
	"github.com/spf13/cobra"
)

var errNoJWTSecret = errors.New("auth.jwt_secret is not set; the API trusts the X-User-ID header instead")

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var lifetime time.Duration
	cmd := &cobra.Command{
		Use:   "token <actor>",
		Short: "Mint a bearer token whose subject is actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, logCloser, err := bootstrap(opts)
			if err != nil {
				return err
			}
			defer func() { _ = logCloser.Close() }()

			token, err := mintToken(cmd.Context(), cfg.Auth, args[0], lifetime)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().DurationVar(&lifetime, "lifetime", 0, "token lifetime (default auth.token_lifetime)")
	return cmd
}

// mintToken signs a token for actor. A positive lifetime overrides the
// configured one.
func mintToken(ctx context.Context, cfg config.AuthConfig, actor string, lifetime time.Duration) (string, error) {
	if cfg.JWTSecret == "" {
		return "", errNoJWTSecret
	}
	if lifetime > 0 {
		cfg.TokenLifetime = lifetime
	}
	jwtService, err := auth.NewJWTService(cfg)
	if err != nil {
		return "", err
	}
	return jwtService.GenerateToken(ctx, actor)
}
