// Command admintoken issues a signed admin token for the storefront API.
package main

import (
	"fmt"
	"os"
	"time"

	"storefront/internal/config"
	"storefront/internal/service"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "admintoken",
		Short: "Issue an admin token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			cfg := config.Load()
			if ttl <= 0 {
				ttl = time.Duration(cfg.JWT.AccessExpiry) * time.Minute
			}
			token, err := service.NewTokenService(cfg.JWT.Secret).Issue(subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "who the token is issued to")
	cmd.Flags().StringVar(&role, "role", service.RoleAdmin, "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_ACCESS_EXPIRY minutes)")
	return cmd
}
