package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"queueless/scheduling-service/internal/config"
	"queueless/scheduling-service/internal/identity"

	"github.com/spf13/cobra"
)

// newTokenCmd signs a bearer token with JWT_SECRET for local runs.
func newTokenCmd() *cobra.Command {
	var (
		subject    string
		role       string
		businesses string
		ttl        time.Duration
	)
	c := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required")
			}
			if subject == "" {
				return errors.New("--subject is required")
			}
			user := identity.User{ID: subject, Role: role}
			for _, id := range strings.Split(businesses, ",") {
				if id = strings.TrimSpace(id); id != "" {
					user.OwnedBusinessIDs = append(user.OwnedBusinessIDs, id)
				}
			}
			token, err := identity.NewVerifier(cfg.JWTSecret, cfg.AdminRole).Issue(user, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	c.Flags().StringVar(&subject, "subject", "", "user id placed in the sub claim")
	c.Flags().StringVar(&role, "role", "customer", "role claim")
	c.Flags().StringVar(&businesses, "businesses", "", "comma-separated business ids the user owns")
	c.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return c
}
