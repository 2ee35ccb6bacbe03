package main

import (
	"fmt"
	"time"

	"field-agent/internal/auth"
	"field-agent/internal/config"
	"field-agent/internal/rbac"

	"github.com/spf13/cobra"
)

var (
	tokenWorker string
	tokenOrg    string
	tokenRole   string
)

func init() {
	tokenCmd.Flags().StringVar(&tokenWorker, "worker", "", "worker id (required)")
	tokenCmd.Flags().StringVar(&tokenOrg, "org", "", "organization id (required)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", rbac.RoleWorker, "role: worker, dispatcher or admin")
	_ = tokenCmd.MarkFlagRequired("worker")
	_ = tokenCmd.MarkFlagRequired("org")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access/refresh token pair signed with JWT_SECRET",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !rbac.IsKnownRole(tokenRole) {
			return fmt.Errorf("unknown role %q", tokenRole)
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		m, err := auth.NewManager(cfg.Auth)
		if err != nil {
			return err
		}
		pair, err := m.IssuePair(time.Now(), tokenWorker, tokenOrg, tokenRole)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "access_token=%s\n", pair.AccessToken)
		fmt.Fprintf(out, "refresh_token=%s\n", pair.RefreshToken)
		return nil
	},
}
