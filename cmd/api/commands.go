package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"langswap/internal/auth"
	"langswap/internal/invitations"
	"langswap/internal/reporting"
	"langswap/migrations"
	"langswap/pkg/utils"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var days int
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sweep-invitations",
		Short: "Expire overdue invitations and delete answered ones older than --days",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 0 {
				return errors.New("--days must be >= 0")
			}
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.invites.SweepExpired(ctx, time.Duration(days)*24*time.Hour, dryRun)
			if err != nil {
				log.Error("invitation sweep failed", "err", err)
				return err
			}
			printSweep(cmd.OutOrStdout(), res, dryRun)

			stats, err := a.reports.InvitationStats(ctx)
			if err != nil {
				log.Warn("invitation stats failed", "err", err)
				return nil
			}
			printInvitationStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "delete answered invitations created more than this many days ago")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	return cmd
}

func printSweep(w io.Writer, res invitations.SweepResult, dryRun bool) {
	verb := "expired"
	del := "deleted"
	if dryRun {
		verb, del = "would expire", "would delete"
	}
	fmt.Fprintf(w, "%s %d overdue invitation(s)\n", verb, len(res.Expired))
	for _, inv := range res.Expired {
		fmt.Fprintf(w, "  %s caller=%s receiver=%s expires_at=%s\n", inv.ID, inv.CallerID, inv.ReceiverID, inv.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "%s %d old invitation(s)\n", del, len(res.Deleted))
}

func printInvitationStats(w io.Writer, s reporting.InvitationStats) {
	fmt.Fprintln(w, "current statistics:")
	fmt.Fprintf(w, "  total invitations: %d\n", s.Total)
	fmt.Fprintf(w, "  pending invitations: %d\n", s.Pending)
	statuses := make([]string, 0, len(s.ByStatus))
	for st := range s.ByStatus {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		fmt.Fprintf(w, "  %s: %d\n", st, s.ByStatus[invitations.Status(st)])
	}
}

func newIssueTokenCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Mint an access/refresh token pair (local and dev only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.IsDevelopment() {
				return fmt.Errorf("issue-token is disabled in %s", cfg.App.Env)
			}
			tokens, err := auth.NewManager(cfg.Auth)
			if err != nil {
				return err
			}
			pair, err := tokens.IssuePair(time.Now(), userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "access_token=%s\n", pair.AccessToken)
			fmt.Fprintf(out, "refresh_token=%s\n", pair.RefreshToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "subject of the token")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.UsesMemoryStore() {
				return errors.New("migrate needs STORE_DRIVER=postgres")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: 1})
			if err != nil {
				log.Error("postgres init failed", "err", err)
				return err
			}
			defer db.Close()

			applied, err := utils.Migrate(ctx, db, migrations.FS)
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			if err != nil {
				log.Error("migration failed", "err", err)
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			}
			return nil
		},
	}
}
