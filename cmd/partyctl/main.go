package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"

	"github.com/AbdulSatterism/party-management/internal/app"
	"github.com/AbdulSatterism/party-management/internal/config"
	"github.com/AbdulSatterism/party-management/internal/database"
	"github.com/AbdulSatterism/party-management/internal/model"
	"github.com/AbdulSatterism/party-management/internal/utils"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "partyctl",
		Short:        "Operator tool for the party ledger",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(payoutsCmd())
	rootCmd.AddCommand(groupsCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newLogger() *log.Logger {
	l := log.New("partyctl")
	l.SetLevel(log.INFO)
	l.SetOutput(os.Stderr)
	return l
}

// withApp builds the ledger for one command and closes it afterwards.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx, config.Load(), newLogger())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
			if err != nil {
				return err
			}
			defer db.Close()
			applied, err := database.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Pay out host income for parties inside the settlement window",
		Long: `Run one settlement sweep.

Every party whose event falls within the lookahead window and that still
holds undistributed income is paid out to its host.  A party already being
settled by another process is skipped.  A payout whose provider call timed
out stays PENDING with the income claimed; check it with the provider
before doing anything else.  The command exits non-zero when at least one
payout failed or is unconfirmed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Settler.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					if err := writeJSON(out, report); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(out, "candidates: %d  paid: %d  failed: %d  unconfirmed: %d  skipped: %d\n",
						report.Candidates, len(report.Paid), len(report.Failed), len(report.Unconfirmed), len(report.Skipped))
					for _, p := range report.Paid {
						fmt.Fprintf(out, "paid    %s  %s %s -> %s\n", p.PartyID, p.Amount.StringFixed(2), p.Provider, p.Destination)
					}
					for _, f := range report.Failed {
						fmt.Fprintf(out, "failed  %s  %s\n", f.PartyID, f.Reason)
					}
					for _, p := range report.Unconfirmed {
						fmt.Fprintf(out, "unknown %s  payout %s  %s %s -> %s (key %s)\n",
							p.PartyID, p.ID, p.Amount.StringFixed(2), p.Provider, p.Destination, p.IdempotencyKey)
					}
					for _, id := range report.Skipped {
						fmt.Fprintf(out, "skipped %s\n", id)
					}
					for _, p := range report.Stale {
						fmt.Fprintf(out, "stale   %s  payout %s pending since %s\n", p.PartyID, p.ID, p.CreatedAt.Format(time.RFC3339))
					}
				}
				if n := len(report.Failed) + len(report.Unconfirmed); n > 0 {
					return fmt.Errorf("%d payout(s) failed, %d unconfirmed", len(report.Failed), len(report.Unconfirmed))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolP("json", "j", false, "Output the report as JSON")

	return cmd
}

func payoutsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Inspect host payouts",
	}
	pending := &cobra.Command{
		Use:   "pending",
		Short: "List host payouts stuck in PENDING",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return withApp(cmd.Context(), func(a *app.App) error {
				payouts, err := a.Settler.PendingPayouts(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), payouts)
				}
				printPayouts(cmd.OutOrStdout(), payouts)
				return nil
			})
		},
	}
	pending.Flags().BoolP("json", "j", false, "Output as JSON")
	cmd.AddCommand(pending)
	return cmd
}

func groupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Maintain membership groups",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Activate groups whose window has opened and deactivate expired ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Settler.RefreshGroups(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d group(s) updated\n", n)
				return nil
			})
		},
	})
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Mint an access token for local development",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			role = strings.ToUpper(role)
			switch role {
			case model.RoleUser, model.RoleHost, model.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			cfg := config.Load()
			if ttl == 0 {
				ttl = time.Duration(cfg.AccessTTLMin) * time.Minute
			}
			tok, err := utils.NewAccessToken(cfg.JWTSecret, args[0], role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", tok.Exp.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringP("role", "r", model.RoleUser, "Role claim (USER, HOST, ADMIN)")
	cmd.Flags().Duration("ttl", 0, "Token lifetime (default ACCESS_TOKEN_TTL_MIN)")

	return cmd
}

func printPayouts(w io.Writer, payouts []model.HostPayout) {
	if len(payouts) == 0 {
		fmt.Fprintln(w, "no pending payouts")
		return
	}
	for _, p := range payouts {
		fmt.Fprintf(w, "%s  party=%s  host=%s  %s %s  since %s\n",
			p.ID, p.PartyID, p.HostID, p.Amount.StringFixed(2), p.Provider, p.CreatedAt.Format(time.RFC3339))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
