package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vocilia/payment-system/reward-payouts/internal/app"
	"github.com/vocilia/payment-system/reward-payouts/internal/config"
	"github.com/vocilia/payment-system/reward-payouts/internal/middleware"
	"github.com/vocilia/payment-system/reward-payouts/internal/models"
	"github.com/vocilia/payment-system/reward-payouts/internal/service"
	"github.com/vocilia/payment-system/reward-payouts/internal/telemetry"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the payout batch for a week",
		Long: `Pay out every verified, unpaid reward of an ISO week.

Without --week the previous week in the configured timezone is used.
Running a completed week again is a no-op; a failed week is resumed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := telemetry.InitTelemetry("payoutctl", cfg.JaegerEndpoint); err != nil {
				return err
			}
			defer telemetry.Shutdown(context.Background())

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			week, _ := cmd.Flags().GetString("week")
			if week == "" {
				week = service.PreviousBatchWeek(time.Now().In(a.Location)).String()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			batch, err := a.Scheduler.ProcessBatch(ctx, week)
			if err != nil {
				return fmt.Errorf("batch %s: %w", week, err)
			}
			printBatch(cmd.OutOrStdout(), batch)
			return nil
		},
	}

	cmd.Flags().StringP("week", "w", "", "ISO week to process, e.g. 2026-W41")

	return cmd
}

func previousWeekCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "previous-week",
		Short: "Print the week the next scheduled run will process",
		RunE: func(cmd *cobra.Command, args []string) error {
			tz, _ := cmd.Flags().GetString("timezone")
			if tz == "" {
				tz = config.Load().CronTimezone
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return err
			}

			now := time.Now()
			if at, _ := cmd.Flags().GetString("at"); at != "" {
				now, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at must be RFC 3339: %w", err)
				}
			}

			week := service.PreviousBatchWeek(now.In(loc))
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n",
				week,
				week.Start(loc).Format(time.RFC3339),
				week.End(loc).Format(time.RFC3339),
			)
			return nil
		},
	}

	cmd.Flags().String("at", "", "Reference time (RFC 3339), defaults to now")
	cmd.Flags().String("timezone", "", "IANA timezone, defaults to PAYMENT_BATCH_TIMEZONE")

	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the reconciliation report of a week",
		RunE: func(cmd *cobra.Command, args []string) error {
			week, _ := cmd.Flags().GetString("week")
			if _, err := service.ParseBatchWeek(week); err != nil {
				return err
			}
			regenerate, _ := cmd.Flags().GetBool("regenerate")
			asJSON, _ := cmd.Flags().GetBool("json")

			a, err := app.New(config.Load())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			batch, err := a.Batches.GetByWeek(ctx, week)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("no batch for %s", week)
			}
			if err != nil {
				return err
			}

			var report *models.ReconciliationReport
			var invoices []models.BusinessInvoice
			if regenerate {
				report, invoices, err = a.Reconciler.Reconcile(ctx, batch)
			} else {
				report, err = a.Reports.GetByBatch(ctx, batch.ID)
				if err == nil {
					invoices, err = a.Invoices.ListByBatch(ctx, batch.ID)
				}
			}
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("no report for %s yet; use --regenerate", week)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"batch": batch, "report": report, "invoices": invoices})
			}
			printBatch(out, batch)
			printReport(out, report, invoices)
			return nil
		},
	}

	cmd.Flags().StringP("week", "w", "", "ISO week, e.g. 2026-W41")
	cmd.Flags().Bool("regenerate", false, "Rebuild the report and invoices first")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("week")

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for calling the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			role, _ := cmd.Flags().GetString("role")
			businessID, _ := cmd.Flags().GetString("business-id")
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			status := ""
			if role == middleware.RoleBusiness {
				status = middleware.BusinessApproved
			}
			token, err := middleware.SignToken(cfg.JWTSecret, subject, role, businessID, status, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().String("role", middleware.RoleAdmin, "admin or business")
	cmd.Flags().String("business-id", "", "Business UUID for business tokens")
	cmd.Flags().String("subject", "payoutctl", "Token subject")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")

	return cmd
}

func printBatch(out io.Writer, batch *models.PaymentBatch) {
	fmt.Fprintf(out, "Batch %s (%s)\n", batch.BatchWeek, batch.ID)
	fmt.Fprintf(out, "  Status:      %s\n", batch.Status)
	fmt.Fprintf(out, "  Customers:   %d\n", batch.TotalCustomers)
	fmt.Fprintf(out, "  Successful:  %d\n", batch.SuccessfulPayments)
	fmt.Fprintf(out, "  Failed:      %d\n", batch.FailedPayments)
	fmt.Fprintf(out, "  Total:       %s SEK\n", batch.TotalAmountSEK.StringFixed(2))
	if batch.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:       %s\n", batch.ErrorMessage)
	}
}

func printReport(out io.Writer, report *models.ReconciliationReport, invoices []models.BusinessInvoice) {
	fmt.Fprintln(out, "\nReconciliation:")
	fmt.Fprintf(out, "  Paid:          %s SEK\n", report.SuccessfulPaymentsSEK.StringFixed(2))
	fmt.Fprintf(out, "  Failed:        %s SEK\n", report.FailedPaymentsSEK.StringFixed(2))
	fmt.Fprintf(out, "  Stores:        %d\n", len(report.StoreBreakdown))
	fmt.Fprintf(out, "  Discrepancies: %d\n", report.DiscrepancyCount)

	if len(invoices) == 0 {
		fmt.Fprintln(out, "\nInvoices: (none)")
		return
	}
	fmt.Fprintln(out, "\nInvoices:")
	for _, inv := range invoices {
		fmt.Fprintf(out, "  %s  %10s SEK  due %s  %s\n",
			inv.BusinessID,
			inv.TotalAmountSEK.StringFixed(2),
			inv.DueDate.Format("2006-01-02"),
			inv.PaymentStatus,
		)
	}
}
