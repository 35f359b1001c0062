package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spotlightworks/spotlight/spotlight"
	"github.com/spf13/cobra"
)

// withApp builds the full component graph for a one-off command and tears
// it down afterwards.
func withApp(ctx context.Context, fn func(context.Context, *spotlight.App) error) error {
	cfg, err := spotlight.LoadConfig(configPath)
	if err != nil {
		return err
	}

	app := spotlight.New(cfg, "spotlightctl")
	if err := app.Setup(ctx); err != nil {
		return err
	}
	defer app.DB.Close()

	return fn(ctx, app)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <account-id>",
	Short: "recompute an account's balances from its transaction log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		return withApp(ctx, func(ctx context.Context, app *spotlight.App) error {
			account, err := app.Ledger.Reconcile(ctx, args[0])
			if err != nil {
				return err
			}
			slog.Info("Account reconciled",
				slog.String("account_id", account.AccountID),
				slog.Int64("balance", account.Balance),
				slog.Int64("total_earned", account.TotalEarned),
				slog.Int64("total_spent", account.TotalSpent))
			return nil
		})
	},
}

var finalizeCmd = &cobra.Command{
	Use:   "finalize <auction-id> <position>",
	Short: "settle an elapsed auction position",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		auctionID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid auction id: %w", err)
		}
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid position: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		return withApp(ctx, func(ctx context.Context, app *spotlight.App) error {
			winner, err := app.Engine.FinalizePosition(ctx, auctionID, index)
			if err != nil {
				return err
			}
			if winner == nil {
				slog.Info("Position closed with no bids",
					slog.Int64("auction_id", auctionID),
					slog.Int("position", index))
				return nil
			}
			slog.Info("Position closed",
				slog.Int64("auction_id", auctionID),
				slog.Int("position", index),
				slog.String("winner", winner.BidderID),
				slog.Int64("amount", winner.Amount))
			return nil
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep-boosts",
	Short: "remove expired boosts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		return withApp(ctx, func(ctx context.Context, app *spotlight.App) error {
			removed, err := app.Boosts.CleanupExpired(ctx)
			if err != nil {
				return err
			}
			slog.Info("Expired boosts removed", slog.Int("count", removed))
			return nil
		})
	},
}
