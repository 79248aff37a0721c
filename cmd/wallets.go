package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/matrixise/spl-tracker/internal/config"
	"github.com/matrixise/spl-tracker/internal/logger"
	"github.com/matrixise/spl-tracker/internal/notify"
	"github.com/matrixise/spl-tracker/internal/storage"
)

var historyLimit int

var walletsCmd = &cobra.Command{
	Use:   "wallets",
	Short: "Manage tracked wallets",
}

var walletsAddCmd = &cobra.Command{
	Use:   "add <wallet>...",
	Short: "Start tracking wallets",
	Args:  cobra.MinimumNArgs(1),
	RunE: withStore(func(cmd *cobra.Command, store *storage.Store, args []string) error {
		if err := validateWallets(args); err != nil {
			return err
		}
		added, err := store.AddWallets(cmd.Context(), args)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %d wallet(s)\n", added)
		return nil
	}),
}

var walletsRemoveCmd = &cobra.Command{
	Use:   "remove <wallet>...",
	Short: "Stop tracking wallets",
	Args:  cobra.MinimumNArgs(1),
	RunE: withStore(func(cmd *cobra.Command, store *storage.Store, args []string) error {
		removed, err := store.RemoveWallets(cmd.Context(), args)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d wallet(s)\n", removed)
		return nil
	}),
}

var walletsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked wallets",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, store *storage.Store, _ []string) error {
		ctx := cmd.Context()
		wallets, err := store.ListWallets(ctx)
		if err != nil {
			return err
		}
		total, err := store.TotalBalance(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, w := range wallets {
			fmt.Fprintln(out, w)
		}
		fmt.Fprintf(out, "%d wallet(s), last known total %s\n", len(wallets), notify.FormatAmount(total, 2))
		return nil
	}),
}

var walletsHistoryCmd = &cobra.Command{
	Use:   "history <wallet>",
	Short: "Show recorded balances of a wallet",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, store *storage.Store, args []string) error {
		snapshots, err := store.History(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SYNCED AT\tMINT\tAMOUNT")
		for _, s := range snapshots {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.SyncedAt.UTC().Format(time.RFC3339), notify.ShortAddress(s.Mint), notify.FormatAmount(s.Amount, 2))
		}
		return tw.Flush()
	}),
}

func init() {
	rootCmd.AddCommand(walletsCmd)
	walletsCmd.AddCommand(walletsAddCmd, walletsRemoveCmd, walletsListCmd, walletsHistoryCmd)

	walletsHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of snapshots to show")
}

// withStore opens the database for a wallets subcommand
func withStore(fn func(cmd *cobra.Command, store *storage.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger.Setup(logLevel)

		databaseURL, err := config.DatabaseURL()
		if err != nil {
			return err
		}

		store, err := storage.NewStore(cmd.Context(), databaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(cmd, store, args)
	}
}

func validateWallets(wallets []string) error {
	for i, w := range wallets {
		if _, err := solana.PublicKeyFromBase58(w); err != nil {
			return fmt.Errorf("wallet #%d %q is not a valid Solana address: %w", i+1, w, err)
		}
	}
	return nil
}
