package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/matrixise/spl-tracker/internal/config"
	"github.com/matrixise/spl-tracker/internal/logger"
	"github.com/matrixise/spl-tracker/internal/notify"
	"github.com/matrixise/spl-tracker/internal/storage"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [wallet...]",
	Short: "Fetch and print token balances",
	Long: `Fetch the current token balance of the given wallets, or of every tracked
wallet when none is given. Nothing is persisted.`,
	RunE: runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	logger.Setup(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		cfg     *config.Config
		wallets = args
		err     error
	)
	if len(wallets) > 0 {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, wallets, err = trackedWallets(ctx)
	}
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No wallets are being tracked.")
		return nil
	}

	client, err := newBalanceClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	balances, err := client.GetBalances(ctx, wallets)
	if err != nil {
		return err
	}
	return printBalances(cmd.OutOrStdout(), wallets, balances, cfg.TokenSymbol)
}

func trackedWallets(ctx context.Context) (*config.Config, []string, error) {
	cfg, databaseURL, err := config.LoadWithDefaults(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.NewStore(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	wallets, err := store.ListWallets(ctx)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("Loaded tracked wallets", "count", len(wallets))
	return cfg, wallets, nil
}

// printBalances writes one row per distinct wallet in input order, then the total
func printBalances(w io.Writer, wallets []string, balances map[string]decimal.Decimal, symbol string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "WALLET\t%s\t\n", symbol)

	total := decimal.Zero
	seen := make(map[string]bool, len(wallets))
	for _, wallet := range wallets {
		if seen[wallet] {
			continue
		}
		seen[wallet] = true

		amount := balances[wallet]
		total = total.Add(amount)
		fmt.Fprintf(tw, "%s\t%s\t\n", wallet, notify.FormatAmount(amount, 2))
	}
	fmt.Fprintf(tw, "TOTAL (%d)\t%s\t\n", len(seen), notify.FormatAmount(total, 2))
	return tw.Flush()
}
