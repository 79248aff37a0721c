package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "spl-tracker",
	Short: "SPL token balance tracker",
	Long: `spl-tracker monitors the USDT (SPL token) balance of a set of Solana wallets,
persists results to PostgreSQL, posts a summary to a Telegram channel after every
sync and sends Pushover alerts when the total falls below a threshold.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
