package cmd

import (
	"log/slog"

	"github.com/matrixise/spl-tracker/internal/blockchain"
	"github.com/matrixise/spl-tracker/internal/config"
	"github.com/matrixise/spl-tracker/internal/logger"
	"github.com/matrixise/spl-tracker/internal/scheduler"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file syntax and values without running the application.`,
	RunE:  validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	logger.Setup(logLevel)

	cfg, databaseURL, err := config.LoadWithDefaults(cfgFile)
	if err != nil {
		slog.Error("Configuration validation failed", "error", err)
		return err
	}

	endpoints := make([]string, 0, len(cfg.RPCUrls))
	for _, u := range cfg.RPCUrls {
		endpoints = append(endpoints, blockchain.RedactURL(u))
	}

	slog.Info("✓ Configuration valid",
		"rpc_endpoints", endpoints,
		"mint", cfg.Mint,
		"symbol", cfg.TokenSymbol,
		"seed_wallets", len(cfg.Wallets),
		"schedule", scheduler.DescribeSchedule(cfg.Interval, cfg.GetTimezone()),
		"alert_threshold", cfg.Threshold().String(),
		"telegram", cfg.Telegram.BotToken != "",
		"pushover", cfg.Pushover.AppToken != "",
		"admins", len(cfg.AdminUserIDs),
		"log_level", cfg.LogLevel,
		"database_url_set", databaseURL != "",
	)
	return nil
}
