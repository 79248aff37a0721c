package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matrixise/spl-tracker/internal/blockchain"
	"github.com/matrixise/spl-tracker/internal/bot"
	"github.com/matrixise/spl-tracker/internal/config"
	"github.com/matrixise/spl-tracker/internal/health"
	"github.com/matrixise/spl-tracker/internal/logger"
	"github.com/matrixise/spl-tracker/internal/monitor"
	"github.com/matrixise/spl-tracker/internal/notify"
	"github.com/matrixise/spl-tracker/internal/scheduler"
	"github.com/matrixise/spl-tracker/internal/storage"
)

var (
	interval string
	once     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the balance tracker",
	Long: `Fetch the USDT balance of every tracked wallet, persist it to PostgreSQL and
notify. With an interval the tracker runs as a daemon together with the Telegram
bot and the health endpoint.`,
	RunE: runTracker,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&interval, "interval", "", "run interval - duration (5m, 1h) or cron (\"*/5 * * * *\") - empty for one-time run")
	runCmd.Flags().BoolVar(&once, "once", false, "run once and exit, ignoring any configured interval")
}

func runTracker(cmd *cobra.Command, args []string) error {
	logger.Setup(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, databaseURL, err := config.LoadWithDefaults(cfgFile)
	if err != nil {
		slog.Error("Configuration error", "error", err)
		return err
	}
	if cfg.LogLevel != "" && !cmd.Flags().Changed("log-level") {
		logger.Setup(cfg.LogLevel)
	}

	runInterval := cfg.Interval
	if interval != "" {
		if err := scheduler.ValidateScheduleInterval(interval); err != nil {
			return fmt.Errorf("invalid --interval: %w", err)
		}
		runInterval = interval
	}
	if once {
		runInterval = ""
	}

	slog.Info("Configuration loaded",
		"config_path", cfgFile,
		"rpc_endpoints", len(cfg.RPCUrls),
		"mint", cfg.Mint,
		"seed_wallets", len(cfg.Wallets),
		"schedule", scheduler.DescribeSchedule(runInterval, cfg.GetTimezone()),
	)

	if err := storage.RunMigrations(ctx, databaseURL); err != nil {
		slog.Error("Failed to apply migrations", "error", err)
		return err
	}

	store, err := storage.NewStore(ctx, databaseURL)
	if err != nil {
		slog.Error("Failed to connect to PostgreSQL", "error", err)
		return err
	}
	defer store.Close()
	slog.Info("PostgreSQL connection established")

	if len(cfg.Wallets) > 0 {
		added, err := store.AddWallets(ctx, cfg.Wallets)
		if err != nil {
			return fmt.Errorf("failed to seed wallets: %w", err)
		}
		slog.Info("Configured wallets seeded", "added", added, "configured", len(cfg.Wallets))
	}

	client, err := newBalanceClient(cfg)
	if err != nil {
		slog.Error("Failed to create RPC client", "error", err)
		return err
	}
	defer client.Close()

	var telegram *tgbotapi.BotAPI
	if cfg.Telegram.BotToken != "" {
		telegram, err = tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			slog.Error("Failed to connect to Telegram", "error", err)
			return err
		}
		slog.Info("Telegram bot authorized", "username", telegram.Self.UserName)
	}

	mon := monitor.New(monitorConfig(cfg, store, client, telegram))

	if runInterval == "" {
		return mon.Sync(ctx)
	}

	slog.Info("Starting daemon mode with scheduler",
		"interval", runInterval,
		"timezone", cfg.GetTimezone().String(),
		"run_immediately", cfg.ShouldRunImmediately())

	var healthChecker *health.Checker
	job := func(jobCtx context.Context) error {
		err := mon.Sync(jobCtx)
		healthChecker.UpdateLastRun(err == nil)
		return err
	}

	sched, err := scheduler.NewScheduler(ctx, scheduler.Config{
		Interval:       runInterval,
		Timezone:       cfg.GetTimezone(),
		RunImmediately: cfg.ShouldRunImmediately(),
		Logger:         slog.Default(),
	}, job)
	if err != nil {
		slog.Error("Failed to create scheduler", "error", err)
		return fmt.Errorf("scheduler creation failed: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			slog.Error("Scheduler shutdown error", "error", err)
		}
	}()

	healthChecker = health.NewChecker(store, client, sched.ExpectedInterval())

	g, gctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           healthChecker.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		slog.Info("Health check server starting", "port", cfg.HTTPPort, "endpoint", "/health")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if telegram != nil {
		b := bot.New(telegram, store, mon, bot.Config{
			Symbol:    cfg.TokenSymbol,
			Threshold: cfg.Threshold(),
			IsAdmin:   cfg.IsAdmin,
		})
		g.Go(func() error { return b.Run(gctx) })
	}

	if err := sched.Start(); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		stop()
		_ = g.Wait()
		return fmt.Errorf("scheduler start failed: %w", err)
	}
	slog.Info("Daemon mode started with clock-aligned scheduling")

	<-gctx.Done()
	slog.Info("Shutdown requested, stopping daemon")
	stop()
	return g.Wait()
}

func newBalanceClient(cfg *config.Config) (*blockchain.Client, error) {
	opts := blockchain.DefaultOptions()
	opts.Endpoints = cfg.RPCUrls
	opts.Mint = cfg.Mint
	opts.Decimals = cfg.Decimals
	opts.RequestsPerWindow = cfg.RequestsPerSecond
	opts.Window = time.Second
	opts.BatchSize = cfg.BatchSize
	opts.RequestTimeout = cfg.RequestTimeoutDuration()
	opts.MaxRetries = cfg.MaxRetries
	opts.Concurrency = cfg.Concurrency

	client, err := blockchain.NewClient(opts)
	if err != nil {
		return nil, err
	}
	slog.Debug("RPC client ready",
		"mint", client.Deriver().Mint().String(),
		"requests_per_window", client.Limiter().Requests(),
		"window", client.Limiter().Window())
	return client, nil
}

// monitorConfig wires the optional notifiers; nil collaborators stay untyped nil
func monitorConfig(cfg *config.Config, store *storage.Store, client *blockchain.Client, telegram *tgbotapi.BotAPI) monitor.Config {
	mc := monitor.Config{
		Mint:      cfg.Mint,
		Symbol:    cfg.TokenSymbol,
		Threshold: cfg.Threshold(),
		Store:     store,
		Fetcher:   client,
	}
	if telegram != nil {
		mc.Notifier = notify.NewTelegram(telegram, cfg.Telegram.ChannelID)
	}
	if cfg.Pushover.AppToken != "" {
		mc.Alerter = notify.NewPushover(cfg.Pushover.AppToken)
	}
	return mc
}
