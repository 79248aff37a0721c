package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/matrixise/spl-tracker/internal/blockchain"
)

const envPrefix = "SPL_TRACKER"

// envAliases lists the unprefixed variable names also honoured for a key
var envAliases = map[string]string{
	"helius_api_key":      "HELIUS_API_KEY",
	"rpc_url":             "RPC_URL",
	"rpc_urls":            "RPC_URLS",
	"mint":                "USDT_MINT",
	"token_symbol":        "TOKEN_SYMBOL",
	"decimals":            "TOKEN_DECIMALS",
	"requests_per_second": "REQUESTS_PER_SECOND",
	"batch_size":          "BATCH_SIZE",
	"request_timeout":     "REQUEST_TIMEOUT",
	"max_retries":         "MAX_RETRIES",
	"concurrency":         "CONCURRENCY",
	"interval":            "SYNC_INTERVAL",
	"timezone":            "TIMEZONE",
	"run_immediately":     "RUN_IMMEDIATELY",
	"alert_threshold":     "ALERT_THRESHOLD",
	"wallets":             "WALLETS",
	"admin_user_ids":      "ADMIN_USER_IDS",
	"telegram.bot_token":  "TELEGRAM_BOT_TOKEN",
	"telegram.channel_id": "TELEGRAM_CHANNEL_ID",
	"pushover.app_token":  "PUSHOVER_APP_TOKEN",
	"log_level":           "LOG_LEVEL",
	"http_port":           "HTTP_PORT",
}

// listKeys may arrive from the environment as comma-separated strings
var listKeys = []string{"rpc_urls", "wallets", "admin_user_ids"}

// Load reads configuration from a .env file, the config file and environment variables
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()

	v.SetDefault("mint", blockchain.USDTMint)
	v.SetDefault("token_symbol", "USDT")
	v.SetDefault("decimals", 6)
	v.SetDefault("requests_per_second", 10)
	v.SetDefault("batch_size", blockchain.MaxBatchSize)
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("max_retries", 2)
	v.SetDefault("concurrency", 4)
	v.SetDefault("interval", "") // one-shot
	v.SetDefault("timezone", "UTC")
	v.SetDefault("run_immediately", true)
	v.SetDefault("alert_threshold", 1_000_000)
	v.SetDefault("log_level", "info")
	v.SetDefault("http_port", 8080)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	// SPL_TRACKER_TELEGRAM_BOT_TOKEN first, then TELEGRAM_BOT_TOKEN
	for key, alias := range envAliases {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	for _, key := range listKeys {
		if raw, ok := v.Get(key).(string); ok {
			v.Set(key, splitList(raw))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("config normalization failed: %w", err)
	}

	if err := NewValidator().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and the DATABASE_URL the tracker persists to
func LoadWithDefaults(configPath string) (*Config, string, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, "", err
	}

	databaseURL, err := DatabaseURL()
	if err != nil {
		return nil, "", err
	}
	return cfg, databaseURL, nil
}

// DatabaseURL reads SPL_TRACKER_DATABASE_URL or DATABASE_URL, including from .env
func DatabaseURL() (string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	_ = v.BindEnv("database_url", envPrefix+"_DATABASE_URL", "DATABASE_URL")
	databaseURL := v.GetString("database_url")
	if databaseURL == "" {
		return "", errors.New("DATABASE_URL is required")
	}
	return databaseURL, nil
}

func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
