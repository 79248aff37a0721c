package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/matrixise/spl-tracker/internal/scheduler"
)

const heliusRPCURL = "https://mainnet.helius-rpc.com/?api-key="

// Config represents the application configuration
type Config struct {
	HeliusAPIKey string   `mapstructure:"helius_api_key"`
	RPCUrl       string   `mapstructure:"rpc_url" validate:"omitempty,url"`
	RPCUrls      []string `mapstructure:"rpc_urls" validate:"required,min=1,dive,url"`

	Mint        string `mapstructure:"mint" validate:"required,solana_addr"`
	TokenSymbol string `mapstructure:"token_symbol" validate:"required,max=16"`
	Decimals    uint8  `mapstructure:"decimals" validate:"max=18"`

	RequestsPerSecond int    `mapstructure:"requests_per_second" validate:"min=1,max=1000"`
	BatchSize         int    `mapstructure:"batch_size" validate:"min=1,max=100"`
	RequestTimeout    string `mapstructure:"request_timeout" validate:"omitempty,duration"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"min=0,max=10"`
	Concurrency       int    `mapstructure:"concurrency" validate:"min=1,max=64"`

	Interval       string  `mapstructure:"interval" validate:"omitempty,schedule"`
	Timezone       string  `mapstructure:"timezone" validate:"omitempty,timezone"`
	RunImmediately *bool   `mapstructure:"run_immediately"`
	AlertThreshold float64 `mapstructure:"alert_threshold" validate:"gte=0"`

	// Wallets are seeded into the tracked set at startup
	Wallets      []string `mapstructure:"wallets" validate:"omitempty,dive,solana_addr"`
	AdminUserIDs []int64  `mapstructure:"admin_user_ids"`

	Telegram TelegramConfig `mapstructure:"telegram"`
	Pushover PushoverConfig `mapstructure:"pushover"`

	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	HTTPPort int    `mapstructure:"http_port" validate:"omitempty,min=1024,max=65535"`
}

// TelegramConfig holds the bot credentials and the channel receiving cycle summaries
type TelegramConfig struct {
	BotToken  string `mapstructure:"bot_token"`
	ChannelID string `mapstructure:"channel_id" validate:"required_with=BotToken"`
}

// PushoverConfig holds the application token used for low balance alerts
type PushoverConfig struct {
	AppToken string `mapstructure:"app_token"`
}

// HeliusURL returns the mainnet Helius endpoint for apiKey
func HeliusURL(apiKey string) string {
	return heliusRPCURL + apiKey
}

// Normalize resolves the endpoint list and the poll interval.
// Explicit rpc_urls win over rpc_url, which wins over a Helius API key.
func (c *Config) Normalize() error {
	if len(c.RPCUrls) == 0 && c.RPCUrl != "" {
		c.RPCUrls = []string{c.RPCUrl}
	}
	c.RPCUrl = ""

	if len(c.RPCUrls) == 0 && c.HeliusAPIKey != "" {
		c.RPCUrls = []string{HeliusURL(c.HeliusAPIKey)}
	}
	if len(c.RPCUrls) == 0 {
		return errors.New("no RPC endpoint configured: set rpc_urls, rpc_url or helius_api_key")
	}

	// A bare number of seconds, as in SYNC_INTERVAL=60
	if secs, err := strconv.Atoi(strings.TrimSpace(c.Interval)); err == nil {
		c.Interval = fmt.Sprintf("%ds", secs)
	}

	for i, w := range c.Wallets {
		c.Wallets[i] = strings.TrimSpace(w)
	}

	return nil
}

// GetTimezone returns the configured location, UTC when unset or unknown
func (c *Config) GetTimezone() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ShouldRunImmediately defaults to true
func (c *Config) ShouldRunImmediately() bool {
	if c.RunImmediately == nil {
		return true
	}
	return *c.RunImmediately
}

// IsOneShot reports whether the tracker runs a single cycle and exits
func (c *Config) IsOneShot() bool {
	return c.Interval == ""
}

// RequestTimeoutDuration returns the per-request RPC timeout
func (c *Config) RequestTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Threshold returns the alert threshold as a decimal
func (c *Config) Threshold() decimal.Decimal {
	return decimal.NewFromFloat(c.AlertThreshold)
}

// IsAdmin reports whether userID may run admin bot commands
func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.AdminUserIDs, userID)
}

func solanaAddressValidator(fl validator.FieldLevel) bool {
	_, err := solana.PublicKeyFromBase58(fl.Field().String())
	return err == nil
}

func durationValidator(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

func scheduleValidator(fl validator.FieldLevel) bool {
	return scheduler.ValidateScheduleInterval(fl.Field().String()) == nil
}

// NewValidator creates a validator with custom validation rules
func NewValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("solana_addr", solanaAddressValidator)
	_ = validate.RegisterValidation("duration", durationValidator)
	_ = validate.RegisterValidation("schedule", scheduleValidator)
	return validate
}
