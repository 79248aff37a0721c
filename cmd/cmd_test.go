package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixise/spl-tracker/internal/config"
)

const (
	walletA = "So11111111111111111111111111111111111111112"
	walletB = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

func TestPrintBalances(t *testing.T) {
	var buf bytes.Buffer
	balances := map[string]decimal.Decimal{
		walletA: decimal.RequireFromString("1234.5"),
		walletB: decimal.NewFromInt(2_000_000),
	}

	require.NoError(t, printBalances(&buf, []string{walletB, walletA, walletB}, balances, "USDT"))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "WALLET")
	assert.Contains(t, lines[0], "USDT")
	assert.Contains(t, lines[1], walletB)
	assert.Contains(t, lines[1], "2,000,000.00")
	assert.Contains(t, lines[2], walletA)
	assert.Contains(t, lines[2], "1,234.50")
	assert.Contains(t, lines[3], "TOTAL (2)")
	assert.Contains(t, lines[3], "2,001,234.50")
}

func TestValidateWallets(t *testing.T) {
	require.NoError(t, validateWallets([]string{walletA, walletB}))

	err := validateWallets([]string{walletA, "0x1234"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `wallet #2 "0x1234"`)
}

func TestNewBalanceClient(t *testing.T) {
	cfg := &config.Config{
		RPCUrls:           []string{"https://rpc.example.com/?api-key=secret"},
		Mint:              walletB,
		TokenSymbol:       "USDT",
		Decimals:          6,
		RequestsPerSecond: 25,
		BatchSize:         50,
		RequestTimeout:    "5s",
		MaxRetries:        1,
		Concurrency:       2,
	}

	client, err := newBalanceClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 25, client.Limiter().Requests())
	assert.Equal(t, time.Second, client.Limiter().Window())
	assert.Equal(t, walletB, client.Deriver().Mint().String())
}

func TestMonitorConfigLeavesDisabledNotifiersNil(t *testing.T) {
	cfg := &config.Config{Mint: walletB, TokenSymbol: "USDT", AlertThreshold: 1_000_000}

	mc := monitorConfig(cfg, nil, nil, nil)
	assert.Nil(t, mc.Notifier)
	assert.Nil(t, mc.Alerter)
	assert.Equal(t, "USDT", mc.Symbol)

	cfg.Pushover.AppToken = "app-token"
	assert.NotNil(t, monitorConfig(cfg, nil, nil, nil).Alerter)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)

	assert.Contains(t, buf.String(), "spl-tracker dev")
	assert.Contains(t, buf.String(), "Commit: unknown")
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"run"},
		{"balance"},
		{"wallets", "add"},
		{"wallets", "remove"},
		{"wallets", "list"},
		{"wallets", "history"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "status"},
		{"validate-config"},
		{"version"},
	} {
		found, _, err := rootCmd.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], found.Name())
	}
}
