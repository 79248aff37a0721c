package blockchain

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	methodGetMultipleAccounts = "getMultipleAccounts"
	methodGetHealth           = "getHealth"

	defaultRequestsPerWindow = 10
	defaultWindow            = time.Second
	defaultRequestTimeout    = 30 * time.Second
	defaultMaxRetries        = 2
	defaultRetryInterval     = 500 * time.Millisecond
	defaultConcurrency       = 4
	defaultDecimals          = 6
)

// USDTMint is the mint of Tether USD on Solana mainnet
const USDTMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"

// Options configures a Client
type Options struct {
	Endpoints         []string
	Mint              string
	Decimals          uint8
	RequestsPerWindow int
	Window            time.Duration
	BatchSize         int
	RequestTimeout    time.Duration
	MaxRetries        int
	RetryInterval     time.Duration
	Concurrency       int
	BreakerTripAfter  uint32
	BreakerCooldown   time.Duration

	// Limiter overrides the client's own limiter, e.g. to share one between clients.
	Limiter    *RateLimiter
	HTTPClient *http.Client
}

// DefaultOptions returns the reference configuration for the USDT mint
func DefaultOptions() Options {
	return Options{
		Mint:              USDTMint,
		Decimals:          defaultDecimals,
		RequestsPerWindow: defaultRequestsPerWindow,
		Window:            defaultWindow,
		BatchSize:         MaxBatchSize,
		RequestTimeout:    defaultRequestTimeout,
		MaxRetries:        defaultMaxRetries,
		RetryInterval:     defaultRetryInterval,
		Concurrency:       defaultConcurrency,
	}
}

// Client fetches token balances for many wallets with batched, rate-limited requests
type Client struct {
	deriver     *Deriver
	transport   *rpcTransport
	decimals    uint8
	batchSize   int
	concurrency int
}

// NewClient validates opts and creates a balance client.
// It performs no network activity.
func NewClient(opts Options) (*Client, error) {
	mint, err := solana.PublicKeyFromBase58(opts.Mint)
	if err != nil {
		return nil, &ConfigurationError{Field: "mint", Reason: err.Error()}
	}
	if opts.BatchSize < 1 || opts.BatchSize > MaxBatchSize {
		return nil, &ConfigurationError{Field: "batch_size", Reason: fmt.Sprintf("must be between 1 and %d", MaxBatchSize)}
	}
	if opts.RequestTimeout <= 0 {
		return nil, &ConfigurationError{Field: "request_timeout", Reason: "must be positive"}
	}
	if opts.MaxRetries < 0 {
		return nil, &ConfigurationError{Field: "max_retries", Reason: "must not be negative"}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	limiter := opts.Limiter
	if limiter == nil {
		if opts.RequestsPerWindow < 1 || opts.Window <= 0 {
			return nil, &ConfigurationError{Field: "rate_limit", Reason: "requests and window must be positive"}
		}
		limiter = NewRateLimiter(opts.RequestsPerWindow, opts.Window)
	}

	endpoints, err := NewFailoverClient(opts.Endpoints, opts.BreakerTripAfter, opts.BreakerCooldown)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        opts.Concurrency * 2,
				MaxIdleConnsPerHost: opts.Concurrency,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{
		deriver: NewDeriver(mint),
		transport: &rpcTransport{
			endpoints:     endpoints,
			httpClient:    httpClient,
			limiter:       limiter,
			timeout:       opts.RequestTimeout,
			maxRetries:    opts.MaxRetries,
			retryInterval: opts.RetryInterval,
		},
		decimals:    opts.Decimals,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
	}, nil
}

// Deriver exposes the client's address deriver and its cache
func (c *Client) Deriver() *Deriver {
	return c.deriver
}

// Limiter returns the rate limiter gating every request of the client
func (c *Client) Limiter() *RateLimiter {
	return c.transport.limiter
}

// GetBalances returns the token balance of every wallet.
//
// The result holds exactly one entry per distinct input wallet. Wallets that fail
// address derivation, or whose batch fails at the transport or protocol level,
// stay at zero and are only reported in the logs. The only error returned is the
// cancellation of ctx.
func (c *Client) GetBalances(ctx context.Context, wallets []string) (map[string]decimal.Decimal, error) {
	defer c.transport.release()

	balances := make(map[string]decimal.Decimal, len(wallets))
	accounts := make([]string, 0, len(wallets))
	owners := make(map[string]string, len(wallets))
	derived := 0

	for _, wallet := range wallets {
		if _, seen := balances[wallet]; seen {
			continue
		}
		balances[wallet] = decimal.Zero

		if !c.deriver.Cached(wallet) {
			derived++
		}
		ata, err := c.deriver.Derive(wallet)
		if err != nil {
			slog.Warn("Skipping wallet with invalid address", "wallet", wallet, "error", err)
			continue
		}

		account := ata.String()
		owners[account] = wallet
		accounts = append(accounts, account)
	}

	if len(accounts) == 0 {
		return balances, nil
	}

	batches := PlanBatches(accounts, c.batchSize)
	// One slot per batch; goroutines never share a slot.
	results := make([][]decimal.Decimal, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, batch := range batches {
		g.Go(func() error {
			values, err := c.fetchBatch(gctx, batch)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Error("Balance batch failed, wallets default to zero",
					"batch", i,
					"size", len(batch),
					"error", err,
				)
				return nil
			}
			results[i] = values
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, batch := range batches {
		if results[i] == nil {
			continue
		}
		for pos, account := range batch {
			balances[owners[account]] = results[i][pos]
		}
	}

	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		slog.Debug("Balances fetched",
			"mint", c.deriver.Mint().String(),
			"wallets", len(balances),
			"batches", len(batches),
			"new_derivations", derived,
			"cached_derivations", c.deriver.Len(),
			"rpc_requests_total", c.transport.limiter.Acquired())
	}
	return balances, nil
}

// GetBalance returns the token balance of a single wallet
func (c *Client) GetBalance(ctx context.Context, wallet string) (decimal.Decimal, error) {
	balances, err := c.GetBalances(ctx, []string{wallet})
	if err != nil {
		return decimal.Zero, err
	}
	return balances[wallet], nil
}

// fetchBatch looks up one batch of token accounts; the result is aligned with batch
func (c *Client) fetchBatch(ctx context.Context, batch []string) ([]decimal.Decimal, error) {
	params := []any{batch, accountsConfig{Encoding: "base64", Commitment: "confirmed"}}

	var result multipleAccountsResult
	if err := c.transport.call(ctx, methodGetMultipleAccounts, params, &result); err != nil {
		return nil, err
	}

	if len(result.Value) != len(batch) {
		slog.Warn("getMultipleAccounts returned unexpected number of accounts",
			"requested", len(batch),
			"returned", len(result.Value),
		)
	}

	values := make([]decimal.Decimal, len(batch))
	for pos, account := range batch {
		values[pos] = decimal.Zero

		// Absent or null means the token account is not initialized yet.
		if pos >= len(result.Value) || result.Value[pos] == nil {
			continue
		}

		logger := slog.With("account", account)
		blob, err := result.Value[pos].Blob()
		if err != nil {
			logger.Warn("Token account data unreadable", "error", err)
			continue
		}
		values[pos] = decodeBalance(logger, blob, c.decimals)
	}

	return values, nil
}

// Health calls getHealth on the current endpoint
func (c *Client) Health(ctx context.Context) error {
	var status string
	if err := c.transport.call(ctx, methodGetHealth, nil, &status); err != nil {
		return err
	}
	if status != "ok" {
		return fmt.Errorf("rpc node reports %q", status)
	}
	return nil
}

// EndpointsHealth reports breaker state per configured endpoint
func (c *Client) EndpointsHealth() map[string]bool {
	return c.transport.endpoints.EndpointsHealth()
}

// Close releases idle connections
func (c *Client) Close() {
	c.transport.release()
}
