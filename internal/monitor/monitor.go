package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matrixise/spl-tracker/internal/notify"
	"github.com/matrixise/spl-tracker/internal/storage"
)

// Store is the persistence the monitor needs
type Store interface {
	ListWallets(ctx context.Context) ([]string, error)
	RecordSync(ctx context.Context, mint string, balances map[string]decimal.Decimal, at time.Time) error
	ListSubscriptions(ctx context.Context) ([]storage.Subscription, error)
}

// Fetcher looks up the token balance of many wallets
type Fetcher interface {
	GetBalances(ctx context.Context, wallets []string) (map[string]decimal.Decimal, error)
}

// Notifier posts a cycle summary to the channel
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Alerter pushes a notification to subscribed users
type Alerter interface {
	Broadcast(ctx context.Context, userKeys []string, title, message string, priority int) int
}

type alertState int

const (
	stateUnknown alertState = iota
	stateAbove
	stateBelow
)

func (s alertState) String() string {
	switch s {
	case stateAbove:
		return "above"
	case stateBelow:
		return "below"
	default:
		return "unknown"
	}
}

// Result summarizes one refresh or sync
type Result struct {
	SyncedAt time.Time
	Wallets  int
	Total    decimal.Decimal
	Below    bool
}

// Config configures a Monitor
type Config struct {
	Mint      string
	Symbol    string
	Threshold decimal.Decimal
	Store     Store
	Fetcher   Fetcher
	Notifier  Notifier // optional
	Alerter   Alerter  // optional
	Now       func() time.Time
}

// Monitor runs the poll cycle: fetch, persist, report, alert.
// Push alerts fire only when the total crosses from at-or-above the threshold to below it.
type Monitor struct {
	cfg Config

	mu       sync.Mutex
	state    alertState
	lastSync time.Time
}

// New creates a monitor
func New(cfg Config) *Monitor {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Symbol == "" {
		cfg.Symbol = "USDT"
	}
	return &Monitor{cfg: cfg}
}

// Refresh fetches the balance of every tracked wallet and persists it
func (m *Monitor) Refresh(ctx context.Context) (Result, error) {
	wallets, err := m.cfg.Store.ListWallets(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list wallets: %w", err)
	}
	if len(wallets) == 0 {
		slog.Info("No wallets to sync")
		return Result{SyncedAt: m.cfg.Now(), Total: decimal.Zero}, nil
	}

	slog.Info("Syncing balances", "wallets", len(wallets))

	balances, err := m.cfg.Fetcher.GetBalances(ctx, wallets)
	if err != nil {
		return Result{}, fmt.Errorf("fetch balances: %w", err)
	}

	at := m.cfg.Now()
	if err := m.cfg.Store.RecordSync(ctx, m.cfg.Mint, balances, at); err != nil {
		return Result{}, fmt.Errorf("persist balances: %w", err)
	}

	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b)
	}

	slog.Info("Balances synced", "wallets", len(wallets), "total", total.StringFixed(2), "symbol", m.cfg.Symbol)
	return Result{
		SyncedAt: at,
		Wallets:  len(wallets),
		Total:    total,
		Below:    total.LessThan(m.cfg.Threshold),
	}, nil
}

// Sync runs one full cycle. Notification failures are logged and never fail the cycle.
func (m *Monitor) Sync(ctx context.Context) error {
	res, err := m.Refresh(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.lastSync = res.SyncedAt
	m.mu.Unlock()

	if res.Wallets == 0 {
		return nil
	}

	summary := notify.Summary{
		Time:      res.SyncedAt,
		Wallets:   res.Wallets,
		Total:     res.Total,
		Threshold: m.cfg.Threshold,
		Symbol:    m.cfg.Symbol,
	}
	if m.cfg.Notifier != nil {
		if err := m.cfg.Notifier.Notify(ctx, summary.Markdown()); err != nil {
			slog.Error("Telegram notification failed", "error", err)
		} else {
			slog.Info("Telegram notification sent")
		}
	}

	if m.transition(res.Total) {
		m.alert(ctx, res.Total)
	}
	return nil
}

// transition updates the threshold state and reports whether an alert is due
func (m *Monitor) transition(total decimal.Decimal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	below := total.LessThan(m.cfg.Threshold)
	switch {
	case below && m.state != stateBelow:
		slog.Warn("Balance below threshold", "total", total.StringFixed(2), "threshold", m.cfg.Threshold.String())
		m.state = stateBelow
		return true
	case !below && m.state == stateBelow:
		slog.Info("Balance recovered above threshold", "total", total.StringFixed(2))
		m.state = stateAbove
	case !below && m.state == stateUnknown:
		m.state = stateAbove
	}
	return false
}

func (m *Monitor) alert(ctx context.Context, total decimal.Decimal) {
	if m.cfg.Alerter == nil {
		return
	}

	subs, err := m.cfg.Store.ListSubscriptions(ctx)
	if err != nil {
		slog.Error("Could not load Pushover subscriptions", "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	keys := make([]string, 0, len(subs))
	for _, s := range subs {
		keys = append(keys, s.UserKey)
	}

	title, message := notify.LowBalanceAlert(total, m.cfg.Threshold, m.cfg.Symbol)
	sent := m.cfg.Alerter.Broadcast(ctx, keys, title, message, notify.PriorityHigh)
	slog.Info("Pushover alerts sent", "delivered", sent, "subscribers", len(keys))
}

// LastSync returns when the last successful cycle completed; zero if none has
func (m *Monitor) LastSync() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSync
}

// State returns the current threshold state: unknown, above or below
func (m *Monitor) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.String()
}
