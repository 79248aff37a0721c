package storage

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	insertWalletSQL = `
		INSERT INTO tracked_wallets (address)
		VALUES ($1)
		ON CONFLICT (address) DO NOTHING`

	// New wallets rank and sum at zero until their first cycle.
	seedBalanceSQL = `
		INSERT INTO balances (address)
		VALUES ($1)
		ON CONFLICT (address) DO NOTHING`

	// Rows are share-locked so a concurrent removal waits for the cycle to commit.
	trackedSubsetSQL = `
		SELECT address FROM tracked_wallets
		WHERE address = ANY($1)
		FOR SHARE`

	// Wallets removed while a cycle was in flight are not resurrected.
	upsertBalanceSQL = `
		INSERT INTO balances (address, amount, last_updated)
		SELECT $1, $2, $3
		WHERE EXISTS (SELECT 1 FROM tracked_wallets WHERE address = $1)
		ON CONFLICT (address) DO UPDATE
		SET amount = EXCLUDED.amount, last_updated = EXCLUDED.last_updated`
)

// querier is satisfied by both the pool and a transaction
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// Store manages PostgreSQL operations
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new PostgreSQL store with connection pooling
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// AddWallets starts tracking addresses and returns how many were not tracked yet.
// Each new wallet gets a zero balance row.
func (s *Store) AddWallets(ctx context.Context, addresses []string) (int, error) {
	if len(addresses) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, addr := range addresses {
		batch.Queue(insertWalletSQL, addr)
		batch.Queue(seedBalanceSQL, addr)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	added := 0
	for range addresses {
		tag, err := br.Exec()
		if err != nil {
			return added, fmt.Errorf("failed to add wallet: %w", err)
		}
		added += int(tag.RowsAffected())

		if _, err := br.Exec(); err != nil {
			return added, fmt.Errorf("failed to seed wallet balance: %w", err)
		}
	}
	return added, nil
}

// RemoveWallets stops tracking addresses; their latest balances go with them
func (s *Store) RemoveWallets(ctx context.Context, addresses []string) (int, error) {
	if len(addresses) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM tracked_wallets WHERE address = ANY($1)`, addresses)
	if err != nil {
		return 0, fmt.Errorf("failed to remove wallets: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListWallets returns every tracked address in insertion order
func (s *Store) ListWallets(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT address FROM tracked_wallets ORDER BY added_at, address`)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	wallets, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan wallets: %w", err)
	}
	return wallets, nil
}

// RecordSync persists a cycle's balances and history atomically.
// Wallets removed while the cycle was in flight get neither a balance nor a history row.
func (s *Store) RecordSync(ctx context.Context, mint string, balances map[string]decimal.Decimal, at time.Time) error {
	if len(balances) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tracked, err := trackedSubset(ctx, tx, sortedAddresses(balances))
		if err != nil {
			return err
		}
		kept := retainTracked(balances, tracked)

		if err := upsertBalances(ctx, tx, kept, at); err != nil {
			return err
		}
		return insertHistory(ctx, tx, mint, kept, at)
	})
}

func trackedSubset(ctx context.Context, q querier, addresses []string) ([]string, error) {
	rows, err := q.Query(ctx, trackedSubsetSQL, addresses)
	if err != nil {
		return nil, fmt.Errorf("failed to lock tracked wallets: %w", err)
	}

	tracked, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan tracked wallets: %w", err)
	}
	return tracked, nil
}

func upsertBalances(ctx context.Context, q querier, balances map[string]decimal.Decimal, at time.Time) error {
	if len(balances) == 0 {
		return nil
	}

	addresses := sortedAddresses(balances)
	batch := &pgx.Batch{}
	for _, addr := range addresses {
		batch.Queue(upsertBalanceSQL, addr, balances[addr], at)
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()

	for range addresses {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert balance: %w", err)
		}
	}
	return nil
}

func insertHistory(ctx context.Context, q querier, mint string, balances map[string]decimal.Decimal, at time.Time) error {
	if len(balances) == 0 {
		return nil
	}

	_, err := q.CopyFrom(ctx,
		pgx.Identifier{"balance_history"},
		[]string{"synced_at", "address", "mint", "amount"},
		pgx.CopyFromRows(historyRows(mint, balances, at)),
	)
	if err != nil {
		return fmt.Errorf("failed to insert balance history: %w", err)
	}
	return nil
}

// TotalBalance sums the latest balances of all tracked wallets
func (s *Store) TotalBalance(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM balances`).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to compute total balance: %w", err)
	}
	return total, nil
}

// TopWallets returns the n largest balances, largest first
func (s *Store) TopWallets(ctx context.Context, n int) ([]Balance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, amount, last_updated
		FROM balances
		ORDER BY amount DESC, address
		LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query top wallets: %w", err)
	}

	top, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Balance, error) {
		var b Balance
		err := row.Scan(&b.Address, &b.Amount, &b.LastUpdated)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan top wallets: %w", err)
	}
	return top, nil
}

// History returns the most recent snapshots of address, newest first
func (s *Store) History(ctx context.Context, address string, limit int) ([]Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, synced_at, address, mint, amount
		FROM balance_history
		WHERE address = $1
		ORDER BY synced_at DESC, id DESC
		LIMIT $2`, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	snapshots, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Snapshot])
	if err != nil {
		return nil, fmt.Errorf("failed to scan history: %w", err)
	}
	return snapshots, nil
}

// AddSubscription registers or replaces the Pushover key of a Telegram user
func (s *Store) AddSubscription(ctx context.Context, userID int64, userKey string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pushover_subscriptions (telegram_user_id, user_key)
		VALUES ($1, $2)
		ON CONFLICT (telegram_user_id) DO UPDATE SET user_key = EXCLUDED.user_key`,
		userID, userKey)
	if err != nil {
		return fmt.Errorf("failed to add subscription: %w", err)
	}
	return nil
}

// RemoveSubscription deletes the subscription of userID and reports whether one existed
func (s *Store) RemoveSubscription(ctx context.Context, userID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pushover_subscriptions WHERE telegram_user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListSubscriptions returns every Pushover subscription
func (s *Store) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT telegram_user_id, user_key, created_at
		FROM pushover_subscriptions
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	subs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Subscription])
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscriptions: %w", err)
	}
	return subs, nil
}

func sortedAddresses(balances map[string]decimal.Decimal) []string {
	return slices.Sorted(maps.Keys(balances))
}

// retainTracked keeps the balances whose address is in tracked
func retainTracked(balances map[string]decimal.Decimal, tracked []string) map[string]decimal.Decimal {
	kept := make(map[string]decimal.Decimal, len(tracked))
	for _, addr := range tracked {
		if amount, ok := balances[addr]; ok {
			kept[addr] = amount
		}
	}
	return kept
}

func historyRows(mint string, balances map[string]decimal.Decimal, at time.Time) [][]any {
	rows := make([][]any, 0, len(balances))
	for _, addr := range sortedAddresses(balances) {
		rows = append(rows, []any{at, addr, mint, balances[addr]})
	}
	return rows
}
