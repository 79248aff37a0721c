package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the latest known balance of a tracked wallet
type Balance struct {
	Address     string
	Amount      decimal.Decimal
	LastUpdated time.Time
}

// Snapshot is one wallet balance recorded by a sync cycle
type Snapshot struct {
	ID       int64
	SyncedAt time.Time
	Address  string
	Mint     string
	Amount   decimal.Decimal
}

// Subscription links a Telegram user to a Pushover user key
type Subscription struct {
	TelegramUserID int64
	UserKey        string
	CreatedAt      time.Time
}

// MigrationState describes one embedded migration
type MigrationState struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}
