package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gagliardetto/solana-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/matrixise/spl-tracker/internal/monitor"
	"github.com/matrixise/spl-tracker/internal/notify"
	"github.com/matrixise/spl-tracker/internal/storage"
)

const (
	topWallets     = 5
	pollTimeoutSec = 60

	msgNoPermission = "❌ You do not have permission to use this command."
	msgNoWallets    = "ℹ️ No wallets are being tracked. Use /add to add wallets."
	msgInternal     = "❌ Something went wrong, please try again later."
)

// Store is the persistence used by the command handlers
type Store interface {
	AddWallets(ctx context.Context, addresses []string) (int, error)
	RemoveWallets(ctx context.Context, addresses []string) (int, error)
	TopWallets(ctx context.Context, n int) ([]storage.Balance, error)
	AddSubscription(ctx context.Context, userID int64, userKey string) error
	RemoveSubscription(ctx context.Context, userID int64) (bool, error)
}

// Refresher forces a fetch and persist of every tracked wallet
type Refresher interface {
	Refresh(ctx context.Context) (monitor.Result, error)
}

// API is the subset of *tgbotapi.BotAPI the bot uses
type API interface {
	notify.Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Config configures a Bot
type Config struct {
	Symbol    string
	Threshold decimal.Decimal
	IsAdmin   func(userID int64) bool
}

// Bot answers wallet management and balance commands
type Bot struct {
	api       API
	store     Store
	refresher Refresher
	cfg       Config
}

// New creates a bot
func New(api API, store Store, refresher Refresher, cfg Config) *Bot {
	if cfg.Symbol == "" {
		cfg.Symbol = "USDT"
	}
	if cfg.IsAdmin == nil {
		cfg.IsAdmin = func(int64) bool { return false }
	}
	return &Bot{api: api, store: store, refresher: refresher, cfg: cfg}
}

// Run polls Telegram for updates until ctx is cancelled
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSec

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	slog.Info("Telegram bot started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Telegram bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches a single update; anything but a command is ignored
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}

	chatID := msg.Chat.ID
	reply := func(text string, markdown bool) {
		out := tgbotapi.NewMessage(chatID, text)
		if markdown {
			out.ParseMode = tgbotapi.ModeMarkdown
		}
		if _, err := b.api.Send(out); err != nil {
			slog.Error("Failed to send bot reply", "chat_id", chatID, "error", err)
		}
	}

	b.handle(ctx, msg.From.ID, msg.Command(), strings.Fields(msg.CommandArguments()), reply)
}

type replyFunc func(text string, markdown bool)

func (b *Bot) handle(ctx context.Context, userID int64, command string, args []string, reply replyFunc) {
	slog.Info("Bot command received", "command", command, "user_id", userID, "args", len(args))

	switch command {
	case "start", "help":
		reply(b.help(userID), true)
	case "add":
		b.add(ctx, userID, args, reply)
	case "remove":
		b.remove(ctx, userID, args, reply)
	case "balance":
		b.balance(ctx, userID, reply)
	case "top_5":
		b.top(ctx, reply)
	case "enable_pushover":
		b.enablePushover(ctx, userID, args, reply)
	case "disable_pushover":
		b.disablePushover(ctx, userID, reply)
	default:
		slog.Debug("Unknown bot command ignored", "command", command)
	}
}

func (b *Bot) help(userID int64) string {
	var sb strings.Builder
	sb.WriteString("🤖 *Solana Wallet Balance Bot*\n\nAvailable commands:\n")
	if b.cfg.IsAdmin(userID) {
		sb.WriteString("/add <addr1> <addr2> ... - Add wallet(s) to tracking\n")
		sb.WriteString("/remove <addr1> <addr2> ... - Remove wallet(s) from tracking\n")
		fmt.Fprintf(&sb, "/balance - Show total %s balance (forces update)\n", b.cfg.Symbol)
	}
	// legacy Markdown treats a bare underscore as italics
	fmt.Fprintf(&sb, "/top\\_5 - List top 5 wallets by %s balance\n", b.cfg.Symbol)
	sb.WriteString("/enable\\_pushover <user\\_key> - Subscribe to Pushover alerts\n")
	sb.WriteString("/disable\\_pushover - Unsubscribe from Pushover alerts")
	return sb.String()
}

func (b *Bot) add(ctx context.Context, userID int64, args []string, reply replyFunc) {
	if !b.cfg.IsAdmin(userID) {
		reply(msgNoPermission, false)
		return
	}
	if len(args) == 0 {
		reply("❌ Please provide at least one wallet address.\nUsage: /add <address1> <address2> ...", false)
		return
	}

	valid, invalid := splitAddresses(args)
	if len(invalid) > 0 {
		reply("❌ Invalid wallet address(es) ignored: "+strings.Join(invalid, ", "), false)
	}
	if len(valid) == 0 {
		return
	}

	added, err := b.store.AddWallets(ctx, valid)
	if err != nil {
		slog.Error("Failed to add wallets", "error", err)
		reply(msgInternal, false)
		return
	}
	if added == 0 {
		reply("ℹ️ All provided addresses are already being tracked.", false)
		return
	}
	slog.Info("Wallets added", "count", added, "user_id", userID)
	reply(fmt.Sprintf("✅ Successfully added %d wallet(s) to tracking.", added), false)
}

func (b *Bot) remove(ctx context.Context, userID int64, args []string, reply replyFunc) {
	if !b.cfg.IsAdmin(userID) {
		reply(msgNoPermission, false)
		return
	}
	if len(args) == 0 {
		reply("❌ Please provide at least one wallet address.\nUsage: /remove <address1> <address2> ...", false)
		return
	}

	removed, err := b.store.RemoveWallets(ctx, args)
	if err != nil {
		slog.Error("Failed to remove wallets", "error", err)
		reply(msgInternal, false)
		return
	}
	if removed == 0 {
		reply("ℹ️ None of the provided addresses were being tracked.", false)
		return
	}
	slog.Info("Wallets removed", "count", removed, "user_id", userID)
	reply(fmt.Sprintf("✅ Successfully removed %d wallet(s) from tracking.", removed), false)
}

func (b *Bot) balance(ctx context.Context, userID int64, reply replyFunc) {
	if !b.cfg.IsAdmin(userID) {
		reply(msgNoPermission, false)
		return
	}

	reply("🔄 Fetching latest balances...", false)

	res, err := b.refresher.Refresh(ctx)
	if err != nil {
		slog.Error("Forced balance refresh failed", "error", err)
		reply(msgInternal, false)
		return
	}
	if res.Wallets == 0 {
		reply(msgNoWallets, false)
		return
	}

	reply(fmt.Sprintf("💰 *Total %s Balance*\n\nTracked Wallets: %d\nTotal Balance: %s %s",
		b.cfg.Symbol, res.Wallets, notify.FormatAmount(res.Total, 2), b.cfg.Symbol), true)
}

func (b *Bot) top(ctx context.Context, reply replyFunc) {
	top, err := b.store.TopWallets(ctx, topWallets)
	if err != nil {
		slog.Error("Failed to load top wallets", "error", err)
		reply(msgInternal, false)
		return
	}
	if len(top) == 0 {
		reply(msgNoWallets, false)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🏆 *Top %d Wallets by %s Balance*\n\n", topWallets, b.cfg.Symbol)
	for i, w := range top {
		fmt.Fprintf(&sb, "%d. `%s` - %s %s\n", i+1, notify.ShortAddress(w.Address), notify.FormatAmount(w.Amount, 2), b.cfg.Symbol)
	}
	reply(sb.String(), true)
}

func (b *Bot) enablePushover(ctx context.Context, userID int64, args []string, reply replyFunc) {
	if len(args) != 1 {
		reply("❌ Please provide your Pushover user key.\nUsage: /enable_pushover <user_key>", false)
		return
	}

	if err := b.store.AddSubscription(ctx, userID, args[0]); err != nil {
		slog.Error("Failed to add Pushover subscription", "user_id", userID, "error", err)
		reply(msgInternal, false)
		return
	}
	reply(fmt.Sprintf("✅ Pushover notifications enabled!\nYou will receive alerts when total %s balance falls below %s.",
		b.cfg.Symbol, notify.FormatAmount(b.cfg.Threshold, 0)), false)
}

func (b *Bot) disablePushover(ctx context.Context, userID int64, reply replyFunc) {
	removed, err := b.store.RemoveSubscription(ctx, userID)
	if err != nil {
		slog.Error("Failed to remove Pushover subscription", "user_id", userID, "error", err)
		reply(msgInternal, false)
		return
	}
	if !removed {
		reply("ℹ️ You were not subscribed to Pushover notifications.", false)
		return
	}
	reply("✅ Pushover notifications disabled.", false)
}

// splitAddresses separates base58 public keys from anything else, dropping duplicates
func splitAddresses(args []string) (valid, invalid []string) {
	seen := make(map[string]struct{}, len(args))
	for _, a := range args {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		if _, err := solana.PublicKeyFromBase58(a); err != nil {
			invalid = append(invalid, a)
			continue
		}
		valid = append(valid, a)
	}
	return valid, invalid
}
