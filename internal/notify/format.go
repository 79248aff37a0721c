package notify

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const summaryTimeLayout = "2006-01-02 15:04:05"

// FormatAmount renders d with thousands separators and the given number of decimal places
func FormatAmount(d decimal.Decimal, places int32) string {
	fixed := d.Abs().StringFixed(places)
	whole, frac, hasFrac := strings.Cut(fixed, ".")

	n, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return d.StringFixed(places)
	}

	out := humanize.BigComma(n)
	if hasFrac {
		out += "." + frac
	}
	if d.IsNegative() && strings.Trim(fixed, "0.") != "" {
		out = "-" + out
	}
	return out
}

// ShortAddress abbreviates a wallet address to its first and last four characters
func ShortAddress(addr string) string {
	if len(addr) <= 11 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}

// Summary describes one completed sync cycle
type Summary struct {
	Time      time.Time
	Wallets   int
	Total     decimal.Decimal
	Threshold decimal.Decimal
	Symbol    string
}

// Below reports whether the total is under the alert threshold
func (s Summary) Below() bool {
	return s.Total.LessThan(s.Threshold)
}

// Markdown renders the channel message for the cycle
func (s Summary) Markdown() string {
	var b strings.Builder
	b.WriteString("📊 *Balance Update*\n\n")
	fmt.Fprintf(&b, "🕐 Time: %s\n", s.Time.Format(summaryTimeLayout))
	fmt.Fprintf(&b, "💼 Tracked Wallets: %d\n", s.Wallets)
	fmt.Fprintf(&b, "💰 Total %s: %s\n", s.Symbol, FormatAmount(s.Total, 2))
	if s.Below() {
		fmt.Fprintf(&b, "\n⚠️ *Alert: Balance below %s %s threshold!*", FormatAmount(s.Threshold, 0), s.Symbol)
	}
	return b.String()
}

// LowBalanceAlert returns the push notification title and body for a total under threshold
func LowBalanceAlert(total, threshold decimal.Decimal, symbol string) (string, string) {
	title := fmt.Sprintf("⚠️ Low %s Balance Alert", symbol)
	message := fmt.Sprintf("Total balance is %s %s (threshold: %s)",
		FormatAmount(total, 2), symbol, FormatAmount(threshold, 0))
	return title, message
}
