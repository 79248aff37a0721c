package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gregdel/pushover"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		places int32
		want   string
	}{
		{"zero", "0", 2, "0.00"},
		{"small", "5", 2, "5.00"},
		{"thousands", "1234.5", 2, "1,234.50"},
		{"millions", "1234567.891", 2, "1,234,567.89"},
		{"rounds half up", "999.995", 2, "1,000.00"},
		{"threshold without decimals", "1000000", 0, "1,000,000"},
		{"micro amount", "0.000001", 2, "0.00"},
		{"beyond int64", "98765432109876543210.5", 2, "98,765,432,109,876,543,210.50"},
		{"negative", "-2500", 2, "-2,500.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAmount(decimal.RequireFromString(tt.amount), tt.places))
		})
	}
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "So11...1112", ShortAddress("So11111111111111111111111111111111111111112"))
	assert.Equal(t, "short", ShortAddress("short"))
}

func TestSummaryMarkdown(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	t.Run("above threshold", func(t *testing.T) {
		s := Summary{
			Time:      at,
			Wallets:   3,
			Total:     decimal.RequireFromString("1500000.5"),
			Threshold: decimal.NewFromInt(1_000_000),
			Symbol:    "USDT",
		}

		msg := s.Markdown()
		assert.False(t, s.Below())
		assert.Contains(t, msg, "*Balance Update*")
		assert.Contains(t, msg, "Time: 2026-03-01 09:30:00")
		assert.Contains(t, msg, "Tracked Wallets: 3")
		assert.Contains(t, msg, "Total USDT: 1,500,000.50")
		assert.NotContains(t, msg, "Alert")
	})

	t.Run("below threshold", func(t *testing.T) {
		s := Summary{
			Time:      at,
			Wallets:   2,
			Total:     decimal.NewFromInt(999_999),
			Threshold: decimal.NewFromInt(1_000_000),
			Symbol:    "USDT",
		}

		assert.True(t, s.Below())
		assert.Contains(t, s.Markdown(), "Alert: Balance below 1,000,000 USDT threshold!")
	})

	t.Run("exactly at threshold is not below", func(t *testing.T) {
		s := Summary{Total: decimal.NewFromInt(1_000_000), Threshold: decimal.NewFromInt(1_000_000)}
		assert.False(t, s.Below())
	})
}

func TestLowBalanceAlert(t *testing.T) {
	title, message := LowBalanceAlert(decimal.RequireFromString("850000.1"), decimal.NewFromInt(1_000_000), "USDT")
	assert.Equal(t, "⚠️ Low USDT Balance Alert", title)
	assert.Equal(t, "Total balance is 850,000.10 USDT (threshold: 1,000,000)", message)
}

type recordingSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return tgbotapi.Message{}, r.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		r.sent = append(r.sent, msg)
	}
	return tgbotapi.Message{MessageID: len(r.sent)}, nil
}

func TestTelegramNotify(t *testing.T) {
	t.Run("numeric chat id", func(t *testing.T) {
		sender := &recordingSender{}
		tg := NewTelegram(sender, "-1001234567890")

		require.NoError(t, tg.Notify(context.Background(), "*hello*"))
		require.Len(t, sender.sent, 1)
		assert.Equal(t, int64(-1001234567890), sender.sent[0].ChatID)
		assert.Equal(t, "*hello*", sender.sent[0].Text)
		assert.Equal(t, tgbotapi.ModeMarkdown, sender.sent[0].ParseMode)
	})

	t.Run("channel username", func(t *testing.T) {
		sender := &recordingSender{}
		tg := NewTelegram(sender, "@usdt_balances")

		require.NoError(t, tg.Notify(context.Background(), "hi"))
		require.Len(t, sender.sent, 1)
		assert.Equal(t, "@usdt_balances", sender.sent[0].ChannelUsername)
	})

	t.Run("send failure is returned", func(t *testing.T) {
		sender := &recordingSender{err: errors.New("bad gateway")}
		tg := NewTelegram(sender, "42")

		err := tg.Notify(context.Background(), "hi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad gateway")
	})

	t.Run("cancelled context", func(t *testing.T) {
		sender := &recordingSender{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, NewTelegram(sender, "42").Notify(ctx, "hi"), context.Canceled)
		assert.Empty(t, sender.sent)
	})
}

const (
	testAppToken = "azGDORePK8gMaC0QOYAMyEEuzJnyUi"
	userKeyOne   = "uQiRzpo4DXghDmr9QzzfQu27cmVRsG"
	userKeyTwo   = "gznej3rKEVAvPUxu9vvNnqpmZpokzF"
	rejectedKey  = "rejectedrejectedrejected123456"
)

type pushoverServer struct {
	mu       sync.Mutex
	received []url.Values
	paths    []string
	reject   map[string]bool
}

func (s *pushoverServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	form := url.Values{}
	for _, field := range []string{"token", "user", "title", "message", "priority"} {
		form.Set(field, r.FormValue(field))
	}

	s.mu.Lock()
	s.received = append(s.received, form)
	s.paths = append(s.paths, r.URL.Path)
	reject := s.reject[form.Get("user")]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Limit-App-Limit", "10000")
	w.Header().Set("X-Limit-App-Remaining", "9999")
	w.Header().Set("X-Limit-App-Reset", "1893456000")
	if reject {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"user":"invalid","errors":["user identifier is invalid"],"status":0,"request":"r-2"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":1,"request":"r-1"}`))
}

func (s *pushoverServer) Received() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.received)
}

// servePushover points the pushover package at handler for the duration of the test
func servePushover(t *testing.T, handler http.Handler) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	previous := pushover.APIEndpoint
	pushover.APIEndpoint = ts.URL
	t.Cleanup(func() { pushover.APIEndpoint = previous })
}

func TestPushoverSend(t *testing.T) {
	srv := &pushoverServer{reject: map[string]bool{rejectedKey: true}}
	servePushover(t, srv)

	p := NewPushover(testAppToken)

	require.NoError(t, p.Send(context.Background(), userKeyOne, "⚠️ Low USDT Balance Alert", "Total balance is 1.00 USDT", PriorityHigh))

	received := srv.Received()
	require.Len(t, received, 1)
	form := received[0]
	assert.Equal(t, testAppToken, form.Get("token"))
	assert.Equal(t, userKeyOne, form.Get("user"))
	assert.Equal(t, "⚠️ Low USDT Balance Alert", form.Get("title"))
	assert.Equal(t, "Total balance is 1.00 USDT", form.Get("message"))
	assert.Equal(t, "1", form.Get("priority"))
	srv.mu.Lock()
	assert.Equal(t, []string{"/messages.json"}, srv.paths)
	srv.mu.Unlock()

	err := p.Send(context.Background(), rejectedKey, "t", "m", PriorityHigh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user identifier is invalid")
}

func TestPushoverBroadcast(t *testing.T) {
	srv := &pushoverServer{reject: map[string]bool{rejectedKey: true}}
	servePushover(t, srv)

	p := NewPushover(testAppToken)

	delivered := p.Broadcast(context.Background(), []string{userKeyOne, rejectedKey, userKeyTwo}, "t", "m", PriorityHigh)
	assert.Equal(t, 2, delivered)
	assert.Len(t, srv.Received(), 3, "a failing user does not stop delivery to the others")
}

func TestPushoverMalformedKeyNeverSent(t *testing.T) {
	srv := &pushoverServer{}
	servePushover(t, srv)

	p := NewPushover(testAppToken)

	delivered := p.Broadcast(context.Background(), []string{"not-a-user-key", userKeyOne}, "t", "m", PriorityHigh)
	assert.Equal(t, 1, delivered)
	require.Len(t, srv.Received(), 1)
	assert.Equal(t, userKeyOne, srv.Received()[0].Get("user"))
}

func TestPushoverServerError(t *testing.T) {
	servePushover(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))

	err := NewPushover(testAppToken).Send(context.Background(), userKeyOne, "t", "m", PriorityHigh)
	require.Error(t, err)
}

func TestPushoverCancelledContext(t *testing.T) {
	srv := &pushoverServer{}
	servePushover(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delivered := NewPushover(testAppToken).Broadcast(ctx, []string{userKeyOne, userKeyTwo}, "t", "m", PriorityHigh)
	assert.Zero(t, delivered)
	assert.Empty(t, srv.Received())
}

func TestPushoverSlowDeliveryTimesOut(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	p := NewPushover(testAppToken)
	p.timeout = 100 * time.Millisecond
	p.send = func(*pushover.Message, *pushover.Recipient) (*pushover.Response, error) {
		<-release
		return &pushover.Response{Status: 1}, nil
	}

	start := time.Now()
	err := p.Send(context.Background(), userKeyOne, "t", "m", PriorityHigh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not confirmed")
	assert.Less(t, time.Since(start), time.Second)
}
