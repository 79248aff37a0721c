package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gregdel/pushover"
)

const (
	// PriorityHigh bypasses the recipient's quiet hours
	PriorityHigh = pushover.PriorityHigh

	pushoverTimeout = 10 * time.Second
)

// Pushover sends push notifications through the Pushover API
type Pushover struct {
	send    func(*pushover.Message, *pushover.Recipient) (*pushover.Response, error)
	timeout time.Duration
}

// NewPushover creates a client for the application identified by appToken
func NewPushover(appToken string) *Pushover {
	return &Pushover{
		send:    pushover.New(appToken).SendMessage,
		timeout: pushoverTimeout,
	}
}

// Send delivers one notification to userKey.
// SendMessage takes no context, so Send stops waiting once ctx is done or the
// timeout elapses; the abandoned request finishes in the background.
func (p *Pushover) Send(ctx context.Context, userKey, title, message string, priority int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := pushover.NewMessageWithTitle(message, title)
	msg.Priority = priority
	recipient := pushover.NewRecipient(userKey)

	done := make(chan error, 1)
	go func() {
		_, err := p.send(msg, recipient)
		done <- err
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send pushover message: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("pushover message not confirmed after %s", p.timeout)
	}
}

// Broadcast sends the notification to every user key and returns how many were delivered.
// Failures for one user are logged and do not stop delivery to the others.
func (p *Pushover) Broadcast(ctx context.Context, userKeys []string, title, message string, priority int) int {
	delivered := 0
	for _, key := range userKeys {
		if err := p.Send(ctx, key, title, message, priority); err != nil {
			slog.Error("Pushover alert failed", "user", ShortAddress(key), "error", err)
			continue
		}
		delivered++
		slog.Info("Pushover alert sent", "user", ShortAddress(key))
	}
	return delivered
}
