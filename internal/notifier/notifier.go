package notifier

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Notifier is one delivery channel for the rendered digest.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, subject, htmlBody string) error
}

// Dispatcher fans a digest out to every configured channel concurrently.
type Dispatcher struct {
	channels []Notifier
}

func NewDispatcher(channels ...Notifier) *Dispatcher {
	return &Dispatcher{channels: channels}
}

// Channels reports how many channels are configured.
func (d *Dispatcher) Channels() int { return len(d.channels) }

// DispatchAll delivers to all channels and waits for every one of them.
// A failing channel never prevents another from being attempted; the
// returned error is the first failure, and nil means every channel
// delivered.
func (d *Dispatcher) DispatchAll(ctx context.Context, subject, htmlBody string) error {
	var g errgroup.Group
	for _, ch := range d.channels {
		g.Go(func() error {
			if err := ch.Notify(ctx, subject, htmlBody); err != nil {
				slog.Error("Notification channel failed", "channel", ch.Name(), "error", err)
				return err
			}
			slog.Info("Notification channel delivered", "channel", ch.Name())
			return nil
		})
	}
	return g.Wait()
}
