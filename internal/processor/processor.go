// Package processor runs one end-to-end push cycle: fetch the feed,
// drop what was pushed recently, filter and rank, persist, deliver the
// digest, and mark delivery only when every channel succeeded.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pauljones0/zdm-deals-bot/internal/models"
	"github.com/pauljones0/zdm-deals-bot/internal/notifier"
	"github.com/pauljones0/zdm-deals-bot/internal/pipeline"
)

// pushedWindowDays is how far back already-pushed items suppress
// re-notification.
const pushedWindowDays = 30

type Processor interface {
	Run(ctx context.Context) error
}

type DealProcessor struct {
	store      DealStore
	fetcher    DealFetcher
	session    SessionStore
	dispatcher DigestDispatcher
	pipeline   *pipeline.Pipeline

	now func() time.Time
}

func New(store DealStore, fetcher DealFetcher, session SessionStore, dispatcher DigestDispatcher, pl *pipeline.Pipeline) *DealProcessor {
	return &DealProcessor{
		store:      store,
		fetcher:    fetcher,
		session:    session,
		dispatcher: dispatcher,
		pipeline:   pl,
		now:        time.Now,
	}
}

// Run executes one push cycle. A feed that stays empty even after a
// session reset, or a batch that filters down to nothing, is a degraded
// success: nothing to push is not a failure and sends no notification.
// Storage and delivery errors are failures; items whose delivery failed
// stay unpushed so the next run picks them up again.
func (p *DealProcessor) Run(ctx context.Context) error {
	pushedIDs, err := p.store.GetRecentlyPushedIDs(ctx, pushedWindowDays)
	if err != nil {
		return fmt.Errorf("failed to load recently pushed items: %w", err)
	}
	slog.Info("Loaded recently pushed items", "count", len(pushedIDs), "window_days", pushedWindowDays)

	raw, err := p.fetchWithSessionReset(ctx)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		slog.Warn("Feed yielded no items even after a session reset, nothing to push")
		return nil
	}

	items := p.pipeline.Process(raw, pushedIDs)
	slog.Info("Pipeline produced push candidates", "raw", len(raw), "candidates", len(items))
	if len(items) == 0 {
		slog.Info("No items passed the filters, nothing to push")
		return nil
	}

	if err := p.store.UpsertBatch(ctx, items); err != nil {
		return fmt.Errorf("failed to persist push candidates: %w", err)
	}

	digest, err := notifier.RenderDigest(items)
	if err != nil {
		return err
	}
	subject := notifier.Subject(len(items), p.now())

	if err := p.dispatcher.DispatchAll(ctx, subject, digest); err != nil {
		return fmt.Errorf("digest delivery incomplete: %w", err)
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	if err := p.store.SetPushedStatus(ctx, ids, true); err != nil {
		return fmt.Errorf("failed to mark items pushed: %w", err)
	}

	slog.Info("Push cycle finished", "pushed", len(items))
	return nil
}

// fetchWithSessionReset fetches the feed, and on a completely empty
// result clears the session and tries once more. Empty fetches are
// usually stale or banned tokens, not an empty homepage.
func (p *DealProcessor) fetchWithSessionReset(ctx context.Context) ([]models.DealItem, error) {
	raw, err := p.fetcher.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("feed fetch failed: %w", err)
	}
	if len(raw) > 0 {
		return raw, nil
	}

	slog.Warn("Feed returned no items, clearing session and retrying once")
	p.session.Clear()

	raw, err = p.fetcher.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("feed refetch failed: %w", err)
	}
	return raw, nil
}
