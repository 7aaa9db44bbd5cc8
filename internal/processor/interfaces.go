package processor

import (
	"context"

	"github.com/pauljones0/zdm-deals-bot/internal/models"
)

// DealStore abstracts the storage layer for deal data.
type DealStore interface {
	GetRecentlyPushedIDs(ctx context.Context, windowDays int) (map[string]struct{}, error)
	UpsertBatch(ctx context.Context, items []models.DealItem) error
	SetPushedStatus(ctx context.Context, ids []string, pushed bool) error
}

// DealFetcher abstracts the feed client.
type DealFetcher interface {
	FetchAll(ctx context.Context) ([]models.DealItem, error)
}

// SessionStore abstracts the token cache; the processor only ever needs
// to throw the session away when a fetch comes back empty.
type SessionStore interface {
	Clear()
}

// DigestDispatcher abstracts the notification fan-out.
type DigestDispatcher interface {
	DispatchAll(ctx context.Context, subject, htmlBody string) error
}
