// Package store defines the collaborator interfaces the relay pipeline
// consumes and provides memory, SQLite, and Supabase backends for them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sitechat/relay/internal/domain"
)

// ErrTenantNotFound is returned by TenantStore.Lookup for unknown clients.
var ErrTenantNotFound = errors.New("tenant not found")

// TenantStore resolves client IDs to tenant configuration. Lookup returns
// the tenant even when inactive; the authorization gate decides what that
// means for the caller.
type TenantStore interface {
	Lookup(ctx context.Context, clientID string) (*domain.TenantConfig, error)
}

// RateLimitStore is the append-only admission log. Counts may be eventually
// consistent; rows are never mutated.
type RateLimitStore interface {
	CountSince(ctx context.Context, clientID, ip string, since time.Time) (int, error)
	Insert(ctx context.Context, clientID, ip string) error
}

// ConversationLogStore persists conversation turns.
type ConversationLogStore interface {
	InsertTurns(ctx context.Context, rows []domain.ConversationRow) error
}

// MetricsStore persists one call record per completed request.
type MetricsStore interface {
	Insert(ctx context.Context, rec domain.MetricsRecord) error
}

// Stores bundles the four collaborator interfaces a running server needs.
type Stores struct {
	Tenants    TenantStore
	RateLimits RateLimitStore
	Logs       ConversationLogStore
	Metrics    MetricsStore
}
