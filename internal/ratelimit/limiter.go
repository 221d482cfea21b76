// Package ratelimit provides sliding-window admission control backed by the
// append-only rate-limit store.
package ratelimit

import (
	"context"
	"time"

	"github.com/sitechat/relay/internal/domain"
	"github.com/sitechat/relay/internal/logging"
	"github.com/sitechat/relay/internal/store"
)

const recordTimeout = 5 * time.Second

// Limiter admits requests per (client, caller IP) by counting store rows
// inside a trailing window.
type Limiter struct {
	store  store.RateLimitStore
	limit  int
	window time.Duration
	log    *logging.Logger
	now    func() time.Time
}

// New creates a limiter. limit is the number of admitted requests per window;
// the request that would make the count reach limit is the first rejected one.
func New(s store.RateLimitStore, limit int, window time.Duration, log *logging.Logger) *Limiter {
	return &Limiter{
		store:  s,
		limit:  limit,
		window: window,
		log:    log.Sub("ratelimit"),
		now:    time.Now,
	}
}

// Admit checks the window and, when the request is admitted, records it
// without blocking the caller. The record is written even if the rest of the
// pipeline later fails: an admitted request counts regardless of outcome.
// Store errors fail open — a broken counter should not take chat down.
func (l *Limiter) Admit(ctx context.Context, clientID, ip string) error {
	since := l.now().Add(-l.window)
	count, err := l.store.CountSince(ctx, clientID, ip, since)
	if err != nil {
		l.log.Error().Err(err).Str("clientId", clientID).Msg("rate limit count failed, admitting")
	} else if count >= l.limit {
		return &domain.RelayError{
			Kind:    domain.KindRateLimited,
			Message: "Too many requests. Please wait a moment.",
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := l.store.Insert(ctx, clientID, ip); err != nil {
			l.log.Error().Err(err).Str("clientId", clientID).Msg("failed to record admission")
		}
	}()

	return nil
}
