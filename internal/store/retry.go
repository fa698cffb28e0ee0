// ABOUTME: Store decorator that retries idempotent operations on transient failures
// ABOUTME: Uses exponential backoff with jitter; appends and inserts are never retried

package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/voyengo/voyengo/internal/apperr"
)

// RetryConfig bounds the retry loop.
type RetryConfig struct {
	Attempts  int           // total attempts including the first; <= 1 disables retries
	BaseDelay time.Duration // first backoff interval, doubled on each retry
}

// RetryStore wraps a Store and retries reads and merge-writes that fail with
// an unavailable error. AppendMessage and CreateOffer pass straight through
// because repeating them could create duplicates.
type RetryStore struct {
	Store
	cfg    RetryConfig
	logger *slog.Logger
}

// WithRetry decorates s. A config with Attempts <= 1 returns s unchanged.
func WithRetry(s Store, cfg RetryConfig) Store {
	if cfg.Attempts <= 1 {
		return s
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 50 * time.Millisecond
	}
	return &RetryStore{
		Store:  s,
		cfg:    cfg,
		logger: slog.Default().With("component", "store.retry"),
	}
}

func (r *RetryStore) backoff() retry.Backoff {
	b := retry.NewExponential(r.cfg.BaseDelay)
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(uint64(r.cfg.Attempts-1), b)
}

// do runs fn until it succeeds, fails permanently or the attempts run out.
func (r *RetryStore) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !errors.Is(err, apperr.ErrUnavailable) {
			return err
		}
		r.logger.Warn("store operation failed, retrying", "op", op, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
}

func (r *RetryStore) GetOffer(ctx context.Context, id string) (*Offer, error) {
	var out *Offer
	err := r.do(ctx, "GetOffer", func(ctx context.Context) error {
		var err error
		out, err = r.Store.GetOffer(ctx, id)
		return err
	})
	return out, err
}

func (r *RetryStore) UpdateOffer(ctx context.Context, offer *Offer) error {
	return r.do(ctx, "UpdateOffer", func(ctx context.Context) error {
		return r.Store.UpdateOffer(ctx, offer)
	})
}

func (r *RetryStore) ListOffers(ctx context.Context, q OfferQuery) (*OfferPage, error) {
	var out *OfferPage
	err := r.do(ctx, "ListOffers", func(ctx context.Context) error {
		var err error
		out, err = r.Store.ListOffers(ctx, q)
		return err
	})
	return out, err
}

func (r *RetryStore) ListOffersByOwner(ctx context.Context, ownerID string, limit int) ([]Offer, error) {
	var out []Offer
	err := r.do(ctx, "ListOffersByOwner", func(ctx context.Context) error {
		var err error
		out, err = r.Store.ListOffersByOwner(ctx, ownerID, limit)
		return err
	})
	return out, err
}

func (r *RetryStore) UpsertConversation(ctx context.Context, u *ConversationUpsert) error {
	return r.do(ctx, "UpsertConversation", func(ctx context.Context) error {
		return r.Store.UpsertConversation(ctx, u)
	})
}

func (r *RetryStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var out *Conversation
	err := r.do(ctx, "GetConversation", func(ctx context.Context) error {
		var err error
		out, err = r.Store.GetConversation(ctx, id)
		return err
	})
	return out, err
}

func (r *RetryStore) UpdateConversationSummary(ctx context.Context, id string, last LastMessage) error {
	return r.do(ctx, "UpdateConversationSummary", func(ctx context.Context) error {
		return r.Store.UpdateConversationSummary(ctx, id, last)
	})
}

func (r *RetryStore) ListConversationsForUser(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	var out []Conversation
	err := r.do(ctx, "ListConversationsForUser", func(ctx context.Context) error {
		var err error
		out, err = r.Store.ListConversationsForUser(ctx, userID, limit)
		return err
	})
	return out, err
}

func (r *RetryStore) ListMessages(ctx context.Context, q MessageQuery) ([]Message, error) {
	var out []Message
	err := r.do(ctx, "ListMessages", func(ctx context.Context) error {
		var err error
		out, err = r.Store.ListMessages(ctx, q)
		return err
	})
	return out, err
}

func (r *RetryStore) Stats(ctx context.Context) (*Stats, error) {
	var out *Stats
	err := r.do(ctx, "Stats", func(ctx context.Context) error {
		var err error
		out, err = r.Store.Stats(ctx)
		return err
	})
	return out, err
}
