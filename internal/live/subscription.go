// ABOUTME: Cancelable push stream that re-polls a query whenever its topic is signalled
// ABOUTME: Backs the message and inbox subscriptions with explicit Close and terminal Err

// Package live turns change signals into a stream of query results.
//
// A Subscription runs one goroutine that polls once at start, then again on
// every signal (and optionally on a resync ticker), delivering each non-empty
// result on an unbuffered channel. Because every delivery is a fresh read,
// coalesced or dropped signals cost latency, never data.
package live

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PollFunc reads the current result. ok=false means there is nothing new to
// deliver this round.
type PollFunc[T any] func(ctx context.Context) (value T, ok bool, err error)

// Options tune a Subscription.
type Options struct {
	// ResyncInterval forces a poll even without a signal. Zero disables it.
	ResyncInterval time.Duration
	Logger         *slog.Logger
}

// Subscription is a live stream of values of T.
type Subscription[T any] struct {
	updates chan T
	cancel  context.CancelFunc
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// Watch starts a subscription. signals must already be registered with the
// notifier before the call so no change between registration and the first
// poll is missed; stop releases that registration and is called exactly once
// when the subscription ends.
func Watch[T any](ctx context.Context, opts Options, signals <-chan struct{}, stop func(), poll PollFunc[T]) *Subscription[T] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		updates: make(chan T),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx, opts.ResyncInterval, logger, signals, stop, poll)
	return s
}

// Updates delivers results in order. It is closed when the subscription ends.
func (s *Subscription[T]) Updates() <-chan T {
	return s.updates
}

// Err returns the poll error that ended the subscription, or nil if it ended
// through Close or context cancellation. Only meaningful once Updates is closed.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the subscription and waits for its goroutine to exit. No value
// is delivered after Close returns. Safe to call more than once.
func (s *Subscription[T]) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// Done is closed once the subscription has fully stopped.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription[T]) run(ctx context.Context, resync time.Duration, logger *slog.Logger, signals <-chan struct{}, stop func(), poll PollFunc[T]) {
	defer close(s.done)
	defer close(s.updates)
	defer stop()

	var tick <-chan time.Time
	if resync > 0 {
		ticker := time.NewTicker(resync)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		value, ok, err := poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("live subscription poll failed", "error", err)
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}

		if ok {
			select {
			case s.updates <- value:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case _, open := <-signals:
			if !open {
				return
			}
		case <-tick:
		}
	}
}
