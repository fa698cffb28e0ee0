// ABOUTME: Server-side clock and timestamp encoding shared by the SQL backends
// ABOUTME: Timestamps never move backwards and are stored as fixed-width UTC text

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/voyengo/voyengo/internal/apperr"
)

// timeLayout is fixed-width so lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// serverClock hands out store-assigned timestamps. Successive calls never
// return a value earlier than a previous one, even if the wall clock steps back.
type serverClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newServerClock() *serverClock {
	return &serverClock{now: time.Now}
}

// Now returns the next server timestamp at microsecond precision.
func (c *serverClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// unavailable classifies a backend failure. Context cancellation is passed
// through unchanged so callers see the caller's own deadline.
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperr.Unavailable(op, err)
}
