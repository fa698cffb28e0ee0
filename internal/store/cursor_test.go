// ABOUTME: Tests for offer listing cursors and the server clock
// ABOUTME: Covers cursor round trips, malformed cursors and clock monotonicity

package store

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyengo/voyengo/internal/apperr"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2026, 5, 6, 7, 8, 9, 123456000, time.UTC)

	c, err := decodeCursor(encodeCursor(ts, "offer|with|pipes"))
	require.NoError(t, err)
	assert.True(t, ts.Equal(c.CreatedAt))
	assert.Equal(t, "offer|with|pipes", c.ID)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	tests := map[string]string{
		"not base64":   "!!!",
		"no separator": base64.RawURLEncoding.EncodeToString([]byte("2026-01-01T00:00:00.000000Z")),
		"empty id":     base64.RawURLEncoding.EncodeToString([]byte("2026-01-01T00:00:00.000000Z|")),
		"bad time":     base64.RawURLEncoding.EncodeToString([]byte("yesterday|offer-1")),
	}

	for name, cursor := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := decodeCursor(cursor)
			assert.ErrorIs(t, err, apperr.ErrInvalidCursor)
		})
	}
}

func TestPageFromRows(t *testing.T) {
	offers := []Offer{{ID: "b", CreatedAt: time.Unix(20, 0)}, {ID: "a", CreatedAt: time.Unix(10, 0)}}

	full := pageFromRows(offers, 2)
	assert.True(t, full.HasMore)
	c, err := decodeCursor(full.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, "a", c.ID)

	short := pageFromRows(offers, 3)
	assert.False(t, short.HasMore)
	assert.Empty(t, short.NextCursor)
}

func TestServerClock_NeverMovesBackwards(t *testing.T) {
	times := []time.Time{
		time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC),
		time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC),
		time.Date(2026, 1, 1, 0, 0, 20, 999, time.UTC),
	}
	i := 0
	c := &serverClock{now: func() time.Time { ts := times[i]; i++; return ts }}

	first := c.Now()
	second := c.Now()
	third := c.Now()

	assert.Equal(t, first, second, "a step back repeats the last timestamp")
	assert.True(t, third.After(second))
	assert.Equal(t, 0, third.Nanosecond()%1000, "truncated to microseconds")
}

func TestTimeLayoutSortsLexically(t *testing.T) {
	early := formatTime(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	late := formatTime(time.Date(2026, 1, 1, 10, 0, 0, 5000, time.UTC))
	assert.Less(t, early, late)
	assert.Len(t, early, len(late))
}
