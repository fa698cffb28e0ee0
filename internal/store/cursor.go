// ABOUTME: Opaque pagination cursor for the offer listing
// ABOUTME: Encodes the last seen (created_at, id) of the newest-first order

package store

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/voyengo/voyengo/internal/apperr"
)

// offerCursor is the position after which the next page starts.
type offerCursor struct {
	CreatedAt time.Time
	ID        string
}

// encodeCursor creates an opaque cursor string from a timestamp and offer ID.
func encodeCursor(ts time.Time, id string) string {
	data := fmt.Sprintf("%s|%s", formatTime(ts), id)
	return base64.RawURLEncoding.EncodeToString([]byte(data))
}

// decodeCursor parses an opaque cursor string.
// Returns apperr.ErrInvalidCursor if the cursor is malformed.
func decodeCursor(cursor string) (*offerCursor, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: bad encoding", apperr.ErrInvalidCursor)
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("%w: expected timestamp|offer_id", apperr.ErrInvalidCursor)
	}

	ts, err := parseTime(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp", apperr.ErrInvalidCursor)
	}

	return &offerCursor{CreatedAt: ts, ID: parts[1]}, nil
}

// pageFromRows builds the page result. A full page is reported as HasMore
// without probing for an extra row; a short page is final.
func pageFromRows(offers []Offer, limit int) *OfferPage {
	page := &OfferPage{Offers: offers}
	if len(offers) == limit && limit > 0 {
		last := offers[len(offers)-1]
		page.HasMore = true
		page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return page
}
