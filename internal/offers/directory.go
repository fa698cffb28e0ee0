// ABOUTME: Offer Directory executing composable filters with cursor pagination
// ABOUTME: Normalizes city filters and bounds the page size before querying the store

package offers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voyengo/voyengo/internal/apperr"
	"github.com/voyengo/voyengo/internal/store"
)

// DefaultMaxPageSize is used when the directory is built without a bound.
const DefaultMaxPageSize = 100

// Filter narrows the listing. Zero fields do not constrain; set fields are ANDed.
type Filter struct {
	FromCity      string // matched case-insensitively, surrounding spaces ignored
	ToCity        string
	MinTravelDate *store.Date // inclusive
	Status        store.OfferStatus
}

// Page is one page of results.
type Page struct {
	Offers     []store.Offer
	NextCursor string
	HasMore    bool // the page came back full; a short page is the last one
}

// Directory lists offers.
type Directory struct {
	store       store.OfferStore
	maxPageSize int
	logger      *slog.Logger
}

// NewDirectory creates a Directory. maxPageSize <= 0 means DefaultMaxPageSize.
func NewDirectory(s store.OfferStore, maxPageSize int, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	return &Directory{
		store:       s,
		maxPageSize: maxPageSize,
		logger:      logger.With("component", "offers.directory"),
	}
}

// MaxPageSize is the largest accepted page size.
func (d *Directory) MaxPageSize() int {
	return d.maxPageSize
}

// ListOffers returns the page after cursor, or the first page when cursor is
// empty. The page holds at most pageSize offers.
func (d *Directory) ListOffers(ctx context.Context, f Filter, cursor string, pageSize int) (*Page, error) {
	if pageSize < 1 || pageSize > d.maxPageSize {
		return nil, fmt.Errorf("%w: must be between 1 and %d", apperr.ErrInvalidPageSize, d.maxPageSize)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Invalid("unknown status %q", f.Status)
	}

	res, err := d.store.ListOffers(ctx, store.OfferQuery{
		FromCity:      store.NormalizeCity(f.FromCity),
		ToCity:        store.NormalizeCity(f.ToCity),
		MinTravelDate: f.MinTravelDate,
		Status:        f.Status,
		Cursor:        cursor,
		Limit:         pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("listing offers: %w", err)
	}

	d.logger.Debug("listed offers", "count", len(res.Offers), "has_more", res.HasMore)
	return &Page{
		Offers:     res.Offers,
		NextCursor: res.NextCursor,
		HasMore:    res.HasMore,
	}, nil
}
