// ABOUTME: SQLite offer persistence and the filtered newest-first listing
// ABOUTME: Builds listing queries dynamically from the filters that are set

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/voyengo/voyengo/internal/apperr"
)

const offerColumns = `
	id, owner_id, from_city, from_country, to_city, to_country, travel_date,
	capacity_kg, price_per_kg, currency, description, status, created_at, updated_at
`

// CreateOffer inserts a new offer. CreatedAt is assigned by the store.
func (s *SQLiteStore) CreateOffer(ctx context.Context, offer *Offer) error {
	offer.CreatedAt = s.clock.Now()
	offer.UpdatedAt = nil

	query := `
		INSERT INTO offers (
			id, owner_id, from_city, from_city_norm, from_country, to_city, to_city_norm, to_country,
			travel_date, capacity_kg, price_per_kg, currency, description, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		offer.ID,
		offer.OwnerID,
		offer.Route.From.City,
		NormalizeCity(offer.Route.From.City),
		offer.Route.From.Country,
		offer.Route.To.City,
		NormalizeCity(offer.Route.To.City),
		offer.Route.To.Country,
		offer.TravelDate.String(),
		offer.CapacityKg,
		offer.PricePerKg,
		offer.Currency,
		nullString(offer.Description),
		string(offer.Status),
		formatTime(offer.CreatedAt),
	)
	if err != nil {
		return unavailable("inserting offer", err)
	}

	s.logger.Debug("created offer", "id", offer.ID, "owner_id", offer.OwnerID)
	return nil
}

// GetOffer retrieves an offer by ID.
// Returns ErrNotFound if the offer doesn't exist.
func (s *SQLiteStore) GetOffer(ctx context.Context, id string) (*Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = ?`

	offer, err := scanOffer(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("querying offer", err)
	}
	return offer, nil
}

// UpdateOffer overwrites the mutable fields of an offer and stamps UpdatedAt.
// Returns ErrNotFound if the offer doesn't exist.
func (s *SQLiteStore) UpdateOffer(ctx context.Context, offer *Offer) error {
	now := s.clock.Now()

	query := `
		UPDATE offers
		SET from_city = ?, from_city_norm = ?, from_country = ?,
		    to_city = ?, to_city_norm = ?, to_country = ?,
		    travel_date = ?, capacity_kg = ?, price_per_kg = ?, currency = ?,
		    description = ?, status = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		offer.Route.From.City,
		NormalizeCity(offer.Route.From.City),
		offer.Route.From.Country,
		offer.Route.To.City,
		NormalizeCity(offer.Route.To.City),
		offer.Route.To.Country,
		offer.TravelDate.String(),
		offer.CapacityKg,
		offer.PricePerKg,
		offer.Currency,
		nullString(offer.Description),
		string(offer.Status),
		formatTime(now),
		offer.ID,
	)
	if err != nil {
		return unavailable("updating offer", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return unavailable("getting rows affected", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	offer.UpdatedAt = &now
	s.logger.Debug("updated offer", "id", offer.ID)
	return nil
}

// ListOffers returns one page of offers, newest first, matching every filter
// that is set. HasMore is reported whenever the page comes back full.
func (s *SQLiteStore) ListOffers(ctx context.Context, q OfferQuery) (*OfferPage, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("listing offers: %w", apperr.ErrInvalidPageSize)
	}

	var cursor *offerCursor
	if q.Cursor != "" {
		var err error
		cursor, err = decodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
	}

	var args []any
	query := `SELECT ` + offerColumns + ` FROM offers WHERE 1 = 1`

	if q.FromCity != "" {
		query += ` AND from_city_norm = ?`
		args = append(args, q.FromCity)
	}
	if q.ToCity != "" {
		query += ` AND to_city_norm = ?`
		args = append(args, q.ToCity)
	}
	if q.MinTravelDate != nil {
		query += ` AND travel_date >= ?`
		args = append(args, q.MinTravelDate.String())
	}
	if q.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(q.Status))
	}

	// Keyset pagination over (created_at DESC, id DESC)
	if cursor != nil {
		ts := formatTime(cursor.CreatedAt)
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, ts, ts, cursor.ID)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, q.Limit)

	offers, err := s.queryOffers(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pageFromRows(offers, q.Limit), nil
}

// ListOffersByOwner returns the owner's offers, newest first.
func (s *SQLiteStore) ListOffersByOwner(ctx context.Context, ownerID string, limit int) ([]Offer, error) {
	limit = clampLimit(limit, 100, 500)

	query := `SELECT ` + offerColumns + `
		FROM offers
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	return s.queryOffers(ctx, query, ownerID, limit)
}

func (s *SQLiteStore) queryOffers(ctx context.Context, query string, args ...any) ([]Offer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("querying offers", err)
	}
	defer rows.Close()

	var offers []Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning offer row: %w", err)
		}
		offers = append(offers, *offer)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating offer rows", err)
	}

	return offers, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffer(row rowScanner) (*Offer, error) {
	var o Offer
	var travelDate, status, createdAt string
	var description, updatedAt sql.NullString

	if err := row.Scan(
		&o.ID,
		&o.OwnerID,
		&o.Route.From.City,
		&o.Route.From.Country,
		&o.Route.To.City,
		&o.Route.To.Country,
		&travelDate,
		&o.CapacityKg,
		&o.PricePerKg,
		&o.Currency,
		&description,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	o.TravelDate, err = ParseDate(travelDate)
	if err != nil {
		return nil, fmt.Errorf("parsing travel_date: %w", err)
	}
	o.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if updatedAt.Valid {
		t, err := parseTime(updatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		o.UpdatedAt = &t
	}
	o.Description = description.String
	o.Status = OfferStatus(status)

	return &o, nil
}
