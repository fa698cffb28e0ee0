// ABOUTME: Owner-side offer operations: create, fetch, edit and list own offers
// ABOUTME: Validates route, date, weight, price, currency and description bounds

package offers

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/voyengo/voyengo/internal/apperr"
	"github.com/voyengo/voyengo/internal/store"
)

// Offer bounds
const (
	MinCapacityKg     = 0.5
	MaxCapacityKg     = 100
	MaxDescriptionLen = 500
)

// Draft is the editable part of an offer.
type Draft struct {
	FromCity    string
	FromCountry string
	ToCity      string
	ToCountry   string
	TravelDate  string // YYYY-MM-DD
	CapacityKg  float64
	PricePerKg  float64
	Currency    string
	Description string
	Status      store.OfferStatus // ignored on create; empty keeps the current status on update
}

// Service manages offers on behalf of their owners.
type Service struct {
	store  store.OfferStore
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(s store.OfferStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  s,
		logger: logger.With("component", "offers"),
	}
}

// Create validates the draft and stores a new active offer owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID string, d Draft) (*store.Offer, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthenticated
	}

	offer := &store.Offer{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Status:  store.OfferStatusActive,
	}
	if err := apply(offer, d); err != nil {
		return nil, err
	}

	if err := s.store.CreateOffer(ctx, offer); err != nil {
		return nil, fmt.Errorf("creating offer: %w", err)
	}

	s.logger.Info("offer created", "offer_id", offer.ID, "owner_id", ownerID)
	return offer, nil
}

// Get returns an offer by id.
func (s *Service) Get(ctx context.Context, id string) (*store.Offer, error) {
	offer, err := s.store.GetOffer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting offer: %w", err)
	}
	return offer, nil
}

// Update replaces the editable fields of an offer. Only the owner may update.
func (s *Service) Update(ctx context.Context, actorID, id string, d Draft) (*store.Offer, error) {
	offer, err := s.store.GetOffer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting offer: %w", err)
	}
	if offer.OwnerID != actorID {
		return nil, apperr.ErrNotOwner
	}

	if d.Status != "" {
		if !d.Status.Valid() {
			return nil, apperr.Invalid("unknown status %q", d.Status)
		}
		offer.Status = d.Status
	}
	if err := apply(offer, d); err != nil {
		return nil, err
	}

	if err := s.store.UpdateOffer(ctx, offer); err != nil {
		return nil, fmt.Errorf("updating offer: %w", err)
	}

	s.logger.Info("offer updated", "offer_id", id, "status", offer.Status)
	return offer, nil
}

// ListByOwner returns ownerID's offers, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string, limit int) ([]store.Offer, error) {
	offers, err := s.store.ListOffersByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing own offers: %w", err)
	}
	return offers, nil
}

// apply validates d and copies it onto offer.
func apply(offer *store.Offer, d Draft) error {
	route := store.Route{
		From: store.Place{City: strings.TrimSpace(d.FromCity), Country: strings.TrimSpace(d.FromCountry)},
		To:   store.Place{City: strings.TrimSpace(d.ToCity), Country: strings.TrimSpace(d.ToCountry)},
	}
	switch {
	case route.From.City == "":
		return apperr.Invalid("origin city is required")
	case route.From.Country == "":
		return apperr.Invalid("origin country is required")
	case route.To.City == "":
		return apperr.Invalid("destination city is required")
	case route.To.Country == "":
		return apperr.Invalid("destination country is required")
	}

	date, err := store.ParseDate(strings.TrimSpace(d.TravelDate))
	if err != nil {
		return apperr.Invalid("travel date: %v", err)
	}

	// negated so NaN fails too
	if !(d.CapacityKg >= MinCapacityKg && d.CapacityKg <= MaxCapacityKg) {
		return apperr.Invalid("capacity must be between %g and %g kg", float64(MinCapacityKg), float64(MaxCapacityKg))
	}
	if !(d.PricePerKg >= 0) || math.IsInf(d.PricePerKg, 1) {
		return apperr.Invalid("price per kg must be a finite non-negative number")
	}

	currency := strings.ToUpper(strings.TrimSpace(d.Currency))
	if !validCurrency(currency) {
		return apperr.Invalid("currency must be a three-letter code")
	}

	description := strings.TrimSpace(d.Description)
	if utf8.RuneCountInString(description) > MaxDescriptionLen {
		return apperr.Invalid("description must be at most %d characters", MaxDescriptionLen)
	}

	offer.Route = route
	offer.TravelDate = date
	offer.CapacityKg = d.CapacityKg
	offer.PricePerKg = d.PricePerKg
	offer.Currency = currency
	offer.Description = description
	return nil
}

func validCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
