// ABOUTME: HTTP handlers for the offer directory and owner-side offer management
// ABOUTME: Listing and single-offer reads are public; writes act as the authenticated owner

package gateway

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/voyengo/voyengo/internal/apperr"
	"github.com/voyengo/voyengo/internal/auth"
	"github.com/voyengo/voyengo/internal/offers"
	"github.com/voyengo/voyengo/internal/store"
)

// defaultPageSize applies when a listing request has no page_size.
const defaultPageSize = 20

type offerRequest struct {
	From        placeJSON `json:"from"`
	To          placeJSON `json:"to"`
	TravelDate  string    `json:"travel_date"`
	CapacityKg  float64   `json:"capacity_kg"`
	PricePerKg  float64   `json:"price_per_kg"`
	Currency    string    `json:"currency"`
	Description string    `json:"description"`
	Status      string    `json:"status,omitempty"`
}

func (req offerRequest) draft() offers.Draft {
	return offers.Draft{
		FromCity:    req.From.City,
		FromCountry: req.From.Country,
		ToCity:      req.To.City,
		ToCountry:   req.To.Country,
		TravelDate:  req.TravelDate,
		CapacityKg:  req.CapacityKg,
		PricePerKg:  req.PricePerKg,
		Currency:    req.Currency,
		Description: req.Description,
		Status:      store.OfferStatus(req.Status),
	}
}

// parseOfferFilter reads the listing query parameters.
func parseOfferFilter(r *http.Request, maxPageSize int) (offers.Filter, string, int, error) {
	q := r.URL.Query()
	f := offers.Filter{
		FromCity: q.Get("from_city"),
		ToCity:   q.Get("to_city"),
		Status:   store.OfferStatus(q.Get("status")),
	}

	if v := q.Get("min_travel_date"); v != "" {
		d, err := store.ParseDate(v)
		if err != nil {
			return f, "", 0, apperr.Invalid("min_travel_date: %v", err)
		}
		f.MinTravelDate = &d
	}

	pageSize := min(defaultPageSize, maxPageSize)
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, "", 0, apperr.ErrInvalidPageSize
		}
		pageSize = n
	}

	return f, q.Get("cursor"), pageSize, nil
}

// handleListOffers serves one page of the offer directory.
func (g *Gateway) handleListOffers(w http.ResponseWriter, r *http.Request) {
	f, cursor, pageSize, err := parseOfferFilter(r, g.directory.MaxPageSize())
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	page, err := g.directory.ListOffers(r.Context(), f, cursor, pageSize)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, offerPageJSON{
		Offers:     toOfferList(page.Offers),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

// handleGetOffer returns one offer with its description rendered to HTML.
func (g *Gateway) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := g.offers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	out := toOfferJSON(*offer)
	if offer.Description != "" {
		html, err := offers.RenderDescription(offer.Description)
		if err != nil {
			g.logger.Warn("rendering offer description", "offer_id", offer.ID, "error", err)
		} else {
			out.DescriptionHTML = html
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateOffer publishes a new offer owned by the caller.
func (g *Gateway) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req offerRequest
	if err := decodeJSON(r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	offer, err := g.offers.Create(r.Context(), id.UserID, req.draft())
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOfferJSON(*offer))
}

// handleUpdateOffer edits an offer the caller owns.
func (g *Gateway) handleUpdateOffer(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req offerRequest
	if err := decodeJSON(r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	offer, err := g.offers.Update(r.Context(), id.UserID, chi.URLParam(r, "id"), req.draft())
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferJSON(*offer))
}

// handleMyOffers lists the caller's own offers, newest first.
func (g *Gateway) handleMyOffers(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			g.writeError(w, r, apperr.Invalid("limit must be a positive integer"))
			return
		}
		limit = n
	}

	list, err := g.offers.ListByOwner(r.Context(), id.UserID, limit)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]offerJSON{"offers": toOfferList(list)})
}
