// ABOUTME: Tests for the offer directory and owner-side offer endpoints
// ABOUTME: Covers filtering, cursor paging, validation, ownership and description rendering

package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyengo/voyengo/internal/apperr"
)

func lyonOffer(date string) offerRequest {
	return offerRequest{
		From:        placeJSON{City: "Paris", Country: "FR"},
		To:          placeJSON{City: "Lyon", Country: "FR"},
		TravelDate:  date,
		CapacityKg:  5,
		PricePerKg:  4.5,
		Currency:    "eur",
		Description: "Train on **Friday** morning",
	}
}

func (e *testEnv) createOffer(t *testing.T, token string, req offerRequest) offerJSON {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/offers", token, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[offerJSON](t, rec)
}

func TestCreateOffer(t *testing.T) {
	env := newTestGateway(t)
	alice := env.token(t, "alice", "Alice", false)

	offer := env.createOffer(t, alice, lyonOffer("2026-11-20"))

	assert.NotEmpty(t, offer.ID)
	assert.Equal(t, "alice", offer.OwnerID)
	assert.Equal(t, "EUR", offer.Currency)
	assert.Equal(t, "active", offer.Status)
	assert.Equal(t, "2026-11-20", offer.TravelDate.String())
	assert.Nil(t, offer.UpdatedAt)
}

func TestCreateOffer_Validation(t *testing.T) {
	env := newTestGateway(t)
	alice := env.token(t, "alice", "Alice", false)

	tooHeavy := lyonOffer("2026-11-20")
	tooHeavy.CapacityKg = 250

	badDate := lyonOffer("2026-02-30")

	noOrigin := lyonOffer("2026-11-20")
	noOrigin.From.City = " "

	for name, req := range map[string]offerRequest{
		"capacity":  tooHeavy,
		"date":      badDate,
		"no origin": noOrigin,
	} {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/offers", alice, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_argument", decodeBody[errorResponse](t, rec).Code)
		})
	}

	rec := env.do(t, http.MethodPost, "/api/offers", "", lyonOffer("2026-11-20"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetOffer(t *testing.T) {
	env := newTestGateway(t)
	alice := env.token(t, "alice", "Alice", false)
	created := env.createOffer(t, alice, lyonOffer("2026-11-20"))

	rec := env.do(t, http.MethodGet, "/api/offers/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeBody[offerJSON](t, rec)
	assert.Equal(t, created.ID, got.ID)
	assert.Contains(t, got.DescriptionHTML, "<strong>Friday</strong>")

	rec = env.do(t, http.MethodGet, "/api/offers/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateOffer(t *testing.T) {
	env := newTestGateway(t)
	alice := env.token(t, "alice", "Alice", false)
	bob := env.token(t, "bob", "Bob", false)
	created := env.createOffer(t, alice, lyonOffer("2026-11-20"))

	edit := lyonOffer("2026-11-21")
	edit.CapacityKg = 8

	t.Run("not owner", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/api/offers/"+created.ID, bob, edit)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "not_owner", decodeBody[errorResponse](t, rec).Code)
	})

	t.Run("owner", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/api/offers/"+created.ID, alice, edit)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		got := decodeBody[offerJSON](t, rec)
		assert.Equal(t, 8.0, got.CapacityKg)
		assert.Equal(t, "2026-11-21", got.TravelDate.String())
		assert.Equal(t, "active", got.Status)
		assert.NotNil(t, got.UpdatedAt)
	})

	t.Run("status change", func(t *testing.T) {
		edit.Status = "completed"
		rec := env.do(t, http.MethodPut, "/api/offers/"+created.ID, alice, edit)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "completed", decodeBody[offerJSON](t, rec).Status)
	})

	t.Run("unknown status", func(t *testing.T) {
		edit.Status = "sold"
		rec := env.do(t, http.MethodPut, "/api/offers/"+created.ID, alice, edit)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListOffers_Paging(t *testing.T) {
	env := newTestGateway(t)
	alice := env.token(t, "alice", "Alice", false)
	for i := 1; i <= 12; i++ {
		env.createOffer(t, alice, lyonOffer(fmt.Sprintf("2026-12-%02d", i)))
	}

	seen := make(map[string]bool)
	cursor := ""
	pages := 0
	for {
		path := "/api/offers?page_size=5"
		if cursor != "" {
			path += "&cursor=" + url.QueryEscape(cursor)
		}
		rec := env.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		page := decodeBody[offerPageJSON](t, rec)
		pages++
		for _, o := range page.Offers {
			assert.False(t, seen[o.ID], "offer %s returned twice", o.ID)
			seen[o.ID] = true
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
		require.NotEmpty(t, cursor)
	}

	assert.Equal(t, 3, pages)
	assert.Len(t, seen, 12)
}

func TestListOffers_Filters(t *testing.T) {
	env := newTestGateway(t)
	alice := env.token(t, "alice", "Alice", false)

	env.createOffer(t, alice, lyonOffer("2026-11-01"))
	later := env.createOffer(t, alice, lyonOffer("2026-12-01"))

	toMarseille := lyonOffer("2026-12-05")
	toMarseille.To = placeJSON{City: "Marseille", Country: "FR"}
	env.createOffer(t, alice, toMarseille)

	rec := env.do(t, http.MethodGet, "/api/offers?to_city=%20lyon%20&min_travel_date=2026-11-15", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	page := decodeBody[offerPageJSON](t, rec)
	require.Len(t, page.Offers, 1)
	assert.Equal(t, later.ID, page.Offers[0].ID)
	assert.False(t, page.HasMore)
}

func TestListOffers_Errors(t *testing.T) {
	env := newTestGateway(t)

	tests := []struct {
		name   string
		query  string
		status int
		code   string
	}{
		{"zero page size", "page_size=0", http.StatusBadRequest, "invalid_page_size"},
		{"page size over max", "page_size=11", http.StatusBadRequest, "invalid_page_size"},
		{"non-numeric page size", "page_size=ten", http.StatusBadRequest, "invalid_page_size"},
		{"bad cursor", "cursor=%21%21not-a-cursor", http.StatusBadRequest, "invalid_cursor"},
		{"bad date", "min_travel_date=tomorrow", http.StatusBadRequest, "invalid_argument"},
		{"bad status", "status=sold", http.StatusBadRequest, "invalid_argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/offers?"+tt.query, "", nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeBody[errorResponse](t, rec).Code)
		})
	}
}

func TestListOffers_StoreUnavailable(t *testing.T) {
	env := newTestGateway(t)
	env.store.FailNext("ListOffers", apperr.Unavailable("querying offers", errors.New("too many connections")))

	rec := env.do(t, http.MethodGet, "/api/offers", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "unavailable", body.Code)
	assert.NotContains(t, body.Error, "too many connections")
}

func TestMyOffers(t *testing.T) {
	env := newTestGateway(t)
	alice := env.token(t, "alice", "Alice", false)
	bob := env.token(t, "bob", "Bob", false)

	env.createOffer(t, alice, lyonOffer("2026-11-20"))
	env.createOffer(t, alice, lyonOffer("2026-11-21"))
	env.createOffer(t, bob, lyonOffer("2026-11-22"))

	rec := env.do(t, http.MethodGet, "/api/me/offers", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string][]offerJSON](t, rec)
	require.Len(t, body["offers"], 2)
	for _, o := range body["offers"] {
		assert.Equal(t, "alice", o.OwnerID)
	}

	rec = env.do(t, http.MethodGet, "/api/me/offers?limit=-1", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
