// ABOUTME: JSON request and response plumbing for the HTTP API
// ABOUTME: Maps application error kinds onto HTTP status codes with a stable error body

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/voyengo/voyengo/internal/apperr"
	"github.com/voyengo/voyengo/internal/conversation"
	"github.com/voyengo/voyengo/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type placeJSON struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

type offerJSON struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	From            placeJSON  `json:"from"`
	To              placeJSON  `json:"to"`
	TravelDate      store.Date `json:"travel_date"`
	CapacityKg      float64    `json:"capacity_kg"`
	PricePerKg      float64    `json:"price_per_kg"`
	Currency        string     `json:"currency"`
	Description     string     `json:"description,omitempty"`
	DescriptionHTML string     `json:"description_html,omitempty"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

type offerPageJSON struct {
	Offers     []offerJSON `json:"offers"`
	NextCursor string      `json:"next_cursor,omitempty"`
	HasMore    bool        `json:"has_more"`
}

type messageJSON struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
	Seq            int64     `json:"seq"`
}

type lastMessageJSON struct {
	Text     string `json:"text"`
	SenderID string `json:"sender_id"`
}

type inboxEntryJSON struct {
	ConversationID   string            `json:"conversation_id"`
	Participants     []string          `json:"participants"`
	DisplayNames     map[string]string `json:"display_names"`
	OtherUserID      string            `json:"other_user_id"`
	OtherDisplayName string            `json:"other_display_name"`
	LastMessage      *lastMessageJSON  `json:"last_message,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type statsJSON struct {
	Users         int64 `json:"users"`
	Offers        int64 `json:"offers"`
	Conversations int64 `json:"conversations"`
	Messages      int64 `json:"messages"`
}

func toOfferJSON(o store.Offer) offerJSON {
	return offerJSON{
		ID:          o.ID,
		OwnerID:     o.OwnerID,
		From:        placeJSON{City: o.Route.From.City, Country: o.Route.From.Country},
		To:          placeJSON{City: o.Route.To.City, Country: o.Route.To.Country},
		TravelDate:  o.TravelDate,
		CapacityKg:  o.CapacityKg,
		PricePerKg:  o.PricePerKg,
		Currency:    o.Currency,
		Description: o.Description,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func toOfferList(offers []store.Offer) []offerJSON {
	out := make([]offerJSON, 0, len(offers))
	for _, o := range offers {
		out = append(out, toOfferJSON(o))
	}
	return out
}

func toMessageList(msgs []store.Message) []messageJSON {
	out := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageJSON{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			SenderID:       m.SenderID,
			Text:           m.Text,
			CreatedAt:      m.CreatedAt,
			Seq:            m.Seq,
		})
	}
	return out
}

func toInboxList(entries []conversation.InboxEntry) []inboxEntryJSON {
	out := make([]inboxEntryJSON, 0, len(entries))
	for _, e := range entries {
		names := make(map[string]string, len(e.Conversation.ParticipantInfo))
		for id, info := range e.Conversation.ParticipantInfo {
			names[id] = info.DisplayName
		}
		item := inboxEntryJSON{
			ConversationID:   e.Conversation.ID,
			Participants:     e.Conversation.Participants,
			DisplayNames:     names,
			OtherUserID:      e.OtherUserID,
			OtherDisplayName: e.OtherDisplayName,
			CreatedAt:        e.Conversation.CreatedAt,
			UpdatedAt:        e.Conversation.UpdatedAt,
		}
		if lm := e.Conversation.LastMessage; lm != nil {
			item.LastMessage = &lastMessageJSON{Text: lm.Text, SenderID: lm.SenderID}
		}
		out = append(out, item)
	}
	return out
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes an error body with the given status and code.
func sendJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// statusForError maps an application error to an HTTP status code.
func statusForError(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthorization:
		if errors.Is(err, apperr.ErrUnauthenticated) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto a status and error body. Internal details of
// unclassified and unavailable errors are logged, not returned.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	code := apperr.CodeOf(err)
	message := apperr.MessageOf(err)

	switch status {
	case http.StatusInternalServerError:
		g.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		code, message = "internal", "internal error"
	case http.StatusServiceUnavailable:
		g.logger.WarnContext(r.Context(), "backend unavailable", "path", r.URL.Path, "error", err)
	}
	sendJSONError(w, status, code, message)
}

// decodeJSON reads a single JSON object from the request body into v.
// Unknown fields are rejected.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Invalid("invalid request body: %v", err)
	}
	if dec.More() {
		return apperr.Invalid("invalid request body: trailing data")
	}
	return nil
}

// logWriteError logs a failure to write a streamed response.
func logWriteError(logger *slog.Logger, what string, err error) {
	logger.Debug(fmt.Sprintf("failed to write %s", what), "error", err)
}
