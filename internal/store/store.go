// ABOUTME: Store interfaces and typed records for voyengo persistence
// ABOUTME: Defines Offer, Conversation and Message plus the queries over them

package store

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/voyengo/voyengo/internal/apperr"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = apperr.ErrNotFound

// OfferStatus is the lifecycle state of an offer
type OfferStatus string

const (
	OfferStatusActive    OfferStatus = "active"
	OfferStatusCompleted OfferStatus = "completed"
	OfferStatusCancelled OfferStatus = "cancelled"
	OfferStatusArchived  OfferStatus = "archived"
)

// Valid reports whether s is one of the known statuses.
func (s OfferStatus) Valid() bool {
	switch s {
	case OfferStatusActive, OfferStatusCompleted, OfferStatusCancelled, OfferStatusArchived:
		return true
	}
	return false
}

// Place is one end of a route
type Place struct {
	City    string
	Country string
}

// Route is where the traveler goes
type Route struct {
	From Place
	To   Place
}

// Offer is a traveler's published carrying capacity
type Offer struct {
	ID          string
	OwnerID     string
	Route       Route
	TravelDate  Date
	CapacityKg  float64
	PricePerKg  float64
	Currency    string
	Description string // empty when absent
	Status      OfferStatus
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// OfferQuery filters and pages the offer listing.
// City filters are compared against NormalizeCity of the stored value.
type OfferQuery struct {
	FromCity      string      // normalized; empty means any
	ToCity        string      // normalized; empty means any
	MinTravelDate *Date       // inclusive lower bound
	Status        OfferStatus // empty means any
	Cursor        string      // opaque cursor from a previous page
	Limit         int
}

// OfferPage is one page of the offer listing
type OfferPage struct {
	Offers     []Offer
	NextCursor string // empty when HasMore is false
	HasMore    bool   // true when the page came back full
}

// ParticipantInfo is the denormalized snapshot kept per participant
type ParticipantInfo struct {
	DisplayName string
}

// LastMessage summarizes the most recent message of a conversation
type LastMessage struct {
	Text     string
	SenderID string
}

// Conversation is a two-party messaging thread
type Conversation struct {
	ID              string
	Participants    []string // exactly two, sorted
	ParticipantInfo map[string]ParticipantInfo
	LastMessage     *LastMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}

// ConversationUpsert is the merge-write payload for a conversation.
// Only the fields present here are touched; LastMessage and CreatedAt of an
// existing record are preserved.
type ConversationUpsert struct {
	ID              string
	Participants    [2]string
	ParticipantInfo map[string]ParticipantInfo
}

// Message is a single immutable chat message
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Text           string
	CreatedAt      time.Time // assigned by the store
	Seq            int64     // assigned by the store, increases with every append
}

// MessageQuery selects messages of one conversation after a sequence number
type MessageQuery struct {
	ConversationID string
	AfterSeq       int64 // 0 for the full history
	Limit          int   // 0 means no limit
}

// Stats are the counters shown on the admin dashboard
type Stats struct {
	Users         int64 // distinct ids owning an offer or in a conversation; there is no users table
	Offers        int64
	Conversations int64
	Messages      int64
}

// OfferStore persists offers
type OfferStore interface {
	CreateOffer(ctx context.Context, offer *Offer) error
	GetOffer(ctx context.Context, id string) (*Offer, error)
	UpdateOffer(ctx context.Context, offer *Offer) error
	ListOffers(ctx context.Context, q OfferQuery) (*OfferPage, error)
	ListOffersByOwner(ctx context.Context, ownerID string, limit int) ([]Offer, error)
}

// ConversationStore persists conversation metadata
type ConversationStore interface {
	UpsertConversation(ctx context.Context, u *ConversationUpsert) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	UpdateConversationSummary(ctx context.Context, id string, last LastMessage) error
	ListConversationsForUser(ctx context.Context, userID string, limit int) ([]Conversation, error)
}

// MessageStore persists messages
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, q MessageQuery) ([]Message, error)
}

// Store defines the full persistence surface
type Store interface {
	OfferStore
	ConversationStore
	MessageStore
	Stats(ctx context.Context) (*Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// NormalizeCity is the form city names are matched in.
func NormalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

// sortedPair returns the two ids in lexical order.
func sortedPair(p [2]string) (string, string) {
	if p[1] < p[0] {
		return p[1], p[0]
	}
	return p[0], p[1]
}

// clampLimit applies a default and an upper bound to list limits.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
