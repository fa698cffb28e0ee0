// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject backend failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voyengo/voyengo/internal/apperr"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	offers        map[string]*Offer        // keyed by offer ID
	conversations map[string]*Conversation // keyed by conversation ID
	messages      map[string][]Message     // keyed by conversation ID, in append order
	seq           int64
	clock         *serverClock

	// failures holds errors to return from the named method, consumed in order
	failures map[string][]error
	calls    map[string]int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		offers:        make(map[string]*Offer),
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
		clock:         newServerClock(),
		failures:      make(map[string][]error),
		calls:         make(map[string]int),
	}
}

// FailNext makes the next len(errs) calls to method return errs in order.
func (m *MockStore) FailNext(method string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = append(m.failures[method], errs...)
}

// Calls returns how many times method has been invoked.
func (m *MockStore) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

// SetNow replaces the store clock, for tests that need equal timestamps.
func (m *MockStore) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock.now = now
}

// enter records a call and pops an injected failure. Must be called with mu held.
func (m *MockStore) enter(method string) error {
	m.calls[method]++
	errs := m.failures[method]
	if len(errs) == 0 {
		return nil
	}
	m.failures[method] = errs[1:]
	return errs[0]
}

// CreateOffer stores a new offer.
func (m *MockStore) CreateOffer(ctx context.Context, offer *Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateOffer"); err != nil {
		return err
	}

	offer.CreatedAt = m.clock.Now()
	offer.UpdatedAt = nil
	o := *offer
	m.offers[o.ID] = &o
	return nil
}

// GetOffer retrieves an offer by ID.
func (m *MockStore) GetOffer(ctx context.Context, id string) (*Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetOffer"); err != nil {
		return nil, err
	}

	o, ok := m.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := copyOffer(o)
	return &result, nil
}

// UpdateOffer overwrites the mutable fields of an offer.
func (m *MockStore) UpdateOffer(ctx context.Context, offer *Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateOffer"); err != nil {
		return err
	}

	existing, ok := m.offers[offer.ID]
	if !ok {
		return ErrNotFound
	}

	now := m.clock.Now()
	updated := *offer
	updated.OwnerID = existing.OwnerID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = &now
	m.offers[offer.ID] = &updated

	offer.UpdatedAt = &now
	return nil
}

// ListOffers filters, orders newest first and pages like the SQL stores.
func (m *MockStore) ListOffers(ctx context.Context, q OfferQuery) (*OfferPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListOffers"); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		return nil, apperr.ErrInvalidPageSize
	}

	var cursor *offerCursor
	if q.Cursor != "" {
		var err error
		cursor, err = decodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
	}

	all := m.sortedOffersLocked()
	var page []Offer
	for _, o := range all {
		if q.FromCity != "" && NormalizeCity(o.Route.From.City) != q.FromCity {
			continue
		}
		if q.ToCity != "" && NormalizeCity(o.Route.To.City) != q.ToCity {
			continue
		}
		if q.MinTravelDate != nil && o.TravelDate.Before(*q.MinTravelDate) {
			continue
		}
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		if cursor != nil && !offerAfterCursor(o, cursor) {
			continue
		}
		page = append(page, o)
		if len(page) == q.Limit {
			break
		}
	}

	return pageFromRows(page, q.Limit), nil
}

// offerAfterCursor reports whether o comes after the cursor in newest-first order.
func offerAfterCursor(o Offer, c *offerCursor) bool {
	if o.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return o.CreatedAt.Equal(c.CreatedAt) && o.ID < c.ID
}

// ListOffersByOwner returns the owner's offers, newest first.
func (m *MockStore) ListOffersByOwner(ctx context.Context, ownerID string, limit int) ([]Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListOffersByOwner"); err != nil {
		return nil, err
	}

	limit = clampLimit(limit, 100, 500)
	var result []Offer
	for _, o := range m.sortedOffersLocked() {
		if o.OwnerID != ownerID {
			continue
		}
		result = append(result, o)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

// sortedOffersLocked returns copies of all offers, newest first. Must be called with mu held.
func (m *MockStore) sortedOffersLocked() []Offer {
	all := make([]Offer, 0, len(m.offers))
	for _, o := range m.offers {
		all = append(all, copyOffer(o))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	return all
}

func copyOffer(o *Offer) Offer {
	c := *o
	if o.UpdatedAt != nil {
		t := *o.UpdatedAt
		c.UpdatedAt = &t
	}
	return c
}

// UpsertConversation merge-writes a conversation.
func (m *MockStore) UpsertConversation(ctx context.Context, u *ConversationUpsert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpsertConversation"); err != nil {
		return err
	}

	userA, userB := sortedPair(u.Participants)
	if userA == "" || userA == userB {
		return apperr.ErrInvalidParticipants
	}

	now := m.clock.Now()
	existing, ok := m.conversations[u.ID]
	if !ok {
		existing = &Conversation{
			ID:              u.ID,
			Participants:    []string{userA, userB},
			ParticipantInfo: map[string]ParticipantInfo{userA: {}, userB: {}},
			CreatedAt:       now,
		}
		m.conversations[u.ID] = existing
	} else if existing.Participants[0] != userA || existing.Participants[1] != userB {
		return apperr.ErrInvalidParticipants
	}

	for _, id := range existing.Participants {
		if info, ok := u.ParticipantInfo[id]; ok && info.DisplayName != "" {
			existing.ParticipantInfo[id] = info
		}
	}
	existing.UpdatedAt = now
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetConversation"); err != nil {
		return nil, err
	}

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := copyConversation(c)
	return &result, nil
}

// UpdateConversationSummary records the last message and bumps updated_at.
func (m *MockStore) UpdateConversationSummary(ctx context.Context, id string, last LastMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateConversationSummary"); err != nil {
		return err
	}

	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	lm := last
	c.LastMessage = &lm
	c.UpdatedAt = m.clock.Now()
	return nil
}

// ListConversationsForUser returns the user's conversations, most recently updated first.
func (m *MockStore) ListConversationsForUser(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListConversationsForUser"); err != nil {
		return nil, err
	}

	limit = clampLimit(limit, 100, 1000)
	var result []Conversation
	for _, c := range m.conversations {
		if c.HasParticipant(userID) {
			result = append(result, copyConversation(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func copyConversation(c *Conversation) Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.ParticipantInfo = make(map[string]ParticipantInfo, len(c.ParticipantInfo))
	for k, v := range c.ParticipantInfo {
		out.ParticipantInfo[k] = v
	}
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	return out
}

// AppendMessage stores a message, assigning ID (if empty), CreatedAt and Seq.
func (m *MockStore) AppendMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("AppendMessage"); err != nil {
		return err
	}

	if _, ok := m.conversations[msg.ConversationID]; !ok {
		return ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	m.seq++
	msg.Seq = m.seq
	msg.CreatedAt = m.clock.Now()
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], *msg)
	return nil
}

// ListMessages returns messages after AfterSeq ordered by (created_at, seq).
func (m *MockStore) ListMessages(ctx context.Context, q MessageQuery) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListMessages"); err != nil {
		return nil, err
	}

	var result []Message
	for _, msg := range m.messages[q.ConversationID] {
		if msg.Seq > q.AfterSeq {
			result = append(result, msg)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Seq < result[j].Seq
	})
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

// Stats returns row counters.
func (m *MockStore) Stats(ctx context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Stats"); err != nil {
		return nil, err
	}

	users := make(map[string]struct{})
	for _, o := range m.offers {
		users[o.OwnerID] = struct{}{}
	}
	var messages int64
	for id, c := range m.conversations {
		for _, p := range c.Participants {
			users[p] = struct{}{}
		}
		messages += int64(len(m.messages[id]))
	}

	return &Stats{
		Users:         int64(len(users)),
		Offers:        int64(len(m.offers)),
		Conversations: int64(len(m.conversations)),
		Messages:      messages,
	}, nil
}

// Ping always succeeds unless a failure was injected.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter("Ping")
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
