// ABOUTME: Deterministic conversation identity derived from the two participant ids
// ABOUTME: Also resolves the other participant of a conversation by set subtraction

package conversation

import (
	"github.com/voyengo/voyengo/internal/store"
)

// Separator joins the sorted participant ids of a conversation id.
const Separator = "_"

// ConversationID returns the id shared by the conversation between a and b,
// independent of argument order.
func ConversationID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + Separator + b
}

// OtherParticipant returns the participant of conv that is not userID, or ""
// if userID is not a participant.
func OtherParticipant(conv *store.Conversation, userID string) string {
	if !conv.HasParticipant(userID) {
		return ""
	}
	for _, p := range conv.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}
