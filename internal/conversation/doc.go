// Package conversation implements two-party messaging on top of the store.
//
// # Identity
//
// A conversation is keyed by its participants: the two user ids sorted and
// joined with "_". Both directions of first contact resolve to the same id,
// so creation is a merge-write rather than lookup-then-insert.
//
// # Components
//
//   - Manager: EnsureConversation creates or refreshes a conversation.
//   - Stream: SendMessage appends a message; SubscribeMessages streams them.
//   - Inbox: SubscribeInbox streams a user's conversations by recency.
//
// # Write path
//
// SendMessage appends the message first. Only a durable append is followed by
// the last-message summary update, which is best-effort: if it fails the
// message still exists and the inbox catches up on the next send. Appends are
// never retried here because a retry could duplicate the message.
//
// # Live reads
//
// Subscriptions register with the notifier before their first read and then
// re-read on every signal. A dropped or coalesced signal therefore costs
// latency, not data. Message subscriptions deliver the full history first,
// then only messages past the highest sequence already sent.
package conversation
