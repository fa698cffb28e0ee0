// Package notify carries change signals between the components that write
// data and the live subscriptions that re-read it.
//
// A signal has no payload: it only says "topic X changed". Receivers re-query
// the store, so a dropped or coalesced signal never loses data. Two
// implementations exist: an in-process Broadcaster and a RedisNotifier that
// relays signals between gateway processes over Redis pub/sub.
package notify
