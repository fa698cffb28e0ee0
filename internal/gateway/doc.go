// Package gateway orchestrates the voyengo-gateway server components.
//
// # Overview
//
// The gateway package owns the store, the change notifier, the conversation
// and offer services, and the HTTP and gRPC servers that expose them.
//
// # HTTP API
//
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (store ping)
//   - GET /api/offers - Offer directory (from_city, to_city, min_travel_date, status, cursor, page_size)
//   - GET /api/offers/{id} - One offer, description rendered to HTML
//   - POST /api/offers, PUT /api/offers/{id} - Owner-side offer management
//   - GET /api/me/offers - The caller's offers
//   - POST /api/conversations - Ensure the conversation with another user
//   - POST /api/conversations/{id}/messages - Send (honours Idempotency-Key)
//   - GET /api/conversations/{id}/messages - Message stream (SSE)
//   - GET /api/inbox - Conversation list stream (SSE)
//   - GET /api/admin/stats - Row counters (privileged)
//
// Everything under /api except offer reads needs a bearer token. Errors are
// returned as {"error": "...", "code": "..."}.
//
// # SSE Streaming
//
//	event: messages
//	data: [{"id": "...", "text": "...", "seq": 1, ...}]
//
//	event: inbox
//	data: [{"conversation_id": "...", "other_display_name": "...", ...}]
//
// An "error" event is written when a subscription fails; the stream then ends.
//
// # gRPC
//
// The gRPC listener serves grpc.health.v1 and reflection behind the auth
// interceptors. Health reports SERVING only between Run and Shutdown.
//
// # Lifecycle
//
//	gw, err := gateway.New(ctx, cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled, then shuts down
package gateway
