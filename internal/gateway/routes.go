// ABOUTME: HTTP route table for the gateway
// ABOUTME: Health and offer reads are public; everything else requires a bearer token

package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/voyengo/voyengo/internal/auth"
)

// routes builds the chi router.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(g.logger.With("component", "http")))
	r.Use(chimiddleware.Recoverer)
	if len(g.config.Server.CORSOrigins) > 0 {
		r.Use(corsHandler(g.config.Server.CORSOrigins))
	}

	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/offers", g.handleListOffers)
		r.Get("/offers/{id}", g.handleGetOffer)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(g.verifier))

			r.Post("/conversations", g.handleEnsureConversation)
			r.Get("/conversations/{id}/messages", g.handleStreamMessages)
			r.Post("/conversations/{id}/messages", g.handleSendMessage)
			r.Get("/inbox", g.handleStreamInbox)

			r.Post("/offers", g.handleCreateOffer)
			r.Put("/offers/{id}", g.handleUpdateOffer)
			r.Get("/me/offers", g.handleMyOffers)

			r.With(auth.RequirePrivileged()).Get("/admin/stats", g.handleStats)
		})
	})

	return r
}

// handleHealth reports liveness.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "server_id": g.serverID})
}

// handleReady reports whether the store answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		sendJSONError(w, http.StatusServiceUnavailable, "unavailable", "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleStats returns row counters for operators.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := g.store.Stats(r.Context())
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsJSON{
		Users:         st.Users,
		Offers:        st.Offers,
		Conversations: st.Conversations,
		Messages:      st.Messages,
	})
}
