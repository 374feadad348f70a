package handlers

import (
	"net/http"
	"time"

	"github.com/avvvet/gm2-qr-services/internal/qrsvc/web"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SetRoutes(r *chi.Mux) {
	r.Get("/", web.IndexHandler)
	r.Handle("/static/*", http.StripPrefix("/static/", web.StaticHandler()))
	r.Get("/health", h.HealthHandler)

	r.Route("/v1", func(r chi.Router) {
		// public routes, used by the page
		r.Get("/credentials", h.GetCredentialsHandler)
		r.Post("/credentials", h.SaveCredentialsHandler)
		r.Get("/payload", h.PayloadHandler)
		r.Get("/qr.png", h.QRImageHandler)
		r.Get("/ws", h.HandleWebSocket)

		// Secure routes
		r.Group(func(r chi.Router) {
			if h.tokenAuth != nil {
				r.Use(jwtauth.Verifier(h.tokenAuth))
				r.Use(jwtauth.Authenticator)
			}

			r.Get("/stats", h.StatsHandler)
		})
	})
}

// InitAuth protects the secure routes with HS256 tokens signed by secret.
// An empty secret leaves them open.
func (h *Handler) InitAuth(secret string) {
	if secret == "" {
		log.Warn("JWT_SECRET_KEY not set, /v1/stats is unprotected")
		return
	}
	h.tokenAuth = jwtauth.New("HS256", []byte(secret), nil)
}

// IssueToken signs a short-lived token for the secure routes.
func (h *Handler) IssueToken(ttl time.Duration) (string, error) {
	if h.tokenAuth == nil {
		return "", nil
	}
	_, tokenString, err := h.tokenAuth.Encode(map[string]interface{}{
		"service_id": h.instanceId,
		"exp":        time.Now().Add(ttl).Unix(),
	})
	return tokenString, err
}
