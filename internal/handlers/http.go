package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/avhall/quizdash/internal/middleware"
)

// Routes builds the HTTP surface: health check, nickname generation,
// and the WebSocket endpoint, with request logging and CORS honoring
// CLIENT_ORIGIN.
func Routes(logger *logrus.Logger, s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.LogMiddleware(logger))

	r.Get("/healthz", Healthz)
	r.Get("/api/nickname", NicknameHandler(s))
	r.Get("/ws", WSHandler(logger, s))

	origin := os.Getenv("CLIENT_ORIGIN")
	if origin == "" {
		origin = "*"
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{origin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: origin != "*",
	})
	return c.Handler(r)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// NicknameHandler returns a generated display name, for clients that
// want a suggestion before connecting.
func NicknameHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nickname := s.Names.Generate(r.Context())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"nickname": nickname})
	}
}
