package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bulleador/lobbysync/internal/store"
	"github.com/bulleador/lobbysync/internal/ws"
)

func SetupRoutes(s *store.Store, b *ws.Broker, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public routes
	r.Route("/lobbies", func(r chi.Router) {
		r.Post("/", CreateLobby(s))
		r.Post("/join", JoinLobby(s))
		r.Route("/{lobbyID}", func(r chi.Router) {
			r.Get("/", GetLobby(s))
			r.Delete("/", DeleteLobby(s))
			r.Post("/update", UpdateLobby(s))
			r.Post("/remove-member", RemoveMember(s))
			r.Post("/leave", LeaveLobby(s))
		})
	})
	r.Get("/healthz", Healthz)
	r.Get("/pubsub", ws.Handler(b, logger))
	return r
}
