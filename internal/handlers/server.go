package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/avhall/quizdash/internal/game"
	"github.com/avhall/quizdash/internal/names"
	"github.com/avhall/quizdash/internal/trivia"
)

// Server bundles the lobby registry, the broadcast gateway, and the
// external service adapters for the request handlers.
type Server struct {
	Store     *game.LobbyStore
	Gateway   *Gateway
	Questions trivia.Source
	Names     *names.Generator
	Logger    *logrus.Logger
}

func NewServer(logger *logrus.Logger) *Server {
	return &Server{
		Store:     game.NewLobbyStore(),
		Gateway:   NewGateway(),
		Questions: trivia.NewClient(),
		Names:     names.NewGenerator(),
		Logger:    logger,
	}
}

// attachGateway points a lobby's emit hooks at the shared gateway.
// Done once, right after creation, before the lobby is announced.
func (s *Server) attachGateway(l *game.Lobby) {
	code := l.Code
	l.Mu.Lock()
	l.BroadcastFn = func(event string, payload map[string]interface{}) {
		s.Gateway.EmitToRoom(code, event, payload)
	}
	l.DirectFn = s.Gateway.EmitToConnection
	l.Mu.Unlock()
}
