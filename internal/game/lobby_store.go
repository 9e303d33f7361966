package game

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/avhall/quizdash/internal/models"
)

// codeAlphabet omits I and O, which read ambiguously when players
// relay codes out loud or on screen.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	codeLength   = 5
)

// LobbyStore is the in-memory registry of live lobbies, keyed by code.
// It owns creation, lookup, and eviction; lobby state itself is only
// ever mutated through the lobby's own methods.
type LobbyStore struct {
	mu      sync.Mutex
	lobbies map[string]*Lobby
}

func NewLobbyStore() *LobbyStore {
	return &LobbyStore{lobbies: make(map[string]*Lobby)}
}

// CreateLobby generates a collision-checked code, builds a lobby with
// host as its sole player, registers it, and wires eviction-on-empty.
func (s *LobbyStore) CreateLobby(host *models.Player, settings Settings) *Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := generateCode()
	for _, taken := s.lobbies[code]; taken; _, taken = s.lobbies[code] {
		code = generateCode()
	}

	lobby := NewLobby(code, host, settings)
	lobby.OnEmpty = s.DeleteLobby
	s.lobbies[code] = lobby

	logrus.WithFields(logrus.Fields{"lobby": code, "host": host.ID}).Info("lobby created")
	return lobby
}

// GetLobby looks a lobby up by code, case-insensitively.
func (s *LobbyStore) GetLobby(code string) (*Lobby, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[strings.ToUpper(code)]
	return l, ok
}

// DeleteLobby evicts a lobby. Called automatically via OnEmpty when a
// lobby's last player leaves; any armed timers were cancelled by then.
func (s *LobbyStore) DeleteLobby(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lobbies[code]; ok {
		delete(s.lobbies, code)
		logrus.WithField("lobby", code).Info("lobby evicted")
	}
}

// RemovePlayerEverywhere removes a departed connection from every lobby
// containing it. A connection belongs to at most one lobby, but the
// sweep keeps disconnect handling robust regardless.
//
// The lobby list is snapshotted first: RemovePlayer may re-enter this
// store through OnEmpty -> DeleteLobby, which needs the store lock.
func (s *LobbyStore) RemovePlayerEverywhere(playerID uuid.UUID) {
	s.mu.Lock()
	snapshot := make([]*Lobby, 0, len(s.lobbies))
	for _, l := range s.lobbies {
		snapshot = append(snapshot, l)
	}
	s.mu.Unlock()

	for _, l := range snapshot {
		l.RemovePlayer(playerID)
	}
}

// Len reports the number of live lobbies.
func (s *LobbyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lobbies)
}

func generateCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			// crypto/rand failing means the process is in far worse
			// trouble than a lobby code.
			panic(err)
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code)
}
