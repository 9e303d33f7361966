package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/avhall/quizdash/internal/auth"
	"github.com/avhall/quizdash/internal/game"
	"github.com/avhall/quizdash/internal/models"
)

const guestCookieName = "guest_token"

// clientRequest is one frame from the client. Every request with a
// reqId gets exactly one ack frame back; this replaces the callback
// acknowledgements of a socket.io-style transport.
type clientRequest struct {
	Op       string                 `json:"op"`
	ReqID    *int64                 `json:"reqId,omitempty"`
	Code     string                 `json:"code,omitempty"`
	Nickname string                 `json:"nickname,omitempty"`
	Settings map[string]interface{} `json:"settings,omitempty"`
	Answer   string                 `json:"answer,omitempty"`
}

// WSHandler upgrades the connection and runs the read pump until the
// client goes away. A dropped socket is a full departure: the player is
// removed from their lobby on exit.
func WSHandler(logger *logrus.Logger, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, err := ensureGuest(w, r)
		if err != nil {
			logger.Warnf("guest auth failed: %v", err)
			http.Error(w, "could not establish guest session", http.StatusInternalServerError)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"quiz"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "quiz" {
			c.Close(BadSubprotocolError, "client must speak the quiz subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		conn := &Conn{
			PlayerID: playerID,
			Out:      make(chan outMessage, 16),
			cancel:   cancel,
		}
		s.Gateway.Register(conn)
		logger.WithFields(logrus.Fields{"player": playerID, "remote": r.RemoteAddr}).Info("websocket connected")

		go writePump(ctx, c, conn, logger)
		readPump(ctx, c, s, conn, logger)

		// Read pump exit means the connection is gone: full departure.
		cancel()
		s.Gateway.Unregister(conn)
		if conn.room != "" {
			s.Gateway.LeaveRoom(conn.room, conn.PlayerID)
		}
		s.Store.RemovePlayerEverywhere(conn.PlayerID)
		logger.WithField("player", playerID).Info("websocket disconnected")
	}
}

// ensureGuest resolves the guest identity from the request cookie,
// minting a fresh token (and setting the cookie on the upgrade
// response) when absent or invalid.
func ensureGuest(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	if cookie, err := r.Cookie(guestCookieName); err == nil {
		if id, err := auth.VerifyToken(cookie.Value); err == nil {
			return id, nil
		}
	}

	id, token, err := auth.NewGuestToken()
	if err != nil {
		return uuid.Nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     guestCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

func readPump(ctx context.Context, c *websocket.Conn, s *Server, conn *Conn, logger *logrus.Logger) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				logger.WithFields(logrus.Fields{"player": conn.PlayerID, "error": err}).Debug("websocket read ended")
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var req clientRequest
		if err := json.Unmarshal(data, &req); err != nil {
			conn.Write(outMessage{"type": "error", "message": "invalid JSON"})
			continue
		}
		s.handleRequest(ctx, conn, req)
	}
}

// handleRequest dispatches one client operation and queues its ack.
// startGame runs in its own goroutine because the question load can
// take a while and the connection should keep reading meanwhile.
func (s *Server) handleRequest(ctx context.Context, conn *Conn, req clientRequest) {
	switch req.Op {
	case "createLobby":
		name := s.Names.Sanitize(ctx, req.Nickname)
		host := &models.Player{ID: conn.PlayerID, Name: name}
		s.leaveCurrentLobby(conn)

		lobby := s.Store.CreateLobby(host, game.SettingsFromPayload(req.Settings))
		s.attachGateway(lobby)
		s.Gateway.JoinRoom(lobby.Code, conn)
		conn.room = lobby.Code
		lobby.BroadcastState()
		conn.Write(ack(req, true, map[string]interface{}{"code": lobby.Code, "isHost": true}))

	case "joinLobby":
		lobby, ok := s.Store.GetLobby(req.Code)
		if !ok {
			conn.Write(ackError(req, "Lobby not found"))
			return
		}
		s.leaveCurrentLobby(conn)

		name := s.Names.Sanitize(ctx, req.Nickname)
		s.Gateway.JoinRoom(lobby.Code, conn)
		conn.room = lobby.Code
		lobby.Join(&models.Player{ID: conn.PlayerID, Name: name})
		conn.Write(ack(req, true, map[string]interface{}{"code": lobby.Code, "isHost": false}))

	case "updateSettings":
		lobby, ok := s.Store.GetLobby(req.Code)
		if !ok {
			conn.Write(ackError(req, "Lobby not found"))
			return
		}
		if err := lobby.UpdateSettings(conn.PlayerID, req.Settings); err != nil {
			conn.Write(ackError(req, settingsErrorMessage(err)))
			return
		}
		conn.Write(ack(req, true, nil))

	case "startGame":
		lobby, ok := s.Store.GetLobby(req.Code)
		if !ok {
			conn.Write(ackError(req, "Lobby not found"))
			return
		}
		go func() {
			if err := lobby.StartGame(ctx, conn.PlayerID, s.Questions); err != nil {
				conn.Write(ackError(req, startErrorMessage(err)))
				return
			}
			conn.Write(ack(req, true, nil))
		}()

	case "submitAnswer":
		lobby, ok := s.Store.GetLobby(req.Code)
		if !ok {
			conn.Write(ack(req, false, nil))
			return
		}
		lobby.SubmitAnswer(conn.PlayerID, req.Answer)
		conn.Write(ack(req, true, nil))

	case "continueAfterBreak":
		lobby, ok := s.Store.GetLobby(req.Code)
		if !ok {
			conn.Write(ackError(req, "Lobby not found"))
			return
		}
		if err := lobby.ContinueAfterBreak(conn.PlayerID); err != nil {
			conn.Write(ackError(req, continueErrorMessage(err)))
			return
		}
		conn.Write(ack(req, true, nil))

	default:
		conn.Write(ackError(req, "unknown operation"))
	}
}

// leaveCurrentLobby detaches the connection from any lobby it is in.
// A connection belongs to at most one lobby; creating or joining a new
// one implies leaving the old.
func (s *Server) leaveCurrentLobby(conn *Conn) {
	if conn.room == "" {
		return
	}
	if lobby, ok := s.Store.GetLobby(conn.room); ok {
		s.Gateway.LeaveRoom(conn.room, conn.PlayerID)
		lobby.RemovePlayer(conn.PlayerID)
	} else {
		s.Gateway.LeaveRoom(conn.room, conn.PlayerID)
	}
	conn.room = ""
}

func ack(req clientRequest, ok bool, extra map[string]interface{}) outMessage {
	msg := outMessage{"type": "ack", "ok": ok}
	if req.ReqID != nil {
		msg["reqId"] = *req.ReqID
	}
	for k, v := range extra {
		msg[k] = v
	}
	return msg
}

func ackError(req clientRequest, message string) outMessage {
	msg := ack(req, false, nil)
	msg["error"] = message
	return msg
}

func settingsErrorMessage(err error) string {
	switch {
	case errors.Is(err, game.ErrNotHost):
		return "Only host can update settings"
	case errors.Is(err, game.ErrInvalidPhase):
		return "Settings can only be changed in the lobby"
	default:
		return err.Error()
	}
}

func startErrorMessage(err error) string {
	switch {
	case errors.Is(err, game.ErrNotHost):
		return "Only host can start the game"
	case errors.Is(err, game.ErrInvalidPhase):
		return "Game already in progress"
	case errors.Is(err, game.ErrQuestionLoadFailed):
		return "Could not load questions"
	default:
		return err.Error()
	}
}

func continueErrorMessage(err error) string {
	switch {
	case errors.Is(err, game.ErrNotHost):
		return "Only host can continue"
	case errors.Is(err, game.ErrInvalidPhase):
		return "No round break to continue from"
	default:
		return err.Error()
	}
}

func writePump(ctx context.Context, c *websocket.Conn, conn *Conn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.Out:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("failed to marshal outgoing message for %v: %v", conn.PlayerID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
