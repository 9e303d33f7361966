package handlers

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type outMessage map[string]interface{}

// Conn is one live WebSocket client. Outgoing messages go through Out;
// the write pump drains it.
type Conn struct {
	PlayerID uuid.UUID
	Out      chan outMessage
	cancel   context.CancelFunc

	// room is the lobby code this connection currently belongs to, if
	// any. Only the connection's own read loop touches it.
	room string
}

// Write queues a message without blocking. If the channel is full the
// message is dropped; a client that far behind is about to be
// disconnected by its pumps anyway.
func (c *Conn) Write(msg outMessage) {
	select {
	case c.Out <- msg:
	default:
		event, _ := msg["type"].(string)
		logrus.WithFields(logrus.Fields{"player": c.PlayerID, "event": event}).Warn("out channel full, dropping message")
	}
}

// Gateway is the broadcast fan-out: it maps lobby codes to the
// connections in that room and player IDs to their connection. The
// game core talks to it only through injected emit functions, so tests
// swap it for a recorder.
type Gateway struct {
	mu    sync.Mutex
	rooms map[string]map[uuid.UUID]*Conn
	conns map[uuid.UUID]*Conn
}

func NewGateway() *Gateway {
	return &Gateway{
		rooms: make(map[string]map[uuid.UUID]*Conn),
		conns: make(map[uuid.UUID]*Conn),
	}
}

// Register tracks a freshly accepted connection.
func (g *Gateway) Register(conn *Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[conn.PlayerID] = conn
}

// Unregister forgets a connection entirely.
func (g *Gateway) Unregister(conn *Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conns[conn.PlayerID] == conn {
		delete(g.conns, conn.PlayerID)
	}
}

// JoinRoom adds the connection to a lobby's room.
func (g *Gateway) JoinRoom(code string, conn *Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[code]
	if !ok {
		room = make(map[uuid.UUID]*Conn)
		g.rooms[code] = room
	}
	room[conn.PlayerID] = conn
}

// LeaveRoom removes a player from a room, dropping the room when it
// empties.
func (g *Gateway) LeaveRoom(code string, playerID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if room, ok := g.rooms[code]; ok {
		delete(room, playerID)
		if len(room) == 0 {
			delete(g.rooms, code)
		}
	}
}

// EmitToRoom sends an event to every member of a lobby's room.
// Best-effort: members with saturated channels miss the message.
func (g *Gateway) EmitToRoom(code, event string, payload map[string]interface{}) {
	g.mu.Lock()
	members := make([]*Conn, 0, len(g.rooms[code]))
	for _, conn := range g.rooms[code] {
		members = append(members, conn)
	}
	g.mu.Unlock()

	msg := outMessage{"type": event, "data": payload}
	for _, conn := range members {
		conn.Write(msg)
	}
}

// EmitToConnection sends an event to a single player's connection, if
// it is still around.
func (g *Gateway) EmitToConnection(playerID uuid.UUID, event string, payload map[string]interface{}) {
	g.mu.Lock()
	conn := g.conns[playerID]
	g.mu.Unlock()
	if conn != nil {
		conn.Write(outMessage{"type": event, "data": payload})
	}
}
