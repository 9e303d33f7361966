package handlers

// Custom WebSocket close codes, above the reserved range.
const (
	BadSubprotocolError = 3000 // client connected with an unsupported subprotocol
)
