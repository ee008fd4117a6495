// Package sse streams recipe listings to clients over Server-Sent Events.
//
// SSE is the read-only transport: clients that cannot hold a WebSocket
// subscribe here and send mutations through the HTTP API instead.
package sse

import "time"

// EventType names an SSE event.
type EventType string

const (
	// EventConnected is sent once when the stream opens.
	EventConnected EventType = "connected"
	// EventRecipesUpdated carries the full, sorted listing.
	EventRecipesUpdated EventType = "recipes:updated"
	// EventHeartbeat keeps idle connections open through proxies.
	EventHeartbeat EventType = "heartbeat"
)

// ConnectedData is the payload of the connected event.
type ConnectedData struct {
	SessionID string `json:"session_id"`
}

// HeartbeatData is the payload of heartbeat events.
type HeartbeatData struct {
	Timestamp time.Time `json:"timestamp"`
}
