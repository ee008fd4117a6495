// Package wire defines the realtime channel's frames and their encodings.
//
// Clients send request frames carrying a correlation id; the server answers
// each with exactly one "ack" frame bearing the same id. Listing pushes carry
// no id.
package wire

import (
	"encoding/json"
	"fmt"
)

// Event names.
const (
	// EventRecipesUpdated pushes the full, sorted listing to a client.
	EventRecipesUpdated = "recipes:updated"
	// EventRecipesList requests the current listing.
	EventRecipesList = "recipes:list"
	// EventRecipeSave requests an upsert; payload is the raw recipe object.
	EventRecipeSave = "recipe:save"
	// EventRecipeDelete requests a delete; payload is the recipe id.
	EventRecipeDelete = "recipe:delete"
	// EventAck answers a request frame.
	EventAck = "ack"
)

// ErrUnknownEvent is the reply error for unsupported request events.
const ErrUnknownEvent = "Unknown event."

// Frame is a single message on the realtime channel.
type Frame struct {
	ID      string `json:"id,omitempty" cbor:"id,omitempty"`
	Event   string `json:"event" cbor:"event"`
	Payload any    `json:"payload,omitempty" cbor:"payload,omitempty"`
	Reply   *Reply `json:"reply,omitempty" cbor:"reply,omitempty"`
}

// Reply is the acknowledgement body: {success, data} or {success: false, error}.
type Reply struct {
	Success bool   `json:"success" cbor:"success"`
	Data    any    `json:"data,omitempty" cbor:"data,omitempty"`
	Error   string `json:"error,omitempty" cbor:"error,omitempty"`
}

// Request builds a request frame.
func Request(id, event string, payload any) Frame {
	return Frame{ID: id, Event: event, Payload: payload}
}

// Updated builds a listing push frame.
func Updated(listing any) Frame {
	return Frame{Event: EventRecipesUpdated, Payload: listing}
}

// Ack builds a successful acknowledgement.
func Ack(id string, data any) Frame {
	return Frame{ID: id, Event: EventAck, Reply: &Reply{Success: true, Data: data}}
}

// Nack builds a failed acknowledgement.
func Nack(id, message string) Frame {
	return Frame{ID: id, Event: EventAck, Reply: &Reply{Success: false, Error: message}}
}

// Convert re-shapes a decoded generic value (maps, slices, scalars) into dst.
// Frames decode payloads as generic values because the codec cannot know the
// target type until the event is inspected.
func Convert(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("convert payload: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("convert payload: %w", err)
	}
	return nil
}
