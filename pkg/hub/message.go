// Package hub fans JSON events out to UI websocket clients.
package hub

import "encoding/json"

// Event types.
const (
	EventStatus  = "status"
	EventInbound = "inbound"
	EventCamera  = "camera"
	EventHello   = "hello"
)

// Event is the envelope of every message sent to clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Encode marshals an event.
func Encode(eventType string, data any) ([]byte, error) {
	return json.Marshal(Event{Type: eventType, Data: data})
}
