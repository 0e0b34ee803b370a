// Package realtime owns the push channel: one long-lived broker connection
// per process, the set of rooms the client is subscribed to, and the fallback
// poller that covers for lost pushes.
package realtime

import (
	"encoding/json"
	"time"
)

// RoomKind selects the channel family.
type RoomKind string

const (
	RoomTable RoomKind = "table"
	RoomOrder RoomKind = "order"
)

// Room is one logical push channel: a table's or an order's session.
type Room struct {
	Kind RoomKind
	ID   string
}

// Key is the canonical set key; structural comparisons of pairs are what
// caused duplicate-membership bugs before.
func (r Room) Key() string { return string(r.Kind) + ":" + r.ID }

// RoutingKey is the broker-side name of the room, e.g. "order.O-99".
func (r Room) RoutingKey() string { return string(r.Kind) + "." + r.ID }

// Event names on the mesa.events exchange.
const (
	EventOrderStateChanged      = "order-state-changed"
	EventSubmissionStateChanged = "submission-state-changed"
	EventTableStateChanged      = "table-state-changed"
)

// Envelope frames every pushed payload.
type Envelope struct {
	Event      string          `json:"event"`
	ObservedAt time.Time       `json:"observed_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Delivery is one raw message handed to the event handler.
type Delivery struct {
	RoutingKey string
	Body       []byte
}
