// Package table models the occupancy lifecycle of one physical table.
package table

import (
	"errors"
	"time"

	"github.com/dromero/qrmesa/internal/order"
)

type Status string

const (
	StatusAvailable      Status = "AVAILABLE"
	StatusOccupied       Status = "OCCUPIED"
	StatusReceivingOrder Status = "RECEIVING_ORDER"
	StatusInKitchen      Status = "IN_KITCHEN"
	StatusEating         Status = "EATING"
	StatusRequestingBill Status = "REQUESTING_BILL"
	StatusPaid           Status = "PAID"
	StatusOutOfService   Status = "OUT_OF_SERVICE"
)

var ErrBadTransition = errors.New("invalid table transition")

// Vacant: states in which the table carries no active order.
func (s Status) Vacant() bool {
	return s == StatusAvailable || s == StatusOutOfService
}

var next = map[Status][]Status{
	StatusAvailable:      {StatusOccupied, StatusOutOfService},
	StatusOccupied:       {StatusReceivingOrder, StatusAvailable},
	StatusReceivingOrder: {StatusInKitchen, StatusAvailable},
	StatusInKitchen:      {StatusEating, StatusAvailable},
	StatusEating:         {StatusRequestingBill, StatusAvailable},
	StatusRequestingBill: {StatusPaid, StatusAvailable},
	StatusPaid:           {StatusAvailable},
	StatusOutOfService:   {StatusAvailable},
}

func (s Status) CanAdvanceTo(to Status) bool {
	for _, n := range next[s] {
		if n == to {
			return true
		}
	}
	return false
}

// StatusForOrder derives the occupancy sub-state from the order lifecycle.
// Terminal orders free the table.
func StatusForOrder(os order.Status) Status {
	switch os {
	case order.StatusInitiated:
		return StatusReceivingOrder
	case order.StatusReceived, order.StatusInPreparation:
		return StatusInKitchen
	case order.StatusReady, order.StatusServed:
		return StatusEating
	case order.StatusCompleted:
		return StatusPaid
	default:
		return StatusAvailable
	}
}

// Table is a staff-configured floor table. ActiveOrderID is non-nil exactly
// while the status is a seated one.
type Table struct {
	ID            string    `json:"id"`
	LocationID    string    `json:"location_id"`
	Capacity      int       `json:"capacity"`
	Status        Status    `json:"status"`
	ActiveOrderID *string   `json:"active_order_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CheckInvariant valida status <-> active order.
func (t *Table) CheckInvariant() error {
	if t.Status.Vacant() && t.ActiveOrderID != nil {
		return errors.New("vacant table still references an order")
	}
	if !t.Status.Vacant() && t.ActiveOrderID == nil {
		return errors.New("seated table has no active order")
	}
	return nil
}

// Seat attaches an order and moves the table out of AVAILABLE.
func (t *Table) Seat(orderID string, s Status) error {
	if t.Status == StatusOutOfService {
		return ErrBadTransition
	}
	if s.Vacant() {
		return ErrBadTransition
	}
	t.ActiveOrderID = &orderID
	t.Status = s
	return nil
}

// Clear releases the table, whatever state it was in.
func (t *Table) Clear() {
	t.ActiveOrderID = nil
	t.Status = StatusAvailable
}

// Apply moves the table according to its order's new status.
func (t *Table) Apply(orderID string, os order.Status) error {
	if os.Terminal() {
		t.Clear()
		return nil
	}
	return t.Seat(orderID, StatusForOrder(os))
}

// Snapshot is the table state as reported by the service, with the same
// recency stamp the order snapshots carry.
type Snapshot struct {
	Table      Table     `json:"table"`
	ObservedAt time.Time `json:"observed_at"`
}
