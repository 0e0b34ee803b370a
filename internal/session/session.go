// Package session ties one (table, order) pairing to the push channel and
// the fallback poll, and keeps the local projection converged on whatever the
// service last reported.
package session

import (
	"errors"

	"github.com/dromero/qrmesa/internal/order"
	"github.com/dromero/qrmesa/internal/table"
)

var (
	// ErrInvalidCode: bad or expired QR code. Fatal for the attempted
	// session; never retried automatically.
	ErrInvalidCode = errors.New("invalid session code")
	// ErrNotEditable: rectify requested outside the RECEIVED window.
	ErrNotEditable = errors.New("order can no longer be edited")
	// ErrEmptyCart: send requested with nothing in the cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrBadTransition: a staff advance the lifecycle does not allow.
	ErrBadTransition = errors.New("invalid state transition")
)

// Resolution is what a QR code maps to. OrderID is nil when nobody has
// ordered at the table yet; that is a valid session, not an error.
type Resolution struct {
	LocationID string  `json:"location_id"`
	TableID    string  `json:"table_id"`
	OrderID    *string `json:"order_id"`
}

// State is the authoritative session state returned by a poll fetch.
type State struct {
	Order *order.Snapshot `json:"order"`
	Table table.Snapshot  `json:"table"`
}
