package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/dromero/qrmesa/internal/cart"
	"github.com/dromero/qrmesa/internal/order"
	"github.com/dromero/qrmesa/internal/realtime"
	"github.com/dromero/qrmesa/internal/table"
)

// Live is one device's view of one table session. Push events and poll
// results funnel into the same apply path; whichever carries the newest
// observed_at wins, so the projection converges no matter how messages race
// or duplicate.
type Live struct {
	client *Client
	conn   *realtime.Conn
	code   string

	mu          sync.Mutex
	locationID  string
	tableID     string
	ord         *order.Order
	ordObserved time.Time
	tbl         table.Table
	tblObserved time.Time
	basket      *cart.Cart
	editing     bool
	closed      bool

	poller   *realtime.Poller
	unhandle func()
}

// Open resolves the QR code and attaches to the session's rooms. An invalid
// code is fatal; a resolution without an order just means nobody ordered yet.
func Open(ctx context.Context, client *Client, conn *realtime.Conn, code string) (*Live, error) {
	res, err := client.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	l := &Live{
		client:     client,
		conn:       conn,
		code:       code,
		locationID: res.LocationID,
		tableID:    res.TableID,
		tbl:        table.Table{ID: res.TableID, LocationID: res.LocationID, Status: table.StatusAvailable},
	}
	l.poller = realtime.NewPoller(l.fetchOnce, conn.Connected)

	l.unhandle = conn.Handle(l.handleDelivery)
	conn.Join(realtime.Room{Kind: realtime.RoomTable, ID: res.TableID})
	if res.OrderID != nil {
		conn.Join(realtime.Room{Kind: realtime.RoomOrder, ID: *res.OrderID})
	}
	conn.Acquire()

	// seed the projection; push only reports changes from here on
	if state, err := client.FetchSession(ctx, code); err == nil {
		l.applyState(state)
	} else {
		log.Printf("[session] initial fetch failed: %v", err)
	}
	return l, nil
}

// Close detaches from the session. Events that still arrive for it are
// dropped silently.
func (l *Live) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	tableID := l.tableID
	var orderID string
	if l.ord != nil {
		orderID = l.ord.ID
	}
	l.mu.Unlock()

	l.poller.Stop()
	l.unhandle()
	l.conn.Leave(realtime.Room{Kind: realtime.RoomTable, ID: tableID})
	if orderID != "" {
		l.conn.Leave(realtime.Room{Kind: realtime.RoomOrder, ID: orderID})
	}
	l.conn.Release()
}

// Order returns a copy of the projected order, or nil before the first send.
func (l *Live) Order() *order.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ord == nil {
		return nil
	}
	cp := *l.ord
	cp.Submissions = append([]order.Submission(nil), l.ord.Submissions...)
	return &cp
}

// Table returns a copy of the projected table.
func (l *Live) Table() table.Table {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tbl
}

// Cart returns the composing cart, creating it on first use.
func (l *Live) Cart() *cart.Cart {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.basket == nil {
		l.basket = cart.New()
	}
	return l.basket
}

// Editing reports whether a rectify is mid-flight: the order sits in
// INITIATED until the customer resubmits, abandons, or staff intervenes.
func (l *Live) Editing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.editing
}

// ConnStatus exposes transport health as a status, never as per-attempt
// errors.
func (l *Live) ConnStatus() realtime.Status { return l.conn.Status() }

// Polling reports whether the fallback poller is live.
func (l *Live) Polling() bool { return l.poller.Running() }

// Send serializes the cart as one submission. With no order yet it opens
// one; mid-rectify it atomically replaces the pending set; otherwise it
// appends. On failure the cart is preserved so nothing is re-typed.
func (l *Live) Send(ctx context.Context) error {
	l.mu.Lock()
	if l.basket == nil || l.basket.Empty() {
		l.mu.Unlock()
		return ErrEmptyCart
	}
	lines := l.basket.Lines()
	editing := l.editing
	var orderID string
	if l.ord != nil {
		orderID = l.ord.ID
	}
	tableID := l.tableID
	l.mu.Unlock()

	var snap *order.Snapshot
	var err error
	switch {
	case orderID == "":
		snap, err = l.client.CreateOrder(ctx, tableID, lines)
	case editing:
		snap, err = l.client.ReplacePending(ctx, orderID, lines)
	default:
		snap, err = l.client.SubmitItems(ctx, orderID, lines)
	}
	if err != nil {
		return err
	}

	l.applyOrderSnapshot(snap)
	l.mu.Lock()
	l.basket = nil
	l.editing = false
	l.mu.Unlock()
	return nil
}

// BeginRectify reopens a RECEIVED order for editing. Outside that window it
// fails locally, before any network call.
func (l *Live) BeginRectify(ctx context.Context) error {
	l.mu.Lock()
	if l.ord == nil || !l.ord.Status.CanRectify() {
		l.mu.Unlock()
		return ErrNotEditable
	}
	orderID := l.ord.ID
	l.mu.Unlock()

	snap, err := l.client.AdvanceOrder(ctx, orderID, order.StatusInitiated)
	if err != nil {
		return err
	}
	l.applyOrderSnapshot(snap)

	l.mu.Lock()
	l.basket = cart.FromSubmissions(snap.Order.Submissions)
	l.editing = true
	l.mu.Unlock()
	return nil
}

// AbandonEdit drops the cart without resubmitting. The order stays in
// INITIATED until someone moves it; there is deliberately no timeout here.
func (l *Live) AbandonEdit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.basket = nil
	l.editing = false
}

// AdvanceOrder is the staff action. The legality check selects usable
// affordances; the service stays authoritative.
func (l *Live) AdvanceOrder(ctx context.Context, next order.Status) error {
	l.mu.Lock()
	if l.ord == nil {
		l.mu.Unlock()
		return order.ErrNotFound
	}
	if !l.ord.Status.CanAdvanceTo(next) {
		l.mu.Unlock()
		return ErrBadTransition
	}
	orderID := l.ord.ID
	l.mu.Unlock()

	snap, err := l.client.AdvanceOrder(ctx, orderID, next)
	if err != nil {
		return err
	}
	l.applyOrderSnapshot(snap)
	return nil
}

// CancelOrder terminates the order and frees the table.
func (l *Live) CancelOrder(ctx context.Context) error {
	l.mu.Lock()
	if l.ord == nil {
		l.mu.Unlock()
		return order.ErrNotFound
	}
	orderID := l.ord.ID
	l.mu.Unlock()

	snap, err := l.client.CancelOrder(ctx, orderID)
	if err != nil {
		return err
	}
	l.applyOrderSnapshot(snap)
	return nil
}

// AdvanceTable is the explicit staff table action (seat, request bill,
// clear, out of service).
func (l *Live) AdvanceTable(ctx context.Context, next table.Status) error {
	l.mu.Lock()
	if !l.tbl.Status.CanAdvanceTo(next) {
		l.mu.Unlock()
		return ErrBadTransition
	}
	// seated statuses require an attached order; occupancy starts with the
	// first send, never by hand
	if !next.Vacant() && l.tbl.ActiveOrderID == nil {
		l.mu.Unlock()
		return ErrBadTransition
	}
	tableID := l.tableID
	l.mu.Unlock()

	snap, err := l.client.AdvanceTable(ctx, tableID, next)
	if err != nil {
		return err
	}
	l.applyTableSnapshot(snap)
	return nil
}

// RequestBill moves the table to REQUESTING_BILL.
func (l *Live) RequestBill(ctx context.Context) error {
	return l.AdvanceTable(ctx, table.StatusRequestingBill)
}

// fetchOnce is the poller tick: pull authoritative state, apply it, report
// whether the session is over.
func (l *Live) fetchOnce(ctx context.Context) (bool, error) {
	state, err := l.client.FetchSession(ctx, l.code)
	if err != nil {
		return false, err
	}
	l.applyState(state)

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ord != nil && l.ord.Status.Terminal(), nil
}

func (l *Live) applyState(s *State) {
	l.applyTableSnapshot(&s.Table)
	if s.Order != nil {
		l.applyOrderSnapshot(s.Order)
	}
}

// handleDelivery decodes a pushed event. Events for sessions this client no
// longer tracks fall through silently.
func (l *Live) handleDelivery(d realtime.Delivery) {
	var env realtime.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		log.Printf("[session] bad event payload on %s: %v", d.RoutingKey, err)
		return
	}
	switch env.Event {
	case realtime.EventOrderStateChanged, realtime.EventSubmissionStateChanged:
		var snap order.Snapshot
		if err := json.Unmarshal(env.Payload, &snap); err != nil {
			log.Printf("[session] bad %s payload: %v", env.Event, err)
			return
		}
		l.applyOrderSnapshot(&snap)
	case realtime.EventTableStateChanged:
		var snap table.Snapshot
		if err := json.Unmarshal(env.Payload, &snap); err != nil {
			log.Printf("[session] bad %s payload: %v", env.Event, err)
			return
		}
		l.applyTableSnapshot(&snap)
	}
}

// applyOrderSnapshot is the single write path for the order projection:
// last writer by observed_at wins, repeated application is a no-op.
func (l *Live) applyOrderSnapshot(snap *order.Snapshot) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if snap.Order.TableID != l.tableID {
		l.mu.Unlock()
		return
	}
	if l.ord != nil && l.ord.ID != snap.Order.ID {
		// another seating's order; this session is done with its own
		l.mu.Unlock()
		return
	}
	if l.ord != nil && snap.ObservedAt.Before(l.ordObserved) {
		l.mu.Unlock()
		return
	}
	adopted := l.ord == nil
	cp := snap.Order
	cp.Submissions = append([]order.Submission(nil), snap.Order.Submissions...)
	l.ord = &cp
	l.ordObserved = snap.ObservedAt

	// derive occupancy from the order unless a newer table report exists
	if !snap.ObservedAt.Before(l.tblObserved) {
		if err := l.tbl.Apply(cp.ID, cp.Status); err == nil {
			l.tblObserved = snap.ObservedAt
		}
	}
	terminal := cp.Status.Terminal()
	if terminal {
		l.basket = nil
		l.editing = false
	}
	orderID := cp.ID
	l.mu.Unlock()

	if adopted {
		l.conn.Join(realtime.Room{Kind: realtime.RoomOrder, ID: orderID})
	}
	if terminal {
		l.poller.Stop()
	} else {
		l.poller.Start()
	}
}

func (l *Live) applyTableSnapshot(snap *table.Snapshot) {
	l.mu.Lock()
	if l.closed || snap.Table.ID != l.tableID {
		l.mu.Unlock()
		return
	}
	if snap.ObservedAt.Before(l.tblObserved) {
		l.mu.Unlock()
		return
	}
	l.tbl = snap.Table
	l.tblObserved = snap.ObservedAt

	// a table report can be the first we hear of a new order
	var joinOrder string
	if l.ord == nil && snap.Table.ActiveOrderID != nil {
		joinOrder = *snap.Table.ActiveOrderID
	}
	l.mu.Unlock()

	if joinOrder != "" {
		l.conn.Join(realtime.Room{Kind: realtime.RoomOrder, ID: joinOrder})
		l.poller.Start()
	}
}
