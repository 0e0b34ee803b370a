package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dromero/qrmesa/internal/order"
	"github.com/dromero/qrmesa/internal/realtime"
	"github.com/dromero/qrmesa/internal/table"
)

func init() {
	log.SetOutput(io.Discard)
}

//
// ---------- FAKE WIRE ----------
//

type fakeWire struct {
	mu         sync.Mutex
	binds      map[string]bool
	deliveries chan realtime.Delivery
	closed     chan error
}

func newFakeWire() *fakeWire {
	return &fakeWire{
		binds:      map[string]bool{},
		deliveries: make(chan realtime.Delivery, 16),
		closed:     make(chan error, 2),
	}
}

func (w *fakeWire) Bind(key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.binds[key] = true
	return nil
}

func (w *fakeWire) Unbind(key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.binds, key)
	return nil
}

func (w *fakeWire) Publish(context.Context, string, []byte) error { return nil }
func (w *fakeWire) Deliveries() <-chan realtime.Delivery          { return w.deliveries }
func (w *fakeWire) Closed() <-chan error                          { return w.closed }
func (w *fakeWire) Close() error                                  { return nil }

// push injects an event as if the broker routed it to this client.
func (w *fakeWire) push(t *testing.T, event string, observedAt time.Time, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	body, err := json.Marshal(realtime.Envelope{Event: event, ObservedAt: observedAt, Payload: raw})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	w.deliveries <- realtime.Delivery{Body: body}
}

func newTestConn() (*realtime.Conn, *fakeWire, *realtime.Rooms) {
	w := newFakeWire()
	rooms := realtime.NewRooms()
	conn := realtime.NewConn(func() (realtime.Wire, error) { return w, nil }, rooms)
	return conn, w, rooms
}

//
// ---------- FAKE MESA-SERVICE ----------
//

// fakeService keeps one table session in memory, the way the real service
// would hold it in Postgres.
type fakeService struct {
	mu    sync.Mutex
	code  string
	tbl   table.Table
	ord   *order.Order
	clock time.Time

	calls       map[string]int // method+path -> count
	failReplace bool
}

func newFakeService(code, tableID string) *fakeService {
	return &fakeService{
		code: code,
		tbl: table.Table{
			ID: tableID, LocationID: "L-1", Capacity: 4,
			Status: table.StatusAvailable, UpdatedAt: time.Unix(1000, 0).UTC(),
		},
		clock: time.Unix(1000, 0).UTC(),
		calls: map[string]int{},
	}
}

func (f *fakeService) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeService) count(r *http.Request) {
	f.calls[r.Method+" "+r.URL.Path]++
}

func (f *fakeService) totalCalls(substr string) int {
	n := 0
	for k, v := range f.calls {
		if strings.Contains(k, substr) {
			n += v
		}
	}
	return n
}

func (f *fakeService) state() State {
	st := State{Table: table.Snapshot{Table: f.tbl, ObservedAt: f.tbl.UpdatedAt}}
	if f.ord != nil {
		cp := *f.ord
		st.Order = &order.Snapshot{Order: cp, ObservedAt: cp.UpdatedAt}
	}
	return st
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/qr/resolve", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.count(r)
		var req struct {
			Code string `json:"code"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Code != f.code {
			http.Error(w, `{"error":"unknown code"}`, http.StatusNotFound)
			return
		}
		res := Resolution{LocationID: f.tbl.LocationID, TableID: f.tbl.ID, OrderID: f.tbl.ActiveOrderID}
		_ = json.NewEncoder(w).Encode(res)
	})

	mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.count(r)
		if strings.TrimPrefix(r.URL.Path, "/sessions/") != f.code {
			http.Error(w, `{"error":"unknown code"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(f.state())
	})

	mux.HandleFunc("/tables/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.count(r)
		if !strings.HasSuffix(r.URL.Path, "/orders") || r.Method != http.MethodPost {
			http.Error(w, `{"error":"not implemented"}`, http.StatusNotFound)
			return
		}
		if f.ord != nil {
			http.Error(w, `{"error":"table busy"}`, http.StatusConflict)
			return
		}
		var req order.SubmitRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		now := f.tick()
		o := &order.Order{
			ID: "O-99", TableID: f.tbl.ID, LocationID: f.tbl.LocationID,
			Status: order.StatusReceived,
			Submissions: []order.Submission{{
				ID: uuid.NewString(), OrderID: "O-99", Status: order.SubPending,
				Lines: req.ToLines(), CreatedAt: now,
			}},
			CreatedAt: now, UpdatedAt: now,
		}
		o.RecomputeTotal()
		f.ord = o
		_ = f.tbl.Apply(o.ID, o.Status)
		f.tbl.UpdatedAt = now
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(order.Snapshot{Order: *o, ObservedAt: now})
	})

	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.count(r)
		if f.ord == nil || !strings.HasPrefix(r.URL.Path, "/orders/"+f.ord.ID) {
			http.Error(w, `{"error":"order not found"}`, http.StatusNotFound)
			return
		}
		now := f.tick()
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/submissions"):
			var req order.SubmitRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			f.ord.Submissions = append(f.ord.Submissions, order.Submission{
				ID: uuid.NewString(), OrderID: f.ord.ID, Status: order.SubPending,
				Lines: req.ToLines(), CreatedAt: now,
			})
			f.ord.Status = order.StatusReceived
		case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/submissions"):
			if f.failReplace {
				http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
				return
			}
			if f.ord.Status != order.StatusInitiated && f.ord.Status != order.StatusReceived {
				http.Error(w, `{"error":"not editable"}`, http.StatusConflict)
				return
			}
			var req order.ReplaceRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			var kept []order.Submission
			for _, s := range f.ord.Submissions {
				if s.Status != order.SubPending {
					kept = append(kept, s)
				}
			}
			f.ord.Submissions = append(kept, order.Submission{
				ID: uuid.NewString(), OrderID: f.ord.ID, Status: order.SubPending,
				Lines: req.ToLines(), CreatedAt: now,
			})
			f.ord.Status = order.StatusReceived
		case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/status"):
			var req order.StatusRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if !f.ord.Status.CanAdvanceTo(req.Status) {
				http.Error(w, `{"error":"invalid transition"}`, http.StatusConflict)
				return
			}
			f.ord.Status = req.Status
		case r.Method == http.MethodDelete:
			f.ord.Status = order.StatusCancelled
		default:
			http.Error(w, `{"error":"not implemented"}`, http.StatusNotFound)
			return
		}
		f.ord.UpdatedAt = now
		f.ord.RecomputeTotal()
		_ = f.tbl.Apply(f.ord.ID, f.ord.Status)
		f.tbl.UpdatedAt = now
		_ = json.NewEncoder(w).Encode(order.Snapshot{Order: *f.ord, ObservedAt: now})
	})

	return mux
}

func openLive(t *testing.T, f *fakeService) (*Live, *fakeWire, *realtime.Rooms, func()) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	conn, wire, rooms := newTestConn()
	l, err := Open(context.Background(), NewClient(srv.URL), conn, f.code)
	if err != nil {
		srv.Close()
		t.Fatalf("open: %v", err)
	}
	return l, wire, rooms, func() {
		l.Close()
		srv.Close()
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

//
// ---------- TESTS ----------
//

func TestOpenInvalidCodeIsFatal(t *testing.T) {
	t.Parallel()

	f := newFakeService("QR-ABC123", "T-7")
	srv := httptest.NewServer(f.handler())
	defer srv.Close()
	conn, _, _ := newTestConn()

	_, err := Open(context.Background(), NewClient(srv.URL), conn, "QR-WRONG")
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("err=%v, esperaba ErrInvalidCode", err)
	}
	// fatal-for-this-session: exactamente un intento de resolución
	if n := f.totalCalls("/qr/resolve"); n != 1 {
		t.Fatalf("resolve calls=%d, no debe reintentar", n)
	}
}

func TestOpenWithoutOrderIsValid(t *testing.T) {
	t.Parallel()

	f := newFakeService("QR-ABC123", "T-7")
	l, _, rooms, done := openLive(t, f)
	defer done()

	if l.Order() != nil {
		t.Fatal("aún no hay orden")
	}
	if got := l.Table(); got.ID != "T-7" || got.Status != table.StatusAvailable {
		t.Fatalf("table=%+v", got)
	}
	if !rooms.Contains(realtime.Room{Kind: realtime.RoomTable, ID: "T-7"}) {
		t.Fatal("debe unirse al room de la mesa")
	}
	if rooms.Len() != 1 {
		t.Fatalf("rooms=%d, sin orden no hay room de orden", rooms.Len())
	}
}

func TestAdvanceTableSeatWithoutOrderRejectedLocally(t *testing.T) {
	t.Parallel()

	f := newFakeService("QR-1", "T-1")
	l, _, _, done := openLive(t, f)
	defer done()

	// ocupar la mesa a mano sin orden viola ocupada⇔con-orden: se corta
	// antes de tocar la red
	before := f.totalCalls("PUT /tables/")
	if err := l.AdvanceTable(context.Background(), table.StatusOccupied); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("err=%v, esperaba ErrBadTransition", err)
	}
	if got := f.totalCalls("PUT /tables/"); got != before {
		t.Fatal("el rechazo local no debe tocar la red")
	}
	if got := l.Table().Status; got != table.StatusAvailable {
		t.Fatalf("table status=%s, no debía moverse", got)
	}
}

// Full happy path: scan, order 2x Pizza + 1x Soda, staff advances, rectify
// refused client-side.
func TestScenarioPizzaSoda(t *testing.T) {
	t.Parallel()

	f := newFakeService("QR-ABC123", "T-7")
	l, _, rooms, done := openLive(t, f)
	defer done()

	c := l.Cart()
	c.Add("pizza", "Pizza", 2, "", "14000")
	c.Add("soda", "Soda", 1, "", "2000")
	if err := l.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}

	o := l.Order()
	if o == nil || o.ID != "O-99" {
		t.Fatalf("order=%+v", o)
	}
	if o.Status != order.StatusReceived {
		t.Fatalf("status=%s, esperaba RECEIVED", o.Status)
	}
	if len(o.Submissions) != 1 {
		t.Fatalf("submissions=%d, esperaba 1", len(o.Submissions))
	}
	if o.Total != "30000" {
		t.Fatalf("total=%s, esperaba 30000", o.Total)
	}
	if got := l.Table().Status; got != table.StatusInKitchen {
		t.Fatalf("table status=%s, esperaba IN_KITCHEN tras RECEIVED", got)
	}
	if !rooms.Contains(realtime.Room{Kind: realtime.RoomOrder, ID: "O-99"}) {
		t.Fatal("debe unirse al room de la orden")
	}

	// staff advances; rectify must now fail locally, with no network call
	if err := l.AdvanceOrder(context.Background(), order.StatusInPreparation); err != nil {
		t.Fatalf("advance: %v", err)
	}
	statusCalls := f.totalCalls("PUT /orders/O-99/status")
	if err := l.BeginRectify(context.Background()); !errors.Is(err, ErrNotEditable) {
		t.Fatalf("err=%v, esperaba ErrNotEditable", err)
	}
	if got := f.totalCalls("PUT /orders/O-99/status"); got != statusCalls {
		t.Fatalf("rectify rechazado localmente no debe tocar la red (%d -> %d)", statusCalls, got)
	}
}

// Rectification safety: S1={2x Burger}, S2={1x Cola}; edit to {3x Burger,
// 1x Cola, 1x Fries}; the server must end with exactly one pending
// submission holding those three lines.
func TestRectifyResubmitReplacesPendingSet(t *testing.T) {
	t.Parallel()

	f := newFakeService("QR-1", "T-1")
	l, _, _, done := openLive(t, f)
	defer done()

	c := l.Cart()
	c.Add("burger", "Burger", 2, "", "12000")
	if err := l.Send(context.Background()); err != nil {
		t.Fatalf("send 1: %v", err)
	}
	c = l.Cart()
	c.Add("cola", "Cola", 1, "", "2000")
	if err := l.Send(context.Background()); err != nil {
		t.Fatalf("send 2: %v", err)
	}
	if got := len(l.Order().Submissions); got != 2 {
		t.Fatalf("submissions=%d antes de rectificar", got)
	}

	if err := l.BeginRectify(context.Background()); err != nil {
		t.Fatalf("rectify: %v", err)
	}
	if !l.Editing() {
		t.Fatal("debe quedar en modo edición")
	}
	if l.Order().Status != order.StatusInitiated {
		t.Fatalf("status=%s, rectify debe volver a INITIATED", l.Order().Status)
	}

	// el carrito llega pre-poblado y agregado
	c = l.Cart()
	if c.Quantity("burger") != 2 || c.Quantity("cola") != 1 {
		t.Fatalf("cart burger=%d cola=%d", c.Quantity("burger"), c.Quantity("cola"))
	}
	c.SetQuantity("burger", 3)
	c.Add("fries", "Fries", 1, "", "5000")
	if err := l.Send(context.Background()); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if got := len(f.ord.Submissions); got != 1 {
		t.Fatalf("el servidor tiene %d submissions, esperaba exactamente 1", got)
	}
	lines := f.ord.Submissions[0].Lines
	if len(lines) != 3 {
		t.Fatalf("lines=%d, esperaba 3", len(lines))
	}
	want := map[string]int{"burger": 3, "cola": 1, "fries": 1}
	for _, ln := range lines {
		if want[ln.ProductID] != ln.Quantity {
			t.Fatalf("%s qty=%d, esperaba %d", ln.ProductID, ln.Quantity, want[ln.ProductID])
		}
	}
	if f.ord.Status != order.StatusReceived {
		t.Fatalf("status=%s tras resubmit", f.ord.Status)
	}
}

func TestResubmitFailurePreservesCart(t *testing.T) {
	t.Parallel()

	f := newFakeService("QR-1", "T-1")
	l, _, _, done := openLive(t, f)
	defer done()

	c := l.Cart()
	c.Add("burger", "Burger", 2, "", "12000")
	if err := l.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := l.BeginRectify(context.Background()); err != nil {
		t.Fatalf("rectify: %v", err)
	}

	f.mu.Lock()
	f.failReplace = true
	f.mu.Unlock()

	c = l.Cart()
	c.Add("fries", "Fries", 1, "", "5000")
	if err := l.Send(context.Background()); err == nil {
		t.Fatal("el resubmit debía fallar")
	}
	// carrito intacto, orden sigue en INITIATED, modo edición vivo
	if got := l.Cart().Quantity("fries"); got != 1 {
		t.Fatalf("fries=%d, el carrito no debe perderse", got)
	}
	if l.Order().Status != order.StatusInitiated {
		t.Fatalf("status=%s, debe seguir INITIATED", l.Order().Status)
	}
	if !l.Editing() {
		t.Fatal("debe seguir en edición para reintentar")
	}

	f.mu.Lock()
	f.failReplace = false
	f.mu.Unlock()
	if err := l.Send(context.Background()); err != nil {
		t.Fatalf("reintento: %v", err)
	}
	if l.Editing() {
		t.Fatal("tras el éxito vuelve a solo-lectura")
	}
}

func TestSendEmptyCartRejectedLocally(t *testing.T) {
	t.Parallel()

	f := newFakeService("QR-1", "T-1")
	l, _, _, done := openLive(t, f)
	defer done()

	before := f.totalCalls("POST ")
	if err := l.Send(context.Background()); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("err=%v, esperaba ErrEmptyCart", err)
	}
	if got := f.totalCalls("POST "); got != before {
		t.Fatal("un carrito vacío no debe tocar la red")
	}
}

func TestAbandonEditKeepsOrderInitiated(t *testing.T) {
	t.Parallel()

	f := newFakeService("QR-1", "T-1")
	l, _, _, done := openLive(t, f)
	defer done()

	l.Cart().Add("burger", "Burger", 1, "", "12000")
	if err := l.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := l.BeginRectify(context.Background()); err != nil {
		t.Fatalf("rectify: %v", err)
	}
	l.AbandonEdit()
	if l.Editing() {
		t.Fatal("abandonar sale del modo edición")
	}
	// la orden queda en INITIATED hasta que alguien la mueva; no hay timeout
	if l.Order().Status != order.StatusInitiated {
		t.Fatalf("status=%s", l.Order().Status)
	}
}

// Convergence: pushes and polls race; whatever carries the newest
// observed_at wins, duplicates and stale reorderings are no-ops.
func TestConvergenceLastRecencyWins(t *testing.T) {
	t.Parallel()

	f := newFakeService("QR-1", "T-7")
	l, wire, _, done := openLive(t, f)
	defer done()

	l.Cart().Add("pizza", "Pizza", 1, "", "14000")
	if err := l.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}
	base := l.Order().UpdatedAt

	mk := func(status order.Status, at time.Time) *order.Snapshot {
		o := *l.Order()
		o.Status = status
		o.UpdatedAt = at
		return &order.Snapshot{Order: o, ObservedAt: at}
	}

	newer := mk(order.StatusInPreparation, base.Add(10*time.Second))
	stale := mk(order.StatusReceived, base.Add(5*time.Second))

	// newer push first, then a stale one arrives late: projection keeps newer
	l.applyOrderSnapshot(newer)
	l.applyOrderSnapshot(stale)
	if got := l.Order().Status; got != order.StatusInPreparation {
		t.Fatalf("status=%s, un estado más viejo no debe pisar al nuevo", got)
	}
	// repeated application is idempotent
	l.applyOrderSnapshot(newer)
	l.applyOrderSnapshot(newer)
	if got := l.Order().Status; got != order.StatusInPreparation {
		t.Fatalf("status=%s tras duplicados", got)
	}

	// the same rule holds for events arriving over the wire
	ready := mk(order.StatusReady, base.Add(20*time.Second))
	wire.push(t, realtime.EventOrderStateChanged, ready.ObservedAt, ready)
	waitFor(t, func() bool { return l.Order().Status == order.StatusReady },
		"el push nunca se aplicó")
	wire.push(t, realtime.EventOrderStateChanged, stale.ObservedAt, stale)
	time.Sleep(20 * time.Millisecond)
	if got := l.Order().Status; got != order.StatusReady {
		t.Fatalf("status=%s, push viejo no debe aplicar", got)
	}
}

func TestEventsForOtherSessionsAreIgnored(t *testing.T) {
	t.Parallel()

	f := newFakeService("QR-1", "T-7")
	l, wire, _, done := openLive(t, f)
	defer done()

	l.Cart().Add("pizza", "Pizza", 1, "", "14000")
	if err := l.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}

	other := *l.Order()
	other.ID = "O-extranjera"
	other.TableID = "T-otra"
	other.Status = order.StatusCancelled
	wire.push(t, realtime.EventOrderStateChanged, time.Now().Add(time.Hour),
		&order.Snapshot{Order: other, ObservedAt: time.Now().Add(time.Hour)})

	time.Sleep(20 * time.Millisecond)
	if got := l.Order(); got.ID != "O-99" || got.Status != order.StatusReceived {
		t.Fatalf("order=%+v, un evento ajeno no debe tocar la proyección", got)
	}
}

func TestTableEventAnnouncesNewOrder(t *testing.T) {
	t.Parallel()

	f := newFakeService("QR-1", "T-7")
	l, wire, rooms, done := openLive(t, f)
	defer done()

	if l.Order() != nil {
		t.Fatal("sin orden al abrir")
	}
	// otro dispositivo creó la orden; nos enteramos por el room de la mesa
	oid := "O-55"
	tbl := l.Table()
	tbl.ActiveOrderID = &oid
	tbl.Status = table.StatusInKitchen
	wire.push(t, realtime.EventTableStateChanged, time.Now().UTC(),
		&table.Snapshot{Table: tbl, ObservedAt: time.Now().UTC()})

	waitFor(t, func() bool {
		return rooms.Contains(realtime.Room{Kind: realtime.RoomOrder, ID: "O-55"})
	}, "debe unirse al room de la orden anunciada")
	if !l.Polling() {
		t.Fatal("con orden viva el poller debe arrancar")
	}
}

func TestPollerStopsAtTerminalPush(t *testing.T) {
	t.Parallel()

	f := newFakeService("QR-1", "T-7")
	l, wire, _, done := openLive(t, f)
	defer done()

	l.Cart().Add("pizza", "Pizza", 1, "", "14000")
	if err := l.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !l.Polling() {
		t.Fatal("con una submission pendiente el poller corre")
	}

	final := *l.Order()
	final.Status = order.StatusCancelled
	at := final.UpdatedAt.Add(time.Minute)
	final.UpdatedAt = at
	wire.push(t, realtime.EventOrderStateChanged, at, &order.Snapshot{Order: final, ObservedAt: at})

	waitFor(t, func() bool { return !l.Polling() },
		"el poller debe apagarse en estado terminal")
	if got := l.Table(); !got.Status.Vacant() || got.ActiveOrderID != nil {
		t.Fatalf("la mesa debe liberarse: %+v", got)
	}
}

func TestPollOverwritesMissedPush(t *testing.T) {
	t.Parallel()

	f := newFakeService("QR-1", "T-7")
	l, _, _, done := openLive(t, f)
	defer done()

	l.Cart().Add("pizza", "Pizza", 1, "", "14000")
	if err := l.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}

	// the kitchen advanced but the push got lost; only the poll can tell
	f.mu.Lock()
	f.ord.Status = order.StatusInPreparation
	f.ord.UpdatedAt = f.tick()
	f.mu.Unlock()

	done2, err := l.fetchOnce(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if done2 {
		t.Fatal("IN_PREPARATION no es terminal")
	}
	if got := l.Order().Status; got != order.StatusInPreparation {
		t.Fatalf("status=%s, el poll debe sobrescribir la proyección", got)
	}
}
