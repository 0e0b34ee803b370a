package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"
)

// Wire is one established link to the events broker. The AMQP implementation
// lives in amqp.go; tests drive Conn with a fake.
type Wire interface {
	// Bind subscribes the client's queue to a room's routing key.
	Bind(routingKey string) error
	Unbind(routingKey string) error
	Publish(ctx context.Context, routingKey string, body []byte) error
	// Deliveries yields pushed messages until the wire drops.
	Deliveries() <-chan Delivery
	// Closed fires once when the wire is lost.
	Closed() <-chan error
	Close() error
}

// Dialer establishes a fresh Wire.
type Dialer func() (Wire, error)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

const (
	backoffMin = 1 * time.Second
	backoffMax = 5 * time.Second
)

// Conn is the process-scoped push connection. It is reference-counted by the
// sessions using it: the first Acquire dials, the last Release hangs up.
// While acquired it reconnects forever, replaying the room set on every
// successful dial before any connect observer runs.
type Conn struct {
	dial  Dialer
	rooms *Rooms

	mu           sync.Mutex
	wire         Wire
	status       Status
	refs         int
	cancel       context.CancelFunc
	onConnect    []func()
	onDisconnect []func(error)
	handlers     map[int]func(Delivery)
	nextHandler  int

	backoffMin time.Duration
	backoffMax time.Duration
}

func NewConn(dial Dialer, rooms *Rooms) *Conn {
	return &Conn{dial: dial, rooms: rooms, status: StatusDisconnected,
		handlers: map[int]func(Delivery){},
		backoffMin: backoffMin, backoffMax: backoffMax}
}

// Handle registers a delivery callback and returns its unregister func.
// Every handler sees every delivery; sessions filter by their own order and
// table ids, and unregister when they close.
func (c *Conn) Handle(fn func(Delivery)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextHandler
	c.nextHandler++
	c.handlers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

func (c *Conn) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

func (c *Conn) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Conn) Connected() bool { return c.Status() == StatusConnected }

// Acquire takes a reference. The first caller starts the connect loop; it is
// a no-op while already connecting or connected.
func (c *Conn) Acquire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs++
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.status = StatusConnecting
	go c.run(ctx)
}

// Release drops a reference; at zero the wire is closed and the loop stops.
func (c *Conn) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refs > 0 {
		c.refs--
	}
	if c.refs > 0 || c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	if c.wire != nil {
		_ = c.wire.Close()
		c.wire = nil
	}
	c.status = StatusDisconnected
}

// Join subscribes to a room. Always recorded; bound immediately when the wire
// is up. Bind failures are logged, never returned: the reconnect replay will
// repair them.
func (c *Conn) Join(room Room) {
	if !c.rooms.Add(room) {
		return
	}
	c.mu.Lock()
	w := c.wire
	c.mu.Unlock()
	if w == nil {
		return
	}
	if err := w.Bind(room.RoutingKey()); err != nil {
		log.Printf("[realtime] join %s failed: %v", room.Key(), err)
	}
}

// Leave unsubscribes. Unbind failures are logged only; a dropped wire forgets
// its bindings anyway.
func (c *Conn) Leave(room Room) {
	if !c.rooms.Remove(room) {
		return
	}
	c.mu.Lock()
	w := c.wire
	c.mu.Unlock()
	if w == nil {
		return
	}
	if err := w.Unbind(room.RoutingKey()); err != nil {
		log.Printf("[realtime] leave %s failed: %v", room.Key(), err)
	}
}

// Emit publishes fire-and-forget. While the wire is down the message is
// dropped; the caller never sees an error either way.
func (c *Conn) Emit(ctx context.Context, routingKey string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[realtime] emit %s: marshal: %v", routingKey, err)
		return
	}
	c.mu.Lock()
	w := c.wire
	c.mu.Unlock()
	if w == nil {
		log.Printf("[realtime] emit %s dropped: disconnected", routingKey)
		return
	}
	if err := w.Publish(ctx, routingKey, body); err != nil {
		log.Printf("[realtime] emit %s failed: %v", routingKey, err)
	}
}

// run dials, pumps, and redials until the context is cancelled. Retries are
// unbounded; a floor device is never asked to reconnect by hand.
func (c *Conn) run(ctx context.Context) {
	backoff := c.backoffMin
	for {
		w, err := c.dial()
		if err != nil {
			log.Printf("[realtime] dial failed, retry in %s: %v", backoff, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > c.backoffMax {
				backoff = c.backoffMax
			}
			continue
		}
		// Publish the wire before replaying, so a Join racing the replay
		// binds itself. A room bound twice is harmless; a room bound never
		// loses events until the next reconnect.
		c.mu.Lock()
		c.wire = w
		c.mu.Unlock()

		// Replay every tracked room before anyone hears about the connect,
		// so routing is fully restored with no caller involvement.
		for _, room := range c.rooms.Snapshot() {
			if err := w.Bind(room.RoutingKey()); err != nil {
				log.Printf("[realtime] rejoin %s failed: %v", room.Key(), err)
			}
		}

		c.mu.Lock()
		c.status = StatusConnected
		connectFns := append([]func(){}, c.onConnect...)
		c.mu.Unlock()
		for _, fn := range connectFns {
			fn()
		}

		connectedAt := time.Now()
		err = c.pump(ctx, w)

		c.mu.Lock()
		c.wire = nil
		if ctx.Err() == nil {
			c.status = StatusConnecting
		} else {
			c.status = StatusDisconnected
		}
		disconnectFns := append([]func(error){}, c.onDisconnect...)
		c.mu.Unlock()
		for _, fn := range disconnectFns {
			fn(err)
		}
		if ctx.Err() != nil {
			return
		}
		log.Printf("[realtime] connection lost: %v", err)

		// A link that died right away counts as a failed attempt: keep
		// backing off instead of hammering a broker that drops us on arrival.
		if time.Since(connectedAt) < c.backoffMax {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > c.backoffMax {
				backoff = c.backoffMax
			}
		} else {
			backoff = c.backoffMin
		}
	}
}

func (c *Conn) pump(ctx context.Context, w Wire) error {
	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return ctx.Err()
		case err := <-w.Closed():
			return err
		case d, ok := <-w.Deliveries():
			if !ok {
				select {
				case err := <-w.Closed():
					return err
				default:
					return errors.New("delivery channel closed")
				}
			}
			c.mu.Lock()
			handlers := make([]func(Delivery), 0, len(c.handlers))
			for _, fn := range c.handlers {
				handlers = append(handlers, fn)
			}
			c.mu.Unlock()
			for _, fn := range handlers {
				fn(d)
			}
		}
	}
}
