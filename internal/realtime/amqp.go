package realtime

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpWire implements Wire over one RabbitMQ channel. Each client gets an
// exclusive auto-delete queue bound to the events topic exchange; rooms are
// routing keys, so join/leave are plain bind/unbind.
type amqpWire struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string

	deliveries chan Delivery
	closed     chan error
	done       chan struct{}
	closeOnce  sync.Once
}

// AMQPDialer returns a Dialer for Conn backed by the given broker URL and
// topic exchange.
func AMQPDialer(url, exchange string) Dialer {
	return func() (Wire, error) {
		return dialAMQP(url, exchange)
	}
}

func dialAMQP(url, exchange string) (*amqpWire, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	// exclusive + auto-delete: the queue dies with the wire, bindings and all
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	w := &amqpWire{
		conn:       conn,
		ch:         ch,
		exchange:   exchange,
		queue:      q.Name,
		deliveries: make(chan Delivery),
		closed:     make(chan error, 1),
		done:       make(chan struct{}),
	}
	notify := conn.NotifyClose(make(chan *amqp.Error, 1))
	go w.forward(msgs, notify)
	return w, nil
}

func (w *amqpWire) forward(msgs <-chan amqp.Delivery, notify chan *amqp.Error) {
	defer close(w.deliveries)
	for {
		select {
		case aerr, ok := <-notify:
			if ok && aerr != nil {
				w.closed <- aerr
			} else {
				w.closed <- context.Canceled
			}
			return
		case m, ok := <-msgs:
			if !ok {
				w.closed <- context.Canceled
				return
			}
			select {
			case w.deliveries <- Delivery{RoutingKey: m.RoutingKey, Body: m.Body}:
			case <-w.done:
				w.closed <- context.Canceled
				return
			}
		}
	}
}

func (w *amqpWire) Bind(routingKey string) error {
	return w.ch.QueueBind(w.queue, routingKey, w.exchange, false, nil)
}

func (w *amqpWire) Unbind(routingKey string) error {
	return w.ch.QueueUnbind(w.queue, routingKey, w.exchange, nil)
}

func (w *amqpWire) Publish(ctx context.Context, routingKey string, body []byte) error {
	return w.ch.PublishWithContext(ctx, w.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
}

func (w *amqpWire) Deliveries() <-chan Delivery { return w.deliveries }

func (w *amqpWire) Closed() <-chan error { return w.closed }

func (w *amqpWire) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	_ = w.ch.Close()
	return w.conn.Close()
}
