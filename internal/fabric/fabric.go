package fabric

import (
	"context"

	"mastertrade/internal/domain"
)

// Delivery wraps a RawMessage with the ack/nack contract manual
// acknowledgment requires.
type Delivery struct {
	Message domain.RawMessage
	ack     func()
	nack    func(requeue bool)
}

// NewDelivery constructs a Delivery for adaptor implementations (amqp,
// inproc) outside this package; Delivery's ack/nack fields stay unexported
// so only a Fabric implementation can wire them.
func NewDelivery(msg domain.RawMessage, ack func(), nack func(requeue bool)) Delivery {
	return Delivery{Message: msg, ack: ack, nack: nack}
}

// Ack acknowledges successful processing.
func (d Delivery) Ack() { d.ack() }

// Nack rejects the message. requeue=true returns it to the queue (used on
// shutdown so another consumer, possibly after restart, picks it up);
// requeue=false is a poison-message verdict that routes it to the DLQ.
func (d Delivery) Nack(requeue bool) { d.nack(requeue) }

// Handler processes one delivery and returns nil to ack, or an error to
// nack(requeue=true) for Transient.* failures. Handlers that determine a
// message is unprocessable (Permanent.Parse) call d.Nack(false) themselves.
type Handler func(ctx context.Context, d Delivery) error

// Publisher publishes persistent messages onto a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg domain.RawMessage) error
}

// Consumer subscribes to a named queue with manual acknowledgment and a
// fixed prefetch count.
type Consumer interface {
	Consume(ctx context.Context, queue string, prefetch int, h Handler) error
}

// Fabric composes Publisher and Consumer, matching the contract a collector,
// aggregator, or executor needs against the message bus.
type Fabric interface {
	Publisher
	Consumer
	Close() error
}
