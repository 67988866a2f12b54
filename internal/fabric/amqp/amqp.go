// Package amqp adapts Fabric onto a real broker speaking AMQP 0.9.1, per
// SPEC_FULL.md §7 ("Message bus: AMQP 0.9.1 topic exchanges"). No example
// repo in the retrieval pack imports an AMQP client, so this adaptor is
// built on github.com/rabbitmq/amqp091-go — the canonical Go client for the
// wire protocol the spec names — rather than invented from scratch; see
// DESIGN.md for why this one out-of-pack dependency was added. Every queue
// in fabric.Queues is declared durable/non-auto-delete with the TTL,
// max-length, overflow and dead-letter arguments the spec table requires.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"mastertrade/internal/domain"
	"mastertrade/internal/fabric"
	"mastertrade/internal/obs/logger"
)

// Fabric adapts a single AMQP connection/channel onto fabric.Fabric.
type Fabric struct {
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

// Dial connects to brokerURL and declares the full topology from
// fabric.Queues (exchanges, queues, bindings, DLQ arguments).
func Dial(brokerURL string) (*Fabric, error) {
	conn, err := amqp091.Dial(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("fabric/amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("fabric/amqp: channel: %w", err)
	}

	f := &Fabric{conn: conn, ch: ch}
	if err := f.declareTopology(); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return f, nil
}

func (f *Fabric) declareTopology() error {
	exchanges := map[string]bool{
		fabric.ExchangeMarket:  true,
		fabric.ExchangeTrading: true,
		fabric.ExchangeOrders:  true,
		fabric.ExchangeRisk:    true,
		fabric.ExchangeSystem:  true,
		fabric.ExchangeDLX:     true,
	}
	for name := range exchanges {
		if err := f.ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("fabric/amqp: declare exchange %s: %w", name, err)
		}
	}

	for _, q := range fabric.Queues {
		args := amqp091.Table{}
		if q.TTL > 0 {
			args["x-message-ttl"] = q.TTL.Milliseconds()
		}
		if q.MaxLength > 0 {
			args["x-max-length"] = q.MaxLength
			if q.Overflow == fabric.OverflowDropHead {
				args["x-overflow"] = "drop-head"
			} else {
				args["x-overflow"] = "reject-publish"
			}
		}
		if q.DeadLettered {
			args["x-dead-letter-exchange"] = fabric.ExchangeDLX
			args["x-dead-letter-routing-key"] = "dlq." + q.Name
		}
		if _, err := f.ch.QueueDeclare(q.Name, true, false, false, false, args); err != nil {
			return fmt.Errorf("fabric/amqp: declare queue %s: %w", q.Name, err)
		}
		if err := f.ch.QueueBind(q.Name, q.RoutingKey, q.Exchange, false, nil); err != nil {
			return fmt.Errorf("fabric/amqp: bind queue %s: %w", q.Name, err)
		}
	}
	return nil
}

// Publish marshals msg as JSON and publishes it persistently.
func (f *Fabric) Publish(ctx context.Context, exchange, routingKey string, msg domain.RawMessage) error {
	msg.Persistent = true
	msg.RoutingKey = routingKey
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("fabric/amqp: marshal: %w", err)
	}
	return f.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(msg.Type),
		Body:         body,
	})
}

// Consume subscribes to queue with manual acknowledgment and the given
// prefetch (QoS) count.
func (f *Fabric) Consume(ctx context.Context, queue string, prefetch int, h fabric.Handler) error {
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := f.ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("fabric/amqp: qos: %w", err)
	}
	deliveries, err := f.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("fabric/amqp: consume %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			var raw domain.RawMessage
			if err := json.Unmarshal(d.Body, &raw); err != nil {
				logger.Errorf("fabric/amqp: malformed payload on %s, dropping: %v", queue, err)
				d.Nack(false, false) // Permanent.Parse: no requeue, routes to DLQ
				continue
			}
			del := fabric.NewDelivery(raw,
				func() { d.Ack(false) },
				func(requeue bool) { d.Nack(false, requeue) },
			)
			if err := h(ctx, del); err != nil {
				del.Nack(true)
			} else {
				del.Ack()
			}
		}
	}
}

// Close releases the channel and connection.
func (f *Fabric) Close() error {
	if f.ch != nil {
		f.ch.Close()
	}
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
