// Package inproc is an in-process Fabric implementation used by
// cmd/mastertrade and tests so the fabric's declared topology (TTL,
// max-length, overflow, DLQ routing) is exercised without a running AMQP
// broker. It honors the same queue semantics the amqp adaptor talks to a
// real broker for: durable bounded queues, manual ack, and dead-lettering
// of rejected or TTL-expired messages.
package inproc

import (
	"container/list"
	"context"
	"sync"
	"time"

	"mastertrade/internal/domain"
	"mastertrade/internal/fabric"
	"mastertrade/internal/obs/logger"
)

type queuedMsg struct {
	msg       domain.RawMessage
	enqueued  time.Time
	ttl       time.Duration
}

type queue struct {
	mu      sync.Mutex
	spec    fabric.QueueSpec
	items   *list.List // of *queuedMsg
	notify  chan struct{}
}

func newQueue(spec fabric.QueueSpec) *queue {
	return &queue{spec: spec, items: list.New(), notify: make(chan struct{}, 1)}
}

func (q *queue) push(m domain.RawMessage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.evictExpiredLocked()

	if q.spec.MaxLength > 0 && q.items.Len() >= q.spec.MaxLength {
		switch q.spec.Overflow {
		case fabric.OverflowDropHead:
			q.items.Remove(q.items.Front())
		default: // reject-publish
			return false
		}
	}
	q.items.PushBack(&queuedMsg{msg: m, enqueued: time.Now(), ttl: q.spec.TTL})
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// evictExpiredLocked drops messages whose TTL elapsed; critical queues
// (DeadLettered=true) route the expired message to the DLQ sink instead of
// silently dropping it, satisfying "no silent drops from critical queues".
func (q *queue) evictExpiredLocked() {
	if q.spec.TTL <= 0 {
		return
	}
	now := time.Now()
	for e := q.items.Front(); e != nil; {
		next := e.Next()
		qm := e.Value.(*queuedMsg)
		if now.Sub(qm.enqueued) > qm.ttl {
			q.items.Remove(e)
			if q.spec.DeadLettered {
				deadLetter(q.spec.Name, qm.msg)
			}
		}
		e = next
	}
}

func (q *queue) pop() (*queuedMsg, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.evictExpiredLocked()
	e := q.items.Front()
	if e == nil {
		return nil, false
	}
	q.items.Remove(e)
	return e.Value.(*queuedMsg), true
}

var (
	dlqMu   sync.Mutex
	dlqSink = make(map[string][]domain.RawMessage)
)

func deadLetter(fromQueue string, m domain.RawMessage) {
	dlqMu.Lock()
	defer dlqMu.Unlock()
	dlqSink[fromQueue] = append(dlqSink[fromQueue], m)
	logger.Warnf("fabric: message from %s routed to DLQ (ttl expired or rejected)", fromQueue)
}

// DLQContents returns the dead-lettered messages originally destined for
// queue, for operator inspection / tests.
func DLQContents(queue string) []domain.RawMessage {
	dlqMu.Lock()
	defer dlqMu.Unlock()
	return append([]domain.RawMessage(nil), dlqSink[queue]...)
}

// Fabric is the in-process Fabric implementation.
type Fabric struct {
	mu     sync.Mutex
	queues map[string]*queue
	closed chan struct{}
}

// New declares every queue from fabric.Queues.
func New() *Fabric {
	f := &Fabric{queues: make(map[string]*queue), closed: make(chan struct{})}
	for _, spec := range fabric.Queues {
		f.queues[spec.Name] = newQueue(spec)
	}
	return f
}

// Publish routes msg to every declared queue whose binding matches
// (exchange, routingKey), applying persistent=true semantics implicitly
// (the in-process queue already survives until delivered or TTL-expired).
func (f *Fabric) Publish(ctx context.Context, exchange, routingKey string, msg domain.RawMessage) error {
	msg.Persistent = true
	msg.RoutingKey = routingKey
	for _, spec := range fabric.Queues {
		if spec.Exchange != exchange {
			continue
		}
		if !spec.Matches(routingKey) {
			continue
		}
		f.queues[spec.Name].push(msg)
	}
	return nil
}

// Consume drains queue with the given handler until ctx is done. prefetch
// bounds how many in-flight (unacked) deliveries run concurrently.
func (f *Fabric) Consume(ctx context.Context, queueName string, prefetch int, h fabric.Handler) error {
	f.mu.Lock()
	q, ok := f.queues[queueName]
	f.mu.Unlock()
	if !ok {
		return errUnknownQueue(queueName)
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	sem := make(chan struct{}, prefetch)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-f.closed:
			wg.Wait()
			return nil
		default:
		}

		qm, ok := q.pop()
		if !ok {
			select {
			case <-q.notify:
			case <-time.After(50 * time.Millisecond):
			case <-ctx.Done():
				wg.Wait()
				return nil
			}
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(m domain.RawMessage) {
			defer wg.Done()
			defer func() { <-sem }()
			d := fabric.Delivery{
				Message: m,
			}
			d = withAckNack(d, q, m)
			if err := h(ctx, d); err != nil {
				d.Nack(true)
			} else {
				d.Ack()
			}
		}(qm.msg)
	}
}

func withAckNack(d fabric.Delivery, q *queue, m domain.RawMessage) fabric.Delivery {
	// Closures assigned via exported helper since fabric.Delivery's ack/nack
	// fields are unexported; inproc lives in a different package so it
	// builds Delivery through this constructor instead.
	return fabric.NewDelivery(m,
		func() {},
		func(requeue bool) {
			if requeue {
				q.push(m)
				return
			}
			if q.spec.DeadLettered {
				deadLetter(q.spec.Name, m)
			}
		},
	)
}

// Close stops all in-flight Consume loops.
func (f *Fabric) Close() error {
	close(f.closed)
	return nil
}

type unknownQueueErr struct{ name string }

func (e *unknownQueueErr) Error() string { return "fabric: unknown queue " + e.name }

func errUnknownQueue(name string) error { return &unknownQueueErr{name: name} }
