// Package fabric is the topic-routed message bus from SPEC_FULL.md §5 (C3):
// declared exchanges/queues/bindings, publish/consume, DLQ policy. Topology
// is expressed as data (this file) so both the amqp and inproc adaptors
// declare identical queues from one source of truth.
package fabric

import "time"

// Exchange names (SPEC_FULL §7: AMQP 0.9.1 topic exchanges).
const (
	ExchangeMarket  = "mastertrade.market"
	ExchangeTrading = "mastertrade.trading"
	ExchangeOrders  = "mastertrade.orders"
	ExchangeRisk    = "mastertrade.risk"
	ExchangeSystem  = "mastertrade.system"
	ExchangeDLX     = "mastertrade.dlx"
)

// Overflow is the queue overflow behavior when max-length is reached.
type Overflow string

const (
	OverflowDropHead     Overflow = "drop-head"
	OverflowRejectPublish Overflow = "reject-publish"
)

// QueueSpec declares one durable, non-auto-deleted queue bound to an
// exchange via a routing-key pattern, per the table in spec.md §4.3.
type QueueSpec struct {
	Name          string
	Exchange      string
	RoutingKey    string // topic pattern, e.g. "market.data.*"
	TTL           time.Duration
	MaxLength     int // 0 means unbounded
	Overflow      Overflow
	DeadLettered  bool // routes to ExchangeDLX on TTL expiry / reject(requeue=false)
	Prefetch      int
}

// Queues is the full declared topology.
var Queues = []QueueSpec{
	{Name: "market_data", Exchange: ExchangeMarket, RoutingKey: "market.data.*", TTL: 60 * time.Second, MaxLength: 100_000, Overflow: OverflowDropHead, Prefetch: 10},
	{Name: "ticker_updates", Exchange: ExchangeMarket, RoutingKey: "ticker.*", TTL: 10 * time.Second, MaxLength: 50_000, Overflow: OverflowDropHead, Prefetch: 10},
	{Name: "sentiment_data", Exchange: ExchangeMarket, RoutingKey: "sentiment.*", TTL: 300 * time.Second, MaxLength: 10_000, Overflow: OverflowRejectPublish, Prefetch: 10},
	{Name: "onchain_metrics", Exchange: ExchangeMarket, RoutingKey: "onchain.*", TTL: 300 * time.Second, Overflow: OverflowRejectPublish, Prefetch: 10},
	{Name: "whale_alerts", Exchange: ExchangeMarket, RoutingKey: "whale.alert.*", TTL: 600 * time.Second, Overflow: OverflowRejectPublish, Prefetch: 10},

	{Name: "trading_signals", Exchange: ExchangeTrading, RoutingKey: "signal.*", TTL: 30 * time.Second, MaxLength: 10_000, Overflow: OverflowRejectPublish, DeadLettered: true, Prefetch: 5},

	{Name: "order_requests", Exchange: ExchangeOrders, RoutingKey: "order.request.*", TTL: 60 * time.Second, MaxLength: 5_000, Overflow: OverflowRejectPublish, DeadLettered: true, Prefetch: 1},
	{Name: "order_updates", Exchange: ExchangeOrders, RoutingKey: "order.update.#", TTL: 300 * time.Second, Overflow: OverflowRejectPublish, Prefetch: 1},

	{Name: "risk_checks", Exchange: ExchangeRisk, RoutingKey: "risk.check.*", TTL: 30 * time.Second, Overflow: OverflowRejectPublish, Prefetch: 5},

	{Name: "system_notifications", Exchange: ExchangeSystem, RoutingKey: "system.#", TTL: 600 * time.Second, Overflow: OverflowRejectPublish, Prefetch: 10},
}

// Matches reports whether routingKey satisfies this queue's binding pattern.
func (q QueueSpec) Matches(routingKey string) bool {
	return matchRoutingKey(q.RoutingKey, routingKey)
}

// QueueFor returns the queue spec whose routing key pattern matches key on
// the given exchange, or ok=false if none declared.
func QueueFor(exchange, key string) (QueueSpec, bool) {
	for _, q := range Queues {
		if q.Exchange == exchange && matchRoutingKey(q.RoutingKey, key) {
			return q, true
		}
	}
	return QueueSpec{}, false
}

// matchRoutingKey implements AMQP topic matching: "*" matches exactly one
// dot-separated word, "#" matches zero or more words.
func matchRoutingKey(pattern, key string) bool {
	return matchSegments(splitDots(pattern), splitDots(key))
}

func splitDots(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func matchSegments(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	switch pattern[0] {
	case "#":
		if matchSegments(pattern[1:], key) {
			return true
		}
		if len(key) == 0 {
			return false
		}
		return matchSegments(pattern, key[1:])
	case "*":
		if len(key) == 0 {
			return false
		}
		return matchSegments(pattern[1:], key[1:])
	default:
		if len(key) == 0 || key[0] != pattern[0] {
			return false
		}
		return matchSegments(pattern[1:], key[1:])
	}
}
