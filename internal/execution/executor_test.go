package execution

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"mastertrade/internal/domain"
	"mastertrade/internal/fabric"
	"mastertrade/internal/store"
)

type fakeTickers struct{ prices map[string]float64 }

func (f fakeTickers) LastPrice(symbol string) (float64, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}

type capturingPublisher struct {
	messages []captured
}

type captured struct {
	routingKey string
	update     OrderUpdate
}

func (c *capturingPublisher) Publish(ctx context.Context, exchange, routingKey string, msg domain.RawMessage) error {
	var u OrderUpdate
	_ = json.Unmarshal(msg.Data, &u)
	c.messages = append(c.messages, captured{routingKey: routingKey, update: u})
	return nil
}

func newExecutorTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir() + "/execution_test.db")
	require.NoError(t, err)
	return s
}

func newRequestDelivery(req OrderRequest) fabric.Delivery {
	data, _ := json.Marshal(req)
	msg := domain.RawMessage{Type: domain.MsgOrderRequest, Data: data}
	return fabric.NewDelivery(msg, func() {}, func(bool) {})
}

// TestPaperOrderLifecycle is the literal E6 scenario from spec.md §9: a
// paper BUY request for 0.5 BTCUSDT produces an immediate filled update at
// the last ticker price and a matching Position row.
func TestPaperOrderLifecycle(t *testing.T) {
	s := newExecutorTestStore(t)
	pub := &capturingPublisher{}
	tickers := fakeTickers{prices: map[string]float64{"BTCUSDT": 67000}}

	exec := NewExecutor(s.Order(), s.Position(), tickers, nil, pub)

	req := OrderRequest{
		StrategyID:     "strat-1",
		Symbol:         "BTCUSDT",
		Side:           domain.SideBuy,
		OrderType:      domain.OrderMarket,
		Quantity:       decimal.NewFromFloat(0.5),
		Environment:    domain.EnvPaper,
		IdempotencyKey: "req-e6-1",
		Approved:       true,
	}

	start := time.Now()
	require.NoError(t, exec.HandleRequest(context.Background(), newRequestDelivery(req)))
	require.Less(t, time.Since(start), time.Second)

	require.NotEmpty(t, pub.messages)
	last := pub.messages[len(pub.messages)-1]
	require.Equal(t, "filled", last.update.Status)
	require.Equal(t, "0.5", last.update.FilledQuantity)
	require.Equal(t, "67000", last.update.AvgFillPrice)

	pos, ok := s.Position().Get("strat-1", "BTCUSDT", domain.EnvPaper)
	require.True(t, ok)
	require.True(t, pos.Quantity.Equal(decimal.NewFromFloat(0.5)))
}

func TestIdempotencyKeyDedupSkipsSecondFill(t *testing.T) {
	s := newExecutorTestStore(t)
	pub := &capturingPublisher{}
	tickers := fakeTickers{prices: map[string]float64{"BTCUSDT": 67000}}
	exec := NewExecutor(s.Order(), s.Position(), tickers, nil, pub)

	req := OrderRequest{
		StrategyID: "strat-1", Symbol: "BTCUSDT", Side: domain.SideBuy, OrderType: domain.OrderMarket,
		Quantity: decimal.NewFromFloat(0.5), Environment: domain.EnvPaper, IdempotencyKey: "dup-key", Approved: true,
	}
	require.NoError(t, exec.HandleRequest(context.Background(), newRequestDelivery(req)))
	firstCount := len(pub.messages)
	require.NoError(t, exec.HandleRequest(context.Background(), newRequestDelivery(req)))
	require.Equal(t, firstCount, len(pub.messages))
}

func TestUnapprovedRequestIsRejected(t *testing.T) {
	s := newExecutorTestStore(t)
	pub := &capturingPublisher{}
	exec := NewExecutor(s.Order(), s.Position(), fakeTickers{}, nil, pub)

	req := OrderRequest{StrategyID: "strat-1", Symbol: "ETHUSDT", Approved: false, IdempotencyKey: "not-approved"}
	require.NoError(t, exec.HandleRequest(context.Background(), newRequestDelivery(req)))
	require.NotEmpty(t, pub.messages)
	require.Equal(t, "rejected", pub.messages[0].update.Status)
}

func TestTimeoutSweepRejectsStalePaperOrder(t *testing.T) {
	s := newExecutorTestStore(t)
	pub := &capturingPublisher{}
	exec := NewExecutor(s.Order(), s.Position(), fakeTickers{}, nil, pub)

	stale := domain.Order{
		ID: "stale-1", StrategyID: "strat-1", Symbol: "BTCUSDT", Side: domain.SideBuy, OrderType: domain.OrderMarket,
		Quantity: decimal.NewFromFloat(1), Environment: domain.EnvPaper, Status: domain.OrderPending,
		FilledQuantity: decimal.Zero, AvgFillPrice: decimal.Zero, Commission: decimal.Zero,
		IdempotencyKey: "stale-key", CreatedAt: time.Now().Add(-2 * time.Second), UpdatedAt: time.Now().Add(-2 * time.Second),
	}
	require.NoError(t, s.Order().Create(stale))

	exec.sweepOnce()

	updated, ok := s.Order().Get("stale-1")
	require.True(t, ok)
	require.Equal(t, domain.OrderRejected, updated.Status)
}
