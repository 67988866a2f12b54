// Package execution implements the order executor (SPEC_FULL §4.8): it
// consumes order requests, simulates paper fills or dispatches to a live
// exchange adaptor, republishes every lifecycle transition, and keeps
// Position rows in sync with fills.
package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mastertrade/internal/domain"
	"mastertrade/internal/errs"
	"mastertrade/internal/fabric"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/store"
)

// Auto-cancel deadlines from SPEC_FULL §4.8's terminal-update invariant.
const (
	liveTimeout  = 60 * time.Second
	paperTimeout = 1 * time.Second
)

// TickerSource supplies the latest price for paper fill simulation.
type TickerSource interface {
	LastPrice(symbol string) (float64, bool)
}

// Adaptor is the live exchange dispatch surface, grounded on the teacher's
// trader.Trader interface narrowed to what order execution needs.
type Adaptor interface {
	PlaceOrder(ctx context.Context, o domain.Order) (exchangeOrderID string, err error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
}

// OrderRequest is the inbound message shape on order_requests.
type OrderRequest struct {
	StrategyID     string              `json:"strategy_id"`
	Symbol         string              `json:"symbol"`
	Side           domain.Side         `json:"side"`
	OrderType      domain.OrderType    `json:"order_type"`
	Quantity       decimal.Decimal     `json:"quantity"`
	Price          *decimal.Decimal    `json:"price,omitempty"`
	StopLoss       *decimal.Decimal    `json:"stop_loss,omitempty"`
	TakeProfit     *decimal.Decimal    `json:"take_profit,omitempty"`
	Environment    domain.Environment  `json:"environment"`
	IdempotencyKey string              `json:"idempotency_key"`
	Approved       bool                `json:"approved"`
	Cancel         bool                `json:"cancel"`
	CancelOrderID  string              `json:"cancel_order_id,omitempty"`
}

// OrderUpdate is the outbound message shape on order_updates.
type OrderUpdate struct {
	OrderID        string  `json:"order_id"`
	StrategyID     string  `json:"strategy_id"`
	Symbol         string  `json:"symbol"`
	Status         string  `json:"status"`
	FilledQuantity string  `json:"filled_quantity,omitempty"`
	AvgFillPrice   string  `json:"avg_fill_price,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

// Executor drains order_requests and produces order_updates.
type Executor struct {
	orders    *store.OrderStore
	positions *store.PositionStore
	tickers   TickerSource
	live      Adaptor
	fabric    fabric.Publisher
}

func NewExecutor(orders *store.OrderStore, positions *store.PositionStore, tickers TickerSource, live Adaptor, pub fabric.Publisher) *Executor {
	return &Executor{orders: orders, positions: positions, tickers: tickers, live: live, fabric: pub}
}

// HandleRequest processes one order_request delivery.
func (e *Executor) HandleRequest(ctx context.Context, d fabric.Delivery) error {
	var req OrderRequest
	if err := json.Unmarshal(d.Message.Data, &req); err != nil {
		logger.Errorf("execution: malformed order request: %v", err)
		d.Nack(false)
		return nil
	}

	if req.Cancel {
		e.handleCancel(ctx, req)
		d.Ack()
		return nil
	}

	if !req.Approved {
		e.reject(req, "", "not approved by risk gate")
		d.Ack()
		return nil
	}

	if existing, ok := e.orders.ByIdempotencyKey(req.IdempotencyKey); ok {
		logger.Debugf("execution: dedup idempotency key %s -> existing order %s", req.IdempotencyKey, existing.ID)
		d.Ack()
		return nil
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:             uuid.NewString(),
		StrategyID:     req.StrategyID,
		Symbol:         req.Symbol,
		Side:           req.Side,
		OrderType:      req.OrderType,
		Quantity:       req.Quantity,
		Price:          req.Price,
		StopLoss:       req.StopLoss,
		TakeProfit:     req.TakeProfit,
		Environment:    req.Environment,
		Status:         domain.OrderPending,
		FilledQuantity: decimal.Zero,
		AvgFillPrice:   decimal.Zero,
		Commission:     decimal.Zero,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.orders.Create(order); err != nil {
		// Another replica raced us on the idempotency key; treat as dedup.
		logger.Warnf("execution: create order %s: %v (treating as dedup)", order.ID, err)
		d.Ack()
		return nil
	}

	if order.Environment == domain.EnvPaper {
		e.fillPaper(order)
	} else {
		e.dispatchLive(ctx, order)
	}
	d.Ack()
	return nil
}

// fillPaper simulates an immediate fill at the latest ticker price, per
// SPEC_FULL §4.8's paper-environment rule (and the literal E6 scenario).
func (e *Executor) fillPaper(order domain.Order) {
	price, ok := e.tickers.LastPrice(order.Symbol)
	if !ok {
		e.transition(order, domain.OrderRejected, decimal.Zero, decimal.Zero, "no ticker price available")
		return
	}
	avgFillPrice := decimal.NewFromFloat(price)
	now := time.Now().UTC()
	if err := e.orders.UpdateStatus(order.ID, domain.OrderFilled, order.Quantity, avgFillPrice, decimal.Zero, now.UnixMilli()); err != nil {
		logger.Errorf("execution: paper fill update for %s: %v", order.ID, err)
		return
	}
	order.Status = domain.OrderFilled
	order.FilledQuantity = order.Quantity
	order.AvgFillPrice = avgFillPrice

	e.applyFillToPosition(order, avgFillPrice)
	e.publishUpdate(order, "")
}

// dispatchLive submits to the exchange adaptor. A full implementation
// subscribes to the exchange's order stream and republishes every
// transition; this synchronous variant covers the immediate
// accept/reject leg, with the timeout sweep in timeout.go handling orders
// whose live fill never arrives before the deadline.
func (e *Executor) dispatchLive(ctx context.Context, order domain.Order) {
	if e.live == nil {
		e.transition(order, domain.OrderRejected, decimal.Zero, decimal.Zero, "no live adaptor configured")
		return
	}
	exchangeOrderID, err := e.live.PlaceOrder(ctx, order)
	if err != nil {
		reason := "exchange rejected order"
		if errs.Retryable(err) {
			reason = fmt.Sprintf("exchange transient error: %v", err)
		}
		e.transition(order, domain.OrderRejected, decimal.Zero, decimal.Zero, reason)
		return
	}
	now := time.Now().UTC()
	if err := e.orders.UpdateStatus(order.ID, domain.OrderOpen, decimal.Zero, decimal.Zero, decimal.Zero, now.UnixMilli()); err != nil {
		logger.Errorf("execution: open transition for %s: %v", order.ID, err)
		return
	}
	order.Status = domain.OrderOpen
	logger.Infof("execution: order %s accepted by exchange as %s", order.ID, exchangeOrderID)
	e.publishUpdate(order, "")
}

func (e *Executor) handleCancel(ctx context.Context, req OrderRequest) {
	order, ok := e.orders.Get(req.CancelOrderID)
	if !ok {
		return
	}
	if order.Environment == domain.EnvLive && e.live != nil {
		if err := e.live.CancelOrder(ctx, order.Symbol, order.ID); err != nil {
			logger.Warnf("execution: live cancel %s: %v", order.ID, err)
		}
	}
	e.transition(order, domain.OrderCancelled, order.FilledQuantity, order.AvgFillPrice, "cancelled by request")
}

func (e *Executor) reject(req OrderRequest, orderID, reason string) {
	logger.Infof("execution: rejecting request for %s %s: %s", req.StrategyID, req.Symbol, reason)
	update := OrderUpdate{OrderID: orderID, StrategyID: req.StrategyID, Symbol: req.Symbol, Status: string(domain.OrderRejected), Reason: reason}
	e.publishRaw(update, "order.update.rejected."+orderID)
}

func (e *Executor) transition(order domain.Order, status domain.OrderStatus, filled, avgFillPrice decimal.Decimal, reason string) {
	now := time.Now().UTC()
	if err := e.orders.UpdateStatus(order.ID, status, filled, avgFillPrice, order.Commission, now.UnixMilli()); err != nil {
		logger.Errorf("execution: transition %s to %s: %v", order.ID, status, err)
		return
	}
	order.Status = status
	order.FilledQuantity = filled
	order.AvgFillPrice = avgFillPrice
	e.publishUpdate(order, reason)
}

// applyFillToPosition upserts the strategy's position on a fill, or
// deletes it when an opposite-side fill flattens it to zero, per
// SPEC_FULL §4.8.
func (e *Executor) applyFillToPosition(order domain.Order, fillPrice decimal.Decimal) {
	existing, ok := e.positions.Get(order.StrategyID, order.Symbol, order.Environment)
	signedQty := order.FilledQuantity
	if order.Side == domain.SideSell {
		signedQty = signedQty.Neg()
	}

	if !ok {
		pos := domain.Position{
			StrategyID:   order.StrategyID,
			Symbol:       order.Symbol,
			Environment:  order.Environment,
			Quantity:     signedQty,
			EntryPrice:   fillPrice,
			CurrentPrice: fillPrice,
			StopLoss:     order.StopLoss,
			TakeProfit:   order.TakeProfit,
			OpenedAt:     time.Now().UTC(),
		}
		if err := e.positions.Upsert(pos); err != nil {
			logger.Errorf("execution: upsert new position for %s/%s: %v", order.StrategyID, order.Symbol, err)
		}
		return
	}

	newQty := existing.Quantity.Add(signedQty)
	if newQty.IsZero() {
		if err := e.positions.Delete(order.StrategyID, order.Symbol, order.Environment); err != nil {
			logger.Errorf("execution: delete flattened position for %s/%s: %v", order.StrategyID, order.Symbol, err)
		}
		return
	}

	existing.Quantity = newQty
	existing.CurrentPrice = fillPrice
	if err := e.positions.Upsert(existing); err != nil {
		logger.Errorf("execution: upsert position for %s/%s: %v", order.StrategyID, order.Symbol, err)
	}
}

func (e *Executor) publishUpdate(order domain.Order, reason string) {
	update := OrderUpdate{
		OrderID:        order.ID,
		StrategyID:     order.StrategyID,
		Symbol:         order.Symbol,
		Status:         string(order.Status),
		FilledQuantity: order.FilledQuantity.String(),
		AvgFillPrice:   order.AvgFillPrice.String(),
		Reason:         reason,
	}
	e.publishRaw(update, fmt.Sprintf("order.update.%s.%s", order.Status, order.ID))
}

func (e *Executor) publishRaw(update OrderUpdate, routingKey string) {
	if e.fabric == nil {
		return
	}
	data, err := json.Marshal(update)
	if err != nil {
		logger.Errorf("execution: marshal order update: %v", err)
		return
	}
	msg := domain.RawMessage{
		Type:       domain.MsgOrderUpdate,
		Timestamp:  time.Now().UTC(),
		Source:     "order-executor",
		Data:       data,
		RoutingKey: routingKey,
		Persistent: true,
	}
	if err := e.fabric.Publish(context.Background(), "mastertrade.trading", routingKey, msg); err != nil {
		logger.Warnf("execution: publish %s: %v", routingKey, err)
	}
}
