package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is a trade direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the exchange order type.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// Environment distinguishes simulated from real execution.
type Environment string

const (
	EnvPaper Environment = "paper"
	EnvLive  Environment = "live"
)

// OrderStatus is a point in an order's lifecycle (SPEC_FULL §4).
type OrderStatus string

const (
	OrderPending         OrderStatus = "pending"
	OrderOpen            OrderStatus = "open"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCancelled       OrderStatus = "cancelled"
	OrderRejected        OrderStatus = "rejected"
)

// orderStatusRank orders the monotonic lifecycle for validation.
var orderStatusRank = map[OrderStatus]int{
	OrderPending:         0,
	OrderOpen:            1,
	OrderPartiallyFilled: 2,
	OrderFilled:          3,
	OrderCancelled:       3,
	OrderRejected:        3,
}

// CanAdvance reports whether from->to is a legal order status edge: forward
// along {pending -> open -> partially_filled* -> filled|cancelled|rejected}.
func CanAdvance(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	if from == OrderPartiallyFilled && to == OrderPartiallyFilled {
		return true
	}
	fr, ok1 := orderStatusRank[from]
	tr, ok2 := orderStatusRank[to]
	if !ok1 || !ok2 {
		return false
	}
	if fr >= 3 {
		return false // terminal
	}
	return tr >= fr
}

// Order is the full order lifecycle record (SPEC_FULL §4).
type Order struct {
	ID              string
	StrategyID      string
	Symbol          string
	Side            Side
	OrderType       OrderType
	Quantity        decimal.Decimal
	Price           *decimal.Decimal
	StopLoss        *decimal.Decimal
	TakeProfit      *decimal.Decimal
	Environment     Environment
	Status          OrderStatus
	FilledQuantity  decimal.Decimal
	AvgFillPrice    decimal.Decimal
	Commission      decimal.Decimal
	IdempotencyKey  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Position is an open position, unique per (StrategyID, Symbol, Environment).
type Position struct {
	StrategyID        string
	Symbol            string
	Environment       Environment
	Quantity          decimal.Decimal
	EntryPrice        decimal.Decimal
	CurrentPrice      decimal.Decimal
	StopLoss          *decimal.Decimal
	TakeProfit        *decimal.Decimal
	UnrealizedPnL     decimal.Decimal
	UnrealizedPnLPct  float64
	OpenedAt          time.Time
}

// Key identifies the unique position slot this belongs to.
func (p Position) Key() string {
	return p.StrategyID + "|" + p.Symbol + "|" + string(p.Environment)
}
