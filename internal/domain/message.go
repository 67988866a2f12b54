package domain

import "time"

// MessageType is the discriminant of a RawMessage envelope.
type MessageType string

const (
	MsgMarketData        MessageType = "market_data"
	MsgTicker            MessageType = "ticker"
	MsgTrade             MessageType = "trade"
	MsgOrderbook         MessageType = "orderbook"
	MsgSentiment         MessageType = "sentiment"
	MsgOnChainMetric     MessageType = "onchain_metric"
	MsgWhaleAlert        MessageType = "whale_alert"
	MsgTradingSignal     MessageType = "trading_signal"
	MsgOrderRequest      MessageType = "order_request"
	MsgOrderUpdate       MessageType = "order_update"
	MsgRiskCheck         MessageType = "risk_check"
	MsgRiskBreach        MessageType = "risk_breach"
	MsgSystemNotification MessageType = "system_notification"
	MsgAlertDelivery     MessageType = "alert_delivery"
)

// RawMessage is the universal bus envelope (SPEC_FULL §4, RawMessage).
type RawMessage struct {
	Type       MessageType
	Timestamp  time.Time
	Source     string
	Data       []byte // JSON-encoded payload, shape depends on Type
	RoutingKey string
	Persistent bool
}
