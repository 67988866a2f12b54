// Package bybit implements the C8 live-environment exchange adaptor
// (execution.Adaptor) against Bybit's linear-perpetual REST API, adapted
// from the teacher's trader.BybitTrader: same client construction and
// params-map request shape, narrowed to the order-placement/cancellation
// surface the executor needs (position/balance/leverage management stay
// out of scope for a generic Adaptor).
package bybit

import (
	"context"
	"fmt"
	"net/http"

	bybitapi "github.com/bybit-exchange/bybit.go.api"

	"mastertrade/internal/domain"
	"mastertrade/internal/obs/logger"
)

const refererID = "MasterTrade"

// Adaptor places and cancels orders on Bybit's linear-perpetual market,
// implementing execution.Adaptor.
type Adaptor struct {
	client *bybitapi.Client
}

// New constructs an Adaptor against Bybit's mainnet REST endpoint, tagging
// outbound requests with a referer header the way the teacher's
// headerRoundTripper does.
func New(apiKey, secretKey string) *Adaptor {
	client := bybitapi.NewBybitHttpClient(apiKey, secretKey, bybitapi.WithBaseURL(bybitapi.MAINNET))
	if client != nil && client.HTTPClient != nil {
		base := client.HTTPClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		client.HTTPClient.Transport = &refererRoundTripper{base: base}
	}
	return &Adaptor{client: client}
}

type refererRoundTripper struct{ base http.RoundTripper }

func (r *refererRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Referer", refererID)
	return r.base.RoundTrip(req)
}

// PlaceOrder submits a market order sized and sided from o, returning
// Bybit's exchange-assigned order id.
func (a *Adaptor) PlaceOrder(ctx context.Context, o domain.Order) (string, error) {
	side := "Buy"
	if o.Side == domain.SideSell {
		side = "Sell"
	}
	params := map[string]interface{}{
		"category":    "linear",
		"symbol":      o.Symbol,
		"side":        side,
		"orderType":   bybitOrderType(o.OrderType),
		"qty":         o.Quantity.String(),
		"positionIdx": 0,
	}
	if o.Price != nil {
		params["price"] = o.Price.String()
	}
	logger.WithFields(map[string]any{"symbol": o.Symbol, "side": side, "qty": o.Quantity.String()}).Info("bybit: placing order")

	result, err := a.client.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return "", fmt.Errorf("bybit: place order: %w", err)
	}
	return parseOrderID(result)
}

// CancelOrder cancels a resting order by its Bybit-assigned id.
func (a *Adaptor) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	params := map[string]interface{}{
		"category": "linear",
		"symbol":   symbol,
		"orderId":  exchangeOrderID,
	}
	if _, err := a.client.NewUtaBybitServiceWithParams(params).CancelOrder(ctx); err != nil {
		return fmt.Errorf("bybit: cancel order: %w", err)
	}
	return nil
}

func bybitOrderType(t domain.OrderType) string {
	if t == domain.OrderLimit {
		return "Limit"
	}
	return "Market"
}

func parseOrderID(result *bybitapi.ServerResponse) (string, error) {
	if result.RetCode != 0 {
		return "", fmt.Errorf("bybit: order rejected: %s", result.RetMsg)
	}
	data, ok := result.Result.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("bybit: unexpected result shape")
	}
	id, _ := data["orderId"].(string)
	if id == "" {
		return "", fmt.Errorf("bybit: order response missing orderId")
	}
	return id, nil
}
