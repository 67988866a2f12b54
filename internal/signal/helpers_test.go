package signal

import (
	"context"

	"mastertrade/internal/domain"
)

type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, exchange, routingKey string, msg domain.RawMessage) error {
	return nil
}

func contextBackground() context.Context { return context.Background() }
