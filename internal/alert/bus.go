// Package alert implements the alert bus (SPEC_FULL §4.9): suppression-rule
// matching, severity-to-channel selection, delivery with retries, and
// per-channel rate limiting with backpressure. Run sends queued (alert,
// channel) deliveries one at a time, so a delivery waiting on its channel's
// rate limiter or retry delay holds back the deliveries queued behind it.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"mastertrade/internal/domain"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/store"
)

// Deliverer sends one alert over one channel.
type Deliverer interface {
	Deliver(ctx context.Context, ch domain.Channel, a domain.Alert) error
}

// Per-channel rate limits from SPEC_FULL §4.9.
var channelLimiters = map[domain.Channel]*rate.Limiter{
	domain.ChannelEmail:    rate.NewLimiter(rate.Every(36*time.Second), 100),  // 100/h
	domain.ChannelSMS:      rate.NewLimiter(rate.Every(72*time.Second), 50),   // 50/h
	domain.ChannelTelegram: rate.NewLimiter(rate.Limit(30), 30),               // 30/s
	domain.ChannelSlack:    rate.NewLimiter(rate.Limit(1), 1),                 // 1/s
}

const (
	maxDeliveryRetries = 3
	retryBaseDelay     = 5 * time.Second
)

// severityChannels is the default severity -> channel set from SPEC_FULL
// §4.9.
var severityChannels = map[domain.Severity][]domain.Channel{
	domain.SeverityCritical: {domain.ChannelEmail, domain.ChannelSMS, domain.ChannelTelegram},
	domain.SeverityError:    {domain.ChannelEmail, domain.ChannelTelegram},
	domain.SeverityWarning:  {domain.ChannelTelegram},
	domain.SeverityInfo:     {domain.ChannelLog},
}

// Bus dispatches created alerts to their channels, honoring suppression
// rules, severity routing, retries and rate limiting.
type Bus struct {
	alerts    *store.AlertStore
	deliverer Deliverer
	queue     chan queuedAlert
}

type queuedAlert struct {
	alert domain.Alert
	ch    domain.Channel
}

// backpressureQueueSize bounds the one delivery backlog shared by all
// channels; once it is full, Raise drops the oldest pending delivery to
// admit the new one, per SPEC_FULL §4.9's
// "excess enqueues with backpressure".
const backpressureQueueSize = 500

func NewBus(alerts *store.AlertStore, deliverer Deliverer) *Bus {
	b := &Bus{alerts: alerts, deliverer: deliverer, queue: make(chan queuedAlert, backpressureQueueSize)}
	return b
}

// Run drains the delivery queue until ctx is cancelled, sending each queued
// (alert, channel) pair through its rate limiter before dispatch.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case qa := <-b.queue:
			b.deliverOne(ctx, qa.alert, qa.ch)
		}
	}
}

// Raise creates and routes one alert: persists it, checks suppression, and
// enqueues a delivery per selected channel.
func (b *Bus) Raise(ctx context.Context, alertType string, severity domain.Severity, title, message, entityType, entityID string) error {
	now := time.Now().UTC()
	suppressed, err := b.alerts.IsSuppressed(alertType, entityType, entityID, now.UnixMilli())
	if err != nil {
		logger.Warnf("alert: suppression lookup failed for %s/%s: %v", entityType, entityID, err)
	}

	a := domain.Alert{
		ID:         uuid.NewString(),
		Type:       alertType,
		Severity:   severity,
		Title:      title,
		Message:    message,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     domain.AlertActive,
		CreatedAt:  now,
	}
	if err := b.alerts.Create(a); err != nil {
		return fmt.Errorf("alert: persist: %w", err)
	}
	if suppressed {
		logger.Debugf("alert: %s suppressed for %s/%s", alertType, entityType, entityID)
		return nil
	}

	for _, ch := range severityChannels[severity] {
		select {
		case b.queue <- queuedAlert{alert: a, ch: ch}:
		default:
			// Backpressure: drop the oldest queued item to make room rather
			// than block the caller (often a hot path like the risk gate).
			select {
			case <-b.queue:
			default:
			}
			b.queue <- queuedAlert{alert: a, ch: ch}
			logger.Warnf("alert: queue saturated, dropped oldest delivery to admit %s/%s", alertType, ch)
		}
	}
	return nil
}

func (b *Bus) deliverOne(ctx context.Context, a domain.Alert, ch domain.Channel) {
	if limiter, ok := channelLimiters[ch]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxDeliveryRetries+1; attempt++ {
		err := b.deliverer.Deliver(ctx, ch, a)
		attemptRecord := domain.DeliveryAttempt{Channel: ch, Attempt: attempt, Success: err == nil, At: time.Now().UTC()}
		if err != nil {
			attemptRecord.Error = err.Error()
		}
		if appendErr := b.alerts.AppendDelivery(a.ID, attemptRecord); appendErr != nil {
			logger.Warnf("alert: record delivery attempt for %s: %v", a.ID, appendErr)
		}
		if err == nil {
			return
		}
		lastErr = err
		if attempt > maxDeliveryRetries {
			break
		}
		delay := retryBaseDelay * time.Duration(1<<(attempt-1))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	logger.Errorf("alert: delivery to %s exhausted retries for %s: %v", ch, a.ID, lastErr)
}
