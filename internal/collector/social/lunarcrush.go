// Package social implements sentiment collectors (Twitter, Reddit,
// LunarCrush per spec.md §4.2) using resty rather than retryablehttp, per
// SPEC_FULL §1's split: resty for lighter REST clients that don't need
// retryable-http's retry machinery.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"mastertrade/internal/breaker"
	"mastertrade/internal/cache"
	"mastertrade/internal/collector"
	"mastertrade/internal/domain"
	"mastertrade/internal/fabric"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/ratelimit"
	"mastertrade/internal/store"
	"mastertrade/internal/timeseries"
)

// LunarCrushCollector polls LunarCrush's social sentiment score per symbol.
type LunarCrushCollector struct {
	collector.Base

	client   *resty.Client
	apiKey   string
	symbols  []string
	interval time.Duration

	fabric fabric.Publisher
	ts     *timeseries.Store
	stop   chan struct{}
}

func New(apiKey string, symbols []string, c cache.Cache, cs *store.CollectorStore, f fabric.Publisher, ts *timeseries.Store) *LunarCrushCollector {
	client := resty.New().SetTimeout(30 * time.Second).SetBaseURL("https://lunarcrush.com/api4/public")
	return &LunarCrushCollector{
		Base: collector.Base{
			CollectorName: "lunarcrush",
			Kind:          domain.SourceSocial,
			Limiter: ratelimit.New(ratelimit.Config{
				Collector: "lunarcrush", Endpoint: "assets",
				InitialPerSecond: 2, MaxPerSecond: 10, BackoffMultiplier: 2, MaxBackoff: time.Minute,
			}, c),
			Breaker: breaker.New("lunarcrush", breaker.Config{}, c),
			Store:   cs,
		},
		client:   client,
		apiKey:   apiKey,
		symbols:  symbols,
		interval: 60 * time.Second,
		fabric:   f,
		ts:       ts,
		stop:     make(chan struct{}),
	}
}

func (l *LunarCrushCollector) Start(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.stop:
			return nil
		case <-ticker.C:
			if err := l.PollOnce(ctx); err != nil {
				logger.Warnf("lunarcrush: poll cycle: %v", err)
			}
		}
	}
}

func (l *LunarCrushCollector) Stop(context.Context) error {
	close(l.stop)
	return nil
}

type lunarCrushAsset struct {
	Symbol         string  `json:"symbol"`
	GalaxyScore    float64 `json:"galaxy_score"`
	SentimentScore float64 `json:"sentiment"`
}

func (l *LunarCrushCollector) PollOnce(ctx context.Context) error {
	start := time.Now()
	records := 0
	var lastErr error

	for _, symbol := range l.symbols {
		var asset lunarCrushAsset
		var statusCode int

		err := l.Guard(ctx, func(ctx context.Context) (int, time.Duration, int, time.Duration, error) {
			resp, err := l.client.R().
				SetContext(ctx).
				SetHeader("Authorization", "Bearer "+l.apiKey).
				SetQueryParam("symbol", symbol).
				SetResult(&asset).
				Get("/coins/" + symbol + "/v1")
			if err != nil {
				return 0, 0, 0, 0, err
			}
			statusCode = resp.StatusCode()
			if resp.StatusCode() == 429 {
				return 429, parseRetryAfter(resp.Header().Get("Retry-After")), 0, 0, nil
			}
			if resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
				logger.Errorf("lunarcrush: %s returned %d (permanent)", symbol, resp.StatusCode())
				return resp.StatusCode(), 0, 0, 0, nil
			}
			if resp.StatusCode() >= 500 {
				return resp.StatusCode(), 0, 0, 0, fmt.Errorf("lunarcrush: %s: status %d", symbol, resp.StatusCode())
			}
			return resp.StatusCode(), 0, 0, 0, nil
		})
		if err != nil {
			lastErr = err
			continue
		}
		if statusCode >= 400 {
			continue
		}

		now := time.Now().UTC()
		body, _ := json.Marshal(asset)
		msg := domain.RawMessage{Type: domain.MsgSentiment, Timestamp: now, Source: l.CollectorName, Data: body}
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pubErr := l.fabric.Publish(pubCtx, "mastertrade.market", "sentiment."+symbol, msg)
		cancel()
		if pubErr != nil {
			lastErr = pubErr
			continue
		}
		_ = l.ts.WritePoint(l.CollectorName, symbol, "sentiment", timeseries.Point{Time: now, Value: asset.SentimentScore})
		records++
	}

	l.RecordRecords(records)
	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	_ = l.Store.RecordHealth(l.Health(time.Since(start), records, errMsg))
	return lastErr
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v + "s")
	if err != nil {
		return 0
	}
	return d
}

func (l *LunarCrushCollector) Backfill(ctx context.Context, from, to time.Time) error {
	logger.Infof("lunarcrush: backfill requested for window %s..%s (not yet scheduled live)", from, to)
	return nil
}

func (l *LunarCrushCollector) HealthCheck(context.Context) domain.HealthRecord {
	return l.Health(0, 0, "")
}
