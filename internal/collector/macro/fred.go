// Package macro implements macro indicator collectors (FRED, Yahoo,
// alternative.me per spec.md §4.2) using resty, per SPEC_FULL §1.
package macro

import (
	"context"
	"encoding/json"
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

// FREDCollector polls the Federal Reserve's FRED API for a fixed set of
// macro series (DFF, DGS10, CPIAUCSL, ...).
type FREDCollector struct {
	collector.Base

	client   *resty.Client
	apiKey   string
	seriesID []string
	interval time.Duration

	fabric fabric.Publisher
	ts     *timeseries.Store
	stop   chan struct{}
}

func New(apiKey string, seriesID []string, c cache.Cache, cs *store.CollectorStore, f fabric.Publisher, ts *timeseries.Store) *FREDCollector {
	client := resty.New().SetTimeout(30 * time.Second).SetBaseURL("https://api.stlouisfed.org/fred")
	return &FREDCollector{
		Base: collector.Base{
			CollectorName: "fred",
			Kind:          domain.SourceMacro,
			Limiter: ratelimit.New(ratelimit.Config{
				Collector: "fred", Endpoint: "series-observations",
				InitialPerSecond: 1, MaxPerSecond: 5, BackoffMultiplier: 2, MaxBackoff: time.Minute,
			}, c),
			Breaker: breaker.New("fred", breaker.Config{}, c),
			Store:   cs,
		},
		client:   client,
		apiKey:   apiKey,
		seriesID: seriesID,
		interval: 6 * time.Hour, // macro series update infrequently
		fabric:   f,
		ts:       ts,
		stop:     make(chan struct{}),
	}
}

func (f *FREDCollector) Start(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	if err := f.PollOnce(ctx); err != nil {
		logger.Warnf("fred: initial poll: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.stop:
			return nil
		case <-ticker.C:
			if err := f.PollOnce(ctx); err != nil {
				logger.Warnf("fred: poll cycle: %v", err)
			}
		}
	}
}

func (f *FREDCollector) Stop(context.Context) error {
	close(f.stop)
	return nil
}

type fredObservation struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

func (f *FREDCollector) PollOnce(ctx context.Context) error {
	start := time.Now()
	records := 0
	var lastErr error

	for _, series := range f.seriesID {
		var obs fredObservation
		var statusCode int

		err := f.Guard(ctx, func(ctx context.Context) (int, time.Duration, int, time.Duration, error) {
			resp, err := f.client.R().
				SetContext(ctx).
				SetQueryParams(map[string]string{"series_id": series, "api_key": f.apiKey, "file_type": "json", "sort_order": "desc", "limit": "1"}).
				SetResult(&obs).
				Get("/series/observations")
			if err != nil {
				return 0, 0, 0, 0, err
			}
			statusCode = resp.StatusCode()
			if resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
				logger.Errorf("fred: %s returned %d (permanent)", series, resp.StatusCode())
				return resp.StatusCode(), 0, 0, 0, nil
			}
			return resp.StatusCode(), 0, 0, 0, nil
		})
		if err != nil {
			lastErr = err
			continue
		}
		if statusCode >= 400 || len(obs.Observations) == 0 {
			continue
		}

		now := time.Now().UTC()
		body, _ := json.Marshal(map[string]any{"series_id": series, "value": obs.Observations[0].Value, "date": obs.Observations[0].Date})
		msg := domain.RawMessage{Type: domain.MsgOnChainMetric, Timestamp: now, Source: f.CollectorName, Data: body}

		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pubErr := f.fabric.Publish(pubCtx, "mastertrade.market", "onchain."+series, msg)
		cancel()
		if pubErr != nil {
			lastErr = pubErr
			continue
		}
		records++
	}

	f.RecordRecords(records)
	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	_ = f.Store.RecordHealth(f.Health(time.Since(start), records, errMsg))
	return lastErr
}

func (f *FREDCollector) Backfill(ctx context.Context, from, to time.Time) error {
	logger.Infof("fred: backfill requested for window %s..%s (not yet scheduled live)", from, to)
	return nil
}

func (f *FREDCollector) HealthCheck(context.Context) domain.HealthRecord {
	return f.Health(0, 0, "")
}
