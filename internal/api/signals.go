package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mastertrade/internal/domain"
)

const signalsBufferKey = "signals:recent"

// recentSignals returns the fused signals the aggregator buffered into the
// signals:recent sorted set, oldest first, optionally bounded by a
// since (unix millis) query parameter.
func (s *Server) recentSignals(c *gin.Context) {
	min := float64(0)
	if since := c.Query("since"); since != "" {
		if v, err := strconv.ParseInt(since, 10, 64); err == nil {
			min = float64(v)
		}
	}
	members := s.cache.ZRangeByScore(signalsBufferKey, min, float64(time.Now().UTC().UnixMilli()))
	out := make([]domain.MarketSignal, 0, len(members))
	for _, m := range members {
		var sig domain.MarketSignal
		if err := json.Unmarshal([]byte(m.Member), &sig); err == nil {
			out = append(out, sig)
		}
	}
	c.JSON(http.StatusOK, gin.H{"signals": out})
}

// signalStats summarizes the buffered signal window: per-symbol counts and
// action breakdown, a cheap aggregate over the same sorted set recent reads
// from rather than a separate materialized table.
func (s *Server) signalStats(c *gin.Context) {
	members := s.cache.ZRangeByScore(signalsBufferKey, 0, float64(time.Now().UTC().UnixMilli()))
	bySymbol := map[string]int{}
	byAction := map[domain.Action]int{}
	for _, m := range members {
		var sig domain.MarketSignal
		if err := json.Unmarshal([]byte(m.Member), &sig); err != nil {
			continue
		}
		bySymbol[sig.Symbol]++
		byAction[sig.Action]++
	}
	c.JSON(http.StatusOK, gin.H{
		"total_buffered": s.cache.ZCard(signalsBufferKey),
		"by_symbol":      bySymbol,
		"by_action":      byAction,
	})
}
