package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mastertrade/internal/collector"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/store"
)

// audit appends an audit-log entry for a mutating endpoint. Every endpoint
// below that changes state calls this once on success, per SPEC_FULL §9's
// "every mutating Control API call is audited" invariant.
func (s *Server) audit(c *gin.Context, action, entityType, entityID, detail string) {
	entry := store.AuditEntry{
		Actor:      operatorFromContext(c),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		RemoteAddr: c.ClientIP(),
		At:         time.Now().UTC().UnixMilli(),
	}
	if err := s.store.Audit().Record(entry); err != nil {
		logger.Warnf("api: record audit entry for %s/%s: %v", action, entityID, err)
	}
}

func (s *Server) listCollectors(c *gin.Context) {
	states, err := s.store.Collector().All()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	loadErrors := s.registry.LoadErrors()
	out := make([]gin.H, 0, len(states))
	for _, st := range states {
		entry := gin.H{"collector": st}
		if err, ok := loadErrors[st.Name]; ok {
			entry["load_error"] = err.Error()
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, gin.H{"collectors": out})
}

func (s *Server) getCollector(c *gin.Context) {
	name := c.Param("name")
	state, ok := s.store.Collector().Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collector"})
		return
	}
	health, err := s.store.Collector().RecentHealth(name, 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"collector": state, "recent_health": health})
}

func (s *Server) enableCollector(c *gin.Context) {
	name := c.Param("name")
	if err := s.registry.Enable(c.Request.Context(), name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.audit(c, "collector.enable", "collector", name, "")
	c.JSON(http.StatusOK, gin.H{"status": "enabled"})
}

func (s *Server) disableCollector(c *gin.Context) {
	name := c.Param("name")
	if err := s.registry.Disable(c.Request.Context(), name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.audit(c, "collector.disable", "collector", name, "")
	c.JSON(http.StatusOK, gin.H{"status": "disabled"})
}

func (s *Server) restartCollector(c *gin.Context) {
	name := c.Param("name")
	ctx := c.Request.Context()
	if err := s.registry.Disable(ctx, name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err := s.registry.Enable(ctx, name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.audit(c, "collector.restart", "collector", name, "")
	c.JSON(http.StatusOK, gin.H{"status": "restarted"})
}

type rateLimitRequest struct {
	PerSecond float64 `json:"per_second" binding:"required"`
}

func (s *Server) setCollectorRateLimit(c *gin.Context) {
	name := c.Param("name")
	var req rateLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	col, ok := s.registry.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collector"})
		return
	}
	controllable, ok := col.(collector.Controllable)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "collector does not expose a rate limiter"})
		return
	}
	controllable.LimiterRef().SetRate(req.PerSecond)
	s.audit(c, "collector.set_rate_limit", "collector", name, fmt.Sprintf("per_second=%.3f", req.PerSecond))
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) resetCollectorBreaker(c *gin.Context) {
	name := c.Param("name")
	col, ok := s.registry.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collector"})
		return
	}
	controllable, ok := col.(collector.Controllable)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "collector does not expose a breaker"})
		return
	}
	controllable.BreakerRef().Reset(operatorFromContext(c), "manual reset via control api")
	s.audit(c, "collector.reset_breaker", "collector", name, "")
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) getCollectorCosts(c *gin.Context) {
	name := c.Param("name")
	state, ok := s.store.Collector().Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collector"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"collector":      name,
		"total_requests": state.Stats.TotalRequests,
		"total_errors":   state.Stats.TotalErrors,
		"total_records":  state.Stats.TotalRecords,
		"as_of":          time.Now().UTC(),
	})
}
