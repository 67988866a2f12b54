package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mastertrade/internal/domain"
)

func (s *Server) listStrategies(c *gin.Context) {
	status := c.Query("status")
	var (
		strategies []domain.Strategy
		err        error
	)
	if status != "" {
		strategies, err = s.store.Strategy().ByStatus(domain.StrategyStatus(status))
	} else {
		strategies, err = s.store.Strategy().Active()
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strategies})
}

func (s *Server) getStrategy(c *gin.Context) {
	id := c.Param("id")
	st, ok := s.store.Strategy().Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown strategy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategy": st})
}

func (s *Server) getStrategyBacktest(c *gin.Context) {
	id := c.Param("id")
	result, ok := s.store.Backtest().Latest(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no backtest result for strategy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"backtest": result})
}

// activateStrategy is the audited escape hatch for activating a strategy
// straight out of backtested, skipping the paper stage, per SPEC_FULL §10's
// resolution of the original spec's paper-stage Open Question.
func (s *Server) activateStrategy(c *gin.Context) {
	id := c.Param("id")
	if s.activator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "activator not wired"})
		return
	}
	if err := s.activator.ActivateSkippingPaper(id, time.Now().UTC(), operatorFromContext(c)); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	s.audit(c, "strategy.activate_skip_paper", "strategy", id, "")
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

func (s *Server) pauseStrategy(c *gin.Context) {
	id := c.Param("id")
	if err := s.transitionStrategy(id, domain.StrategyPaused); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	s.audit(c, "strategy.pause", "strategy", id, "")
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (s *Server) archiveStrategy(c *gin.Context) {
	id := c.Param("id")
	if err := s.transitionStrategy(id, domain.StrategyArchived); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	s.audit(c, "strategy.archive", "strategy", id, "")
	c.JSON(http.StatusOK, gin.H{"status": "archived"})
}

func (s *Server) transitionStrategy(id string, to domain.StrategyStatus) error {
	st, ok := s.store.Strategy().Get(id)
	if !ok {
		return errUnknownStrategy(id)
	}
	if !domain.CanTransition(st.Status, to) {
		return errInvalidTransition(st.Status, to)
	}
	return s.store.Strategy().UpdateStatus(id, to, time.Now().UTC())
}
