package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mastertrade/internal/domain"
)

func (s *Server) listAlerts(c *gin.Context) {
	alerts, err := s.store.Alert().Active()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) acknowledgeAlert(c *gin.Context) {
	id := c.Param("id")
	alert, ok := s.store.Alert().Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	// Acknowledging an already-acknowledged alert is a no-op: no second
	// status write, no second audit row.
	if alert.Status == domain.AlertAcknowledged {
		c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
		return
	}
	if err := s.store.Alert().UpdateStatus(id, domain.AlertAcknowledged); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.audit(c, "alert.acknowledge", "alert", id, "")
	c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
}

func (s *Server) resolveAlert(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.Alert().UpdateStatus(id, domain.AlertResolved); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.audit(c, "alert.resolve", "alert", id, "")
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

func (s *Server) recentAudit(c *gin.Context) {
	entries, err := s.store.Audit().Recent(100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit": entries})
}
