package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) listGoals(c *gin.Context) {
	goals, err := s.store.Goal().Active()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

func (s *Server) goalProgress(c *gin.Context) {
	id := c.Param("id")
	progress, ok := s.store.Goal().LatestProgress(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no progress recorded for goal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": progress})
}
