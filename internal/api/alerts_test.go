package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"mastertrade/internal/domain"
	"mastertrade/internal/store"
)

func newAlertsTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "alerts_test.db"))
	require.NoError(t, err)
	return NewServer(Deps{Store: db})
}

func performAcknowledge(s *Server, alertID string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/alerts/"+alertID+"/acknowledge", nil)
	c.Params = gin.Params{{Key: "id", Value: alertID}}
	s.acknowledgeAlert(c)
	return w
}

// TestAcknowledgeAlertIsIdempotent is the literal round-trip law from
// spec.md §8: acknowledging an already-acknowledged alert is a no-op (HTTP
// 200, no second audit row).
func TestAcknowledgeAlertIsIdempotent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newAlertsTestServer(t)

	require.NoError(t, s.store.Alert().Create(domain.Alert{
		ID:        "alert-1",
		Type:      "drawdown",
		Severity:  domain.SeverityWarning,
		Title:     "drawdown breach",
		Message:   "portfolio drawdown exceeded the normal limit",
		Status:    domain.AlertActive,
		CreatedAt: time.Now().UTC(),
	}))

	w := performAcknowledge(s, "alert-1")
	require.Equal(t, http.StatusOK, w.Code)

	alert, ok := s.store.Alert().Get("alert-1")
	require.True(t, ok)
	require.Equal(t, domain.AlertAcknowledged, alert.Status)

	entries, err := s.store.Audit().Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Second acknowledge of the same alert must be a no-op: same 200, no
	// second audit row, status unchanged.
	w = performAcknowledge(s, "alert-1")
	require.Equal(t, http.StatusOK, w.Code)

	entries, err = s.store.Audit().Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestAcknowledgeAlertNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newAlertsTestServer(t)

	w := performAcknowledge(s, "missing")
	require.Equal(t, http.StatusNotFound, w.Code)
}
