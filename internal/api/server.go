// Package api implements the Control API (SPEC_FULL.md §4.10, C10): the
// gin HTTP surface operators and dashboards use to inspect and steer every
// other component, adapted from the teacher's api.Server (gin.Engine +
// manual CORS + grouped routes behind a JWT auth middleware).
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mastertrade/internal/alert"
	"mastertrade/internal/api/ws"
	"mastertrade/internal/cache"
	"mastertrade/internal/collector"
	"mastertrade/internal/fabric"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/risk"
	"mastertrade/internal/store"
	"mastertrade/internal/strategy"
)

// Server wires the Control API's dependencies and owns its http.Server, the
// same shape as the teacher's api.Server (router, store, managers, port).
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	store      *store.Store
	cache      cache.Cache
	registry   *collector.Registry
	activator  *strategy.Activator
	drawdown   *risk.DrawdownTracker
	alertBus   *alert.Bus
	consumer   fabric.Consumer
	whaleHub   *ws.Hub

	port        int
	rateLimitRPM int
}

// Deps bundles everything the Control API reads from or acts on.
type Deps struct {
	Store        *store.Store
	Cache        cache.Cache
	Registry     *collector.Registry
	Activator    *strategy.Activator
	Drawdown     *risk.DrawdownTracker
	AlertBus     *alert.Bus
	Consumer     fabric.Consumer // subscribes the whale-alerts queue for the websocket feed; nil disables it
	Port         int
	RateLimitRPM int
}

// NewServer constructs the Control API's gin engine and route table. It
// runs in release mode and registers a manual CORS handler the way the
// teacher's NewServer does, rather than pulling in a CORS middleware
// package the examples never use.
func NewServer(d Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if d.RateLimitRPM <= 0 {
		d.RateLimitRPM = 60
	}

	s := &Server{
		router:       router,
		store:        d.Store,
		cache:        d.Cache,
		registry:     d.Registry,
		activator:    d.Activator,
		drawdown:     d.Drawdown,
		alertBus:     d.AlertBus,
		consumer:     d.Consumer,
		whaleHub:     ws.NewHub(),
		port:         d.Port,
		rateLimitRPM: d.RateLimitRPM,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(corsMiddleware())
	s.router.Use(accessLogMiddleware())
	s.router.Use(rateLimitMiddleware(s.rateLimitRPM))

	s.router.GET("/api/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.POST("/api/auth/login", s.handleLogin)
	s.router.GET("/api/ws/whale-alerts", s.handleWhaleAlertsWS)

	protected := s.router.Group("/api", s.authMiddleware())
	{
		collectors := protected.Group("/collectors")
		collectors.GET("", s.listCollectors)
		collectors.GET("/:name", s.getCollector)
		collectors.POST("/:name/enable", s.enableCollector)
		collectors.POST("/:name/disable", s.disableCollector)
		collectors.POST("/:name/restart", s.restartCollector)
		collectors.PUT("/:name/rate-limit", s.setCollectorRateLimit)
		collectors.POST("/:name/reset-breaker", s.resetCollectorBreaker)
		collectors.GET("/:name/costs", s.getCollectorCosts)

		signals := protected.Group("/signals")
		signals.GET("/recent", s.recentSignals)
		signals.GET("/stats", s.signalStats)

		strategies := protected.Group("/strategies")
		strategies.GET("", s.listStrategies)
		strategies.GET("/:id", s.getStrategy)
		strategies.GET("/:id/backtest", s.getStrategyBacktest)
		strategies.POST("/:id/activate", s.activateStrategy)
		strategies.POST("/:id/pause", s.pauseStrategy)
		strategies.POST("/:id/archive", s.archiveStrategy)

		goals := protected.Group("/goals")
		goals.GET("", s.listGoals)
		goals.GET("/:id/progress", s.goalProgress)

		alerts := protected.Group("/alerts")
		alerts.GET("", s.listAlerts)
		alerts.POST("/:id/acknowledge", s.acknowledgeAlert)
		alerts.POST("/:id/resolve", s.resolveAlert)

		protected.GET("/audit", s.recentAudit)
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled, then drains
// with a bounded deadline — the same start/block/drain shape as every other
// component's main.go.
func (s *Server) Run(ctx context.Context) error {
	hubStop := make(chan struct{})
	go s.whaleHub.Run(hubStop)
	if s.consumer != nil {
		go func() {
			if err := s.consumer.Consume(ctx, "whale_alerts", 10, s.forwardWhaleAlert); err != nil && ctx.Err() == nil {
				logger.Errorf("api: whale alert consumer exited: %v", err)
			}
		}()
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case <-ctx.Done():
		close(hubStop)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		close(hubStop)
		return err
	}
}

// forwardWhaleAlert relays a whale_alert bus message to every connected
// websocket client and acks it; the feed is fan-out only, so delivery
// failures to individual browsers never cause a requeue.
func (s *Server) forwardWhaleAlert(ctx context.Context, d fabric.Delivery) error {
	s.whaleHub.Broadcast(d.Message.Data)
	d.Ack()
	return nil
}

func (s *Server) handleWhaleAlertsWS(c *gin.Context) {
	s.whaleHub.ServeHTTP(c.Writer, c.Request)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}
