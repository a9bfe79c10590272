package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"fvg-liquidity-bot/config"
	"fvg-liquidity-bot/internal/engine"
	"fvg-liquidity-bot/internal/events"
	"fvg-liquidity-bot/internal/execution"
	"fvg-liquidity-bot/internal/logging"
	"fvg-liquidity-bot/internal/risk"
)

// Server exposes the control API: engine status and lifecycle, ranked
// signals, positions, risk state and runtime configuration updates.
type Server struct {
	cfg      config.ServerConfig
	manager  *config.Manager
	eng      *engine.Engine
	gate     *risk.Gate
	executor *execution.Executor
	hub      *Hub
	log      *logging.Logger
	httpSrv  *http.Server
	started  time.Time
}

// NewServer creates the API server and wires the websocket hub into the
// event bus.
func NewServer(cfg config.ServerConfig, manager *config.Manager, eng *engine.Engine, gate *risk.Gate,
	executor *execution.Executor, bus *events.EventBus, log *logging.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		manager:  manager,
		eng:      eng,
		gate:     gate,
		executor: executor,
		hub:      NewHub(log),
		log:      log.WithComponent("api"),
		started:  time.Now(),
	}
	bus.SubscribeAll(s.hub.Broadcast)
	return s
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if s.cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(s.cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	s.registerRoutes(router)

	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()

	s.log.Info("API server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)
	router.GET("/ws", s.hub.HandleConnection)

	api := router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/signals", s.handleSignals)
		api.GET("/positions", s.handlePositions)
		api.GET("/trades", s.handleTrades)
		api.GET("/risk", s.handleRisk)
		api.GET("/risk/decisions", s.handleDecisions)
		api.POST("/risk/reset", s.handleRiskReset)
		api.POST("/engine/pause", s.handlePause)
		api.POST("/engine/resume", s.handleResume)
		api.GET("/config", s.handleGetConfig)
		api.PUT("/config", s.handleUpdateConfig)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"engine_state":   string(s.eng.State()),
		"cycle":          s.eng.Cycle(),
		"gate_state":     string(s.gate.State()),
		"open_positions": len(s.executor.OpenPositions()),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleSignals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"signals": s.eng.LastSignals()})
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.executor.OpenPositions()})
}

func (s *Server) handleTrades(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"trades": s.executor.History()})
}

func (s *Server) handleRisk(c *gin.Context) {
	c.JSON(http.StatusOK, s.gate.Snapshot())
}

func (s *Server) handleDecisions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"decisions": s.gate.Decisions()})
}

func (s *Server) handleRiskReset(c *gin.Context) {
	s.gate.ManualReset()
	s.log.Info("circuit manually reset")
	c.JSON(http.StatusOK, s.gate.Snapshot())
}

func (s *Server) handlePause(c *gin.Context) {
	s.eng.Pause()
	c.JSON(http.StatusOK, gin.H{"engine_state": string(engine.StatePaused)})
}

func (s *Server) handleResume(c *gin.Context) {
	s.eng.Resume()
	c.JSON(http.StatusOK, gin.H{"engine_state": string(engine.StateRunning)})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	cfg := s.manager.Snapshot()
	// Credentials never leave the process.
	cfg.BinanceConfig.APIKey = ""
	cfg.BinanceConfig.SecretKey = ""
	c.JSON(http.StatusOK, cfg)
}

// handleUpdateConfig merges a JSON patch into the active configuration. An
// invalid result is rejected wholesale and the previous config stays active.
func (s *Server) handleUpdateConfig(c *gin.Context) {
	patch, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if err := s.manager.Apply(patch); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	s.log.Info("configuration updated via API")
	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}
