// Package api exposes the dashboard REST endpoints and the WebSocket
// event stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"breakout-trading-bot/config"
	"breakout-trading-bot/internal/auth"
	"breakout-trading-bot/internal/events"
	"breakout-trading-bot/internal/history"
	"breakout-trading-bot/internal/ledger"
	"breakout-trading-bot/internal/market"
	"breakout-trading-bot/internal/state"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// BotAPI interface defines methods the bot must expose to the API
type BotAPI interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running() bool
	Position() *ledger.Position
	Gainers() []market.Gainer
	Cooldowns() []state.Cooldown
	CloseTrade(ctx context.Context, reason string) error
	ClearCooldowns(ctx context.Context)
	CurrentConfig() *config.Config
	ApplyConfig(cfg *config.Config) error
	History(ctx context.Context, limit int) ([]*history.ClosedTrade, error)
	Stats(ctx context.Context) (history.Stats, error)
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	hub         *WSHub
	bot         BotAPI
	serverCfg   config.ServerConfig
	authService *auth.Service
	logger      zerolog.Logger
}

// NewServer creates a new API server. authService may be nil when auth
// is disabled.
func NewServer(serverCfg config.ServerConfig, bus *events.EventBus, bot BotAPI, authService *auth.Service, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if serverCfg.AllowedOrigins == "" || serverCfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(serverCfg.AllowedOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:      router,
		hub:         NewWSHub(logger),
		bot:         bot,
		serverCfg:   serverCfg,
		authService: authService,
		logger:      logger.With().Str("component", "api").Logger(),
	}

	go s.hub.Run()
	bus.SubscribeAll(func(event events.Event) {
		s.hub.BroadcastEvent(event)
	})

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/api/login", s.handleLogin)

	api := s.router.Group("/api")
	if s.authService != nil {
		api.Use(auth.Middleware(s.authService))
	}

	api.GET("/status", s.handleStatus)
	api.POST("/bot/start", s.handleBotStart)
	api.POST("/bot/stop", s.handleBotStop)
	api.GET("/trade", s.handleActiveTrade)
	api.POST("/trade/close", s.handleCloseTrade)
	api.GET("/history", s.handleHistory)
	api.GET("/history/stats", s.handleStats)
	api.GET("/markets", s.handleMarkets)
	api.GET("/cooldowns", s.handleCooldowns)
	api.DELETE("/cooldowns", s.handleClearCooldowns)
	api.GET("/config", s.handleGetConfig)
	api.PUT("/config", s.handleUpdateConfig)

	// The event stream authenticates via query token because browsers
	// cannot set headers on WebSocket upgrades.
	s.router.GET("/ws", s.handleWebSocket)
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.serverCfg.Host, s.serverCfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.serverCfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.serverCfg.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.serverCfg.ShutdownTimeout)*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
