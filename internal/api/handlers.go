package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"breakout-trading-bot/config"
	"breakout-trading-bot/internal/auth"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	if s.authService == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "authentication is disabled"})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	pair, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":   s.bot.Running(),
		"position":  s.bot.Position(),
		"gainers":   s.bot.Gainers(),
		"cooldowns": s.bot.Cooldowns(),
	})
}

func (s *Server) handleBotStart(c *gin.Context) {
	if err := s.bot.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true})
}

func (s *Server) handleBotStop(c *gin.Context) {
	// Detached context: stopping may close a position and must not die
	// with the HTTP request.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := s.bot.Stop(ctx); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": false})
}

func (s *Server) handleActiveTrade(c *gin.Context) {
	pos := s.bot.Position()
	if pos == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open position"})
		return
	}
	c.JSON(http.StatusOK, pos)
}

type closeTradeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCloseTrade(c *gin.Context) {
	var req closeTradeRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "MANUAL"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.bot.CloseTrade(ctx, req.Reason); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	trades, err := s.bot.History(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.bot.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleMarkets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"gainers": s.bot.Gainers()})
}

func (s *Server) handleCooldowns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cooldowns": s.bot.Cooldowns()})
}

func (s *Server) handleClearCooldowns(c *gin.Context) {
	s.bot.ClearCooldowns(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	cfg := *s.bot.CurrentConfig()

	// Never hand secrets to the dashboard.
	cfg.BinanceConfig.APIKey = ""
	cfg.BinanceConfig.SecretKey = ""
	cfg.AuthConfig.JWTSecret = ""
	cfg.AuthConfig.PasswordHash = ""
	cfg.VaultConfig.Token = ""
	cfg.RedisConfig.Password = ""
	cfg.DatabaseConfig.URL = ""

	c.JSON(http.StatusOK, cfg)
}

type updateConfigRequest struct {
	Strategy *config.StrategyConfig `json:"strategy"`
	Risk     *config.RiskConfig     `json:"risk"`
}

// handleUpdateConfig patches the strategy and risk sections. Connection
// and credential settings only change via file or environment.
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Strategy == nil && req.Risk == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	cfg := *s.bot.CurrentConfig()
	if req.Strategy != nil {
		cfg.StrategyConfig = *req.Strategy
	}
	if req.Risk != nil {
		cfg.RiskConfig = *req.Risk
	}
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.bot.ApplyConfig(&cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}
