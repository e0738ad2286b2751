package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

type Config struct {
	BinanceConfig  BinanceConfig  `json:"binance"`
	StrategyConfig StrategyConfig `json:"strategy"`
	RiskConfig     RiskConfig     `json:"risk"`
	ServerConfig   ServerConfig   `json:"server"`
	AuthConfig     AuthConfig     `json:"auth"`
	RedisConfig    RedisConfig    `json:"redis"`
	DatabaseConfig DatabaseConfig `json:"database"`
	VaultConfig    VaultConfig    `json:"vault"`
	StateConfig    StateConfig    `json:"state"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

type BinanceConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
	TestNet   bool   `json:"testnet"`
	MockMode  bool   `json:"mock_mode"` // Use simulated data when Binance API is unavailable
}

// StrategyConfig holds the breakout entry parameters.
type StrategyConfig struct {
	QuoteCurrency         string  `json:"quote_currency"`          // "USDT"
	TopGainerCount        int     `json:"top_gainer_count"`        // Symbols scanned per cycle
	VolumeMultiplier      float64 `json:"volume_multiplier"`       // Live volume must exceed baseline * this
	VolumeTimeLimit       int     `json:"volume_time_limit"`       // Minutes into the hour the volume gate stays open
	PriceChangePercent    float64 `json:"price_change_percent"`    // Required % rise over baseline close
	CooldownMinutes       int     `json:"cooldown_minutes"`        // Re-entry cooldown after a close
	LoopIntervalSeconds   int     `json:"loop_interval_seconds"`   // Main trading cycle period
	PriceUpdateSeconds    int     `json:"price_update_seconds"`    // Read-only price broadcast period
}

type RiskConfig struct {
	StopLossPercent         float64 `json:"stop_loss_percent"`
	TakeProfitPercent       float64 `json:"take_profit_percent"`   // Trailing activation threshold
	TrailingStopPercent     float64 `json:"trailing_stop_percent"` // Pullback from highest price
	TimeExitEnabled         bool    `json:"time_exit_enabled"`
	MaxTradeDurationMinutes int     `json:"max_trade_duration_minutes"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // CORS allowed origins
	ReadTimeout     int    `json:"read_timeout"`    // Seconds
	WriteTimeout    int    `json:"write_timeout"`   // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// AuthConfig holds single-operator authentication configuration
type AuthConfig struct {
	Enabled       bool          `json:"enabled"`
	JWTSecret     string        `json:"jwt_secret"`
	Username      string        `json:"username"`
	PasswordHash  string        `json:"password_hash"` // bcrypt hash
	TokenDuration time.Duration `json:"token_duration"`
}

// RedisConfig holds Redis configuration for state persistence
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// DatabaseConfig holds Postgres configuration for trade history
type DatabaseConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path to the Binance key pair
}

// StateConfig holds file persistence paths
type StateConfig struct {
	Dir         string `json:"dir"`          // Directory for state files
	HistoryFile string `json:"history_file"` // Closed-trade file when Postgres is disabled
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Structured JSON instead of console writer
}

// mu guards Save against concurrent config updates from the API.
var mu sync.Mutex

func Load(filename string) (*Config, error) {
	cfg, err := loadFromFile(filename)
	if err != nil {
		cfg = Default()
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the stock configuration: mock gateway, 1h breakout
// entry at 2.5x volume and 3% rise, 2%/5%/1% risk levels.
func Default() *Config {
	return &Config{
		BinanceConfig: BinanceConfig{
			BaseURL:  "https://api.binance.com",
			MockMode: true,
		},
		StrategyConfig: StrategyConfig{
			QuoteCurrency:       "USDT",
			TopGainerCount:      10,
			VolumeMultiplier:    2.5,
			VolumeTimeLimit:     30,
			PriceChangePercent:  3.0,
			CooldownMinutes:     60,
			LoopIntervalSeconds: 10,
			PriceUpdateSeconds:  3,
		},
		RiskConfig: RiskConfig{
			StopLossPercent:         2.0,
			TakeProfitPercent:       5.0,
			TrailingStopPercent:     1.0,
			TimeExitEnabled:         false,
			MaxTradeDurationMinutes: 240,
		},
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		AuthConfig: AuthConfig{
			TokenDuration: 24 * time.Hour,
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		VaultConfig: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "trading-bot/binance",
		},
		StateConfig: StateConfig{
			Dir:         "data",
			HistoryFile: "data/trade_history.json",
		},
		LoggingConfig: LoggingConfig{
			Level:      "info",
			Output:     "stdout",
			JSONFormat: false,
		},
	}
}

// Validate rejects parameter values the strategy cannot run with.
func (c *Config) Validate() error {
	s := c.StrategyConfig
	if s.QuoteCurrency == "" {
		return fmt.Errorf("strategy: quote_currency is required")
	}
	if s.TopGainerCount < 1 || s.TopGainerCount > 50 {
		return fmt.Errorf("strategy: top_gainer_count must be 1-50, got %d", s.TopGainerCount)
	}
	if s.VolumeMultiplier < 0.1 {
		return fmt.Errorf("strategy: volume_multiplier must be >= 0.1, got %g", s.VolumeMultiplier)
	}
	if s.VolumeTimeLimit < 1 || s.VolumeTimeLimit > 60 {
		return fmt.Errorf("strategy: volume_time_limit must be 1-60 minutes, got %d", s.VolumeTimeLimit)
	}
	if s.PriceChangePercent <= 0 {
		return fmt.Errorf("strategy: price_change_percent must be positive, got %g", s.PriceChangePercent)
	}
	if s.CooldownMinutes < 0 {
		return fmt.Errorf("strategy: cooldown_minutes must not be negative, got %d", s.CooldownMinutes)
	}
	if s.LoopIntervalSeconds < 1 {
		return fmt.Errorf("strategy: loop_interval_seconds must be >= 1, got %d", s.LoopIntervalSeconds)
	}

	r := c.RiskConfig
	if r.StopLossPercent < 0.1 || r.StopLossPercent > 50 {
		return fmt.Errorf("risk: stop_loss_percent must be 0.1-50, got %g", r.StopLossPercent)
	}
	if r.TakeProfitPercent <= 0 {
		return fmt.Errorf("risk: take_profit_percent must be positive, got %g", r.TakeProfitPercent)
	}
	if r.TrailingStopPercent <= 0 {
		return fmt.Errorf("risk: trailing_stop_percent must be positive, got %g", r.TrailingStopPercent)
	}
	if r.TimeExitEnabled && r.MaxTradeDurationMinutes < 1 {
		return fmt.Errorf("risk: max_trade_duration_minutes must be >= 1 when time exit is enabled, got %d", r.MaxTradeDurationMinutes)
	}

	if c.ServerConfig.Port < 1 || c.ServerConfig.Port > 65535 {
		return fmt.Errorf("server: port must be 1-65535, got %d", c.ServerConfig.Port)
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" {
		return fmt.Errorf("auth: jwt_secret is required when auth is enabled")
	}
	return nil
}

// Save writes the config back to disk; used by the runtime config API.
func (c *Config) Save(filename string) error {
	mu.Lock()
	defer mu.Unlock()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return os.Rename(tmp, filename)
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Binance config
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.BinanceConfig.SecretKey)
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	if cfg.BinanceConfig.BaseURL == "" {
		cfg.BinanceConfig.BaseURL = "https://api.binance.com"
	}
	if v := os.Getenv("BINANCE_TESTNET"); v != "" {
		cfg.BinanceConfig.TestNet = v == "true"
	}
	if v := os.Getenv("MOCK_MODE"); v != "" {
		cfg.BinanceConfig.MockMode = v == "true"
	}

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	// Auth config
	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		cfg.AuthConfig.Enabled = v == "true"
	}
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.Username = getEnvOrDefault("AUTH_USERNAME", cfg.AuthConfig.Username)
	cfg.AuthConfig.PasswordHash = getEnvOrDefault("AUTH_PASSWORD_HASH", cfg.AuthConfig.PasswordHash)
	cfg.AuthConfig.TokenDuration = getEnvDurationOrDefault("AUTH_TOKEN_DURATION", cfg.AuthConfig.TokenDuration)

	// Redis config
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.RedisConfig.Enabled = v == "true"
	}
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Database config
	if v := os.Getenv("DATABASE_ENABLED"); v != "" {
		cfg.DatabaseConfig.Enabled = v == "true"
	}
	cfg.DatabaseConfig.URL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseConfig.URL)

	// Vault config
	if v := os.Getenv("VAULT_ENABLED"); v != "" {
		cfg.VaultConfig.Enabled = v == "true"
	}
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	// State paths
	cfg.StateConfig.Dir = getEnvOrDefault("STATE_DIR", cfg.StateConfig.Dir)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	if v := os.Getenv("LOG_JSON"); v != "" {
		cfg.LoggingConfig.JSONFormat = v == "true"
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Missing sections fall back to defaults rather than zero values.
	config := Default()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	cfg := Default()
	cfg.BinanceConfig.APIKey = "your_api_key_here"
	cfg.BinanceConfig.SecretKey = "your_secret_key_here"

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
