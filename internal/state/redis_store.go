package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"breakout-trading-bot/internal/ledger"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	activeTradeKey = "bot:active_trade"
	cooldownKey    = "bot:cooldowns"

	// stateTTL bounds how long orphaned records linger in Redis. Trades
	// close within hours; seven days leaves ample recovery headroom.
	stateTTL = 7 * 24 * time.Hour
)

// RedisStore is the primary state store. Every write also goes through
// the file fallback, so a Redis outage costs availability of nothing:
// reads fall back to the file copy.
type RedisStore struct {
	client    *redis.Client
	fallback  *FileStore
	available atomic.Bool
	logger    zerolog.Logger
}

// NewRedisStore probes the connection once; a failed ping just marks
// Redis unavailable and the store runs file-only until a write succeeds.
func NewRedisStore(client *redis.Client, fallback *FileStore, logger zerolog.Logger) *RedisStore {
	s := &RedisStore{
		client:   client,
		fallback: fallback,
		logger:   logger.With().Str("component", "state").Logger(),
	}
	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("redis unavailable at startup, using file store")
		} else {
			s.available.Store(true)
			s.logger.Info().Msg("redis connected")
		}
	}
	return s
}

// SaveActiveTrade writes the position/lock pair as one JSON record.
func (s *RedisStore) SaveActiveTrade(ctx context.Context, pos *ledger.Position, lock ledger.TradeLock) error {
	if err := s.fallback.SaveActiveTrade(ctx, pos, lock); err != nil {
		return err
	}
	rec := activeTradeRecord{Position: pos, Lock: lock, SavedAt: time.Now()}
	return s.setJSON(ctx, activeTradeKey, rec)
}

// LoadActiveTrade reads from Redis, falling back to the file copy on
// miss or failure.
func (s *RedisStore) LoadActiveTrade(ctx context.Context) (*ledger.Position, ledger.TradeLock, error) {
	var rec activeTradeRecord
	ok, err := s.getJSON(ctx, activeTradeKey, &rec)
	if err == nil && ok {
		return rec.Position, rec.Lock, nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("redis read failed, loading active trade from file")
	}
	return s.fallback.LoadActiveTrade(ctx)
}

// SaveCooldowns writes the full cooldown map.
func (s *RedisStore) SaveCooldowns(ctx context.Context, expiries map[string]time.Time) error {
	if err := s.fallback.SaveCooldowns(ctx, expiries); err != nil {
		return err
	}
	rec := cooldownRecord{Expiries: expiries, SavedAt: time.Now()}
	return s.setJSON(ctx, cooldownKey, rec)
}

// LoadCooldowns reads from Redis, falling back to the file copy.
func (s *RedisStore) LoadCooldowns(ctx context.Context) (map[string]time.Time, error) {
	var rec cooldownRecord
	ok, err := s.getJSON(ctx, cooldownKey, &rec)
	if err == nil && ok {
		if rec.Expiries == nil {
			rec.Expiries = map[string]time.Time{}
		}
		return rec.Expiries, nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("redis read failed, loading cooldowns from file")
	}
	return s.fallback.LoadCooldowns(ctx)
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v interface{}) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, stateTTL).Err(); err != nil {
		if s.available.Swap(false) {
			s.logger.Warn().Err(err).Str("key", key).Msg("redis write failed, file copy is authoritative")
		}
		// The file write already succeeded; losing the Redis copy is not
		// a persistence failure.
		return nil
	}
	s.available.Store(true)
	return nil
}

// getJSON reports (false, nil) on a missing key.
func (s *RedisStore) getJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	if s.client == nil {
		return false, nil
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		s.available.Store(false)
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return true, nil
}
