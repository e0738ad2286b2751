// Package state persists the active-trade aggregate and the per-symbol
// cooldown registry. Redis is the primary store; a JSON file store is
// the durable fallback so state survives restarts even without Redis.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"breakout-trading-bot/internal/ledger"
)

const (
	activeTradeFile = "active_trade.json"
	cooldownFile    = "bot_state.json"
)

type activeTradeRecord struct {
	Position *ledger.Position `json:"position"`
	Lock     ledger.TradeLock `json:"lock"`
	SavedAt  time.Time        `json:"saved_at"`
}

type cooldownRecord struct {
	Expiries map[string]time.Time `json:"cooldowns"`
	SavedAt  time.Time            `json:"saved_at"`
}

// FileStore keeps state in JSON files under a directory. Writes go
// through a temp file and rename so a crash never leaves a torn record.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// SaveActiveTrade writes the position and lock as one record.
func (s *FileStore) SaveActiveTrade(_ context.Context, pos *ledger.Position, lock ledger.TradeLock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeFile(activeTradeFile, activeTradeRecord{Position: pos, Lock: lock, SavedAt: time.Now()})
}

// LoadActiveTrade returns (nil, empty lock, nil) when no record exists.
func (s *FileStore) LoadActiveTrade(_ context.Context) (*ledger.Position, ledger.TradeLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec activeTradeRecord
	if err := s.readFile(activeTradeFile, &rec); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ledger.TradeLock{}, nil
		}
		return nil, ledger.TradeLock{}, err
	}
	return rec.Position, rec.Lock, nil
}

// SaveCooldowns writes the full cooldown map.
func (s *FileStore) SaveCooldowns(_ context.Context, expiries map[string]time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeFile(cooldownFile, cooldownRecord{Expiries: expiries, SavedAt: time.Now()})
}

// LoadCooldowns returns an empty map when no record exists.
func (s *FileStore) LoadCooldowns(_ context.Context) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec cooldownRecord
	if err := s.readFile(cooldownFile, &rec); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]time.Time{}, nil
		}
		return nil, err
	}
	if rec.Expiries == nil {
		rec.Expiries = map[string]time.Time{}
	}
	return rec.Expiries, nil
}

func (s *FileStore) writeFile(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) readFile(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}
