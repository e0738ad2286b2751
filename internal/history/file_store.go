package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the trade history in a single JSON file. Used when
// Postgres is disabled.
type FileStore struct {
	mu     sync.Mutex
	path   string
	trades []*ClosedTrade
}

// NewFileStore opens (or creates) a file-backed history at path.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}
	if err := json.Unmarshal(data, &fs.trades); err != nil {
		return nil, fmt.Errorf("parse history file: %w", err)
	}
	return fs, nil
}

func (fs *FileStore) Insert(ctx context.Context, trade *ClosedTrade) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.trades = append(fs.trades, trade)
	return fs.flush()
}

func (fs *FileStore) List(ctx context.Context, limit int) ([]*ClosedTrade, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	trades := fs.trades
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	// Newest first, matching the Postgres store ordering.
	out := make([]*ClosedTrade, len(trades))
	for i, t := range trades {
		out[len(trades)-1-i] = t
	}
	return out, nil
}

func (fs *FileStore) Close() {}

// flush rewrites the file; callers hold the mutex.
func (fs *FileStore) flush() error {
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	data, err := json.MarshalIndent(fs.trades, "", "  ")
	if err != nil {
		return err
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	return os.Rename(tmp, fs.path)
}
