package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresStore persists closed trades in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore connects to the database and runs migrations. url is
// a libpq-style DSN or postgres:// URL.
func NewPostgresStore(ctx context.Context, url string, logger zerolog.Logger) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.HealthCheckPeriod = time.Minute

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{
		pool:   pool,
		logger: logger.With().Str("component", "history_db").Logger(),
	}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	store.logger.Info().Msg("connected to PostgreSQL")
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS closed_trades (
			id UUID PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			entry_time TIMESTAMPTZ NOT NULL,
			exit_time TIMESTAMPTZ NOT NULL,
			pnl_percent DOUBLE PRECISION NOT NULL,
			exit_reason TEXT NOT NULL,
			quote_amount DOUBLE PRECISION NOT NULL,
			exit_quote_amount DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_closed_trades_exit_time ON closed_trades(exit_time DESC);
	`)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, trade *ClosedTrade) error {
	query := `
		INSERT INTO closed_trades (id, symbol, entry_price, exit_price, entry_time, exit_time,
		                           pnl_percent, exit_reason, quote_amount, exit_quote_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.pool.Exec(ctx, query,
		trade.ID, trade.Symbol, trade.EntryPrice, trade.ExitPrice,
		trade.EntryTime, trade.ExitTime, trade.PnLPercent, trade.ExitReason,
		trade.QuoteAmount, trade.ExitQuoteAmount,
	)
	if err != nil {
		return fmt.Errorf("insert closed trade: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*ClosedTrade, error) {
	query := `
		SELECT id, symbol, entry_price, exit_price, entry_time, exit_time,
		       pnl_percent, exit_reason, quote_amount, exit_quote_amount
		FROM closed_trades
		ORDER BY exit_time DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*ClosedTrade
	for rows.Next() {
		trade := &ClosedTrade{}
		err := rows.Scan(
			&trade.ID, &trade.Symbol, &trade.EntryPrice, &trade.ExitPrice,
			&trade.EntryTime, &trade.ExitTime, &trade.PnLPercent, &trade.ExitReason,
			&trade.QuoteAmount, &trade.ExitQuoteAmount,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
