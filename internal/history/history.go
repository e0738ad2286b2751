// Package history records closed trades. Records are append-only and are
// never mutated after creation.
package history

import (
	"context"
	"time"
)

// ClosedTrade is one completed round trip.
type ClosedTrade struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	EntryPrice      float64   `json:"entry_price"`
	ExitPrice       float64   `json:"exit_price"`
	EntryTime       time.Time `json:"entry_time"`
	ExitTime        time.Time `json:"exit_time"`
	PnLPercent      float64   `json:"pnl_percent"`
	ExitReason      string    `json:"exit_reason"`
	QuoteAmount     float64   `json:"quote_amount"`      // quote currency committed at entry
	ExitQuoteAmount float64   `json:"exit_quote_amount"` // quote currency received on exit
}

// Store persists closed trades.
type Store interface {
	Insert(ctx context.Context, trade *ClosedTrade) error
	List(ctx context.Context, limit int) ([]*ClosedTrade, error)
	Close()
}

// Stats aggregates trading performance.
type Stats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	AveragePnL    float64 `json:"average_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
}

// ComputeStats derives aggregate statistics from a trade list.
func ComputeStats(trades []*ClosedTrade) Stats {
	stats := Stats{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return stats
	}
	for _, t := range trades {
		if t.PnLPercent > 0 {
			stats.WinningTrades++
		} else {
			stats.LosingTrades++
		}
		stats.TotalPnL += t.PnLPercent
	}
	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
	stats.AveragePnL = stats.TotalPnL / float64(stats.TotalTrades)
	return stats
}
