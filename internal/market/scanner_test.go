package market

import (
	"testing"

	"breakout-trading-bot/internal/binance"

	"github.com/rs/zerolog"
)

func ticker(symbol string, change float64) binance.Ticker24hr {
	return binance.Ticker24hr{
		Symbol:             symbol,
		PriceChangePercent: change,
		LastPrice:          1,
		Volume:             1000,
		QuoteVolume:        1000,
	}
}

func TestRankFiltersAndSorts(t *testing.T) {
	tickers := []binance.Ticker24hr{
		ticker("BTCUSDT", 3.2),
		ticker("ETHBTC", 9.0),     // wrong quote currency
		ticker("ETHUSDT", 7.5),
		ticker("BTCUPUSDT", 25.0), // leveraged
		ticker("BTCDOWNUSDT", 18.0),
		ticker("ETHBULLUSDT", 40.0),
		ticker("EOSBEARUSDT", 33.0),
		ticker("SOLUSDT", 12.1),
		ticker("XRPUSDT", -4.0),
	}

	gainers := Rank(tickers, "USDT", 10)
	want := []string{"SOLUSDT", "ETHUSDT", "BTCUSDT", "XRPUSDT"}
	if len(gainers) != len(want) {
		t.Fatalf("got %d gainers, want %d: %+v", len(gainers), len(want), gainers)
	}
	for i, g := range gainers {
		if g.Symbol != want[i] {
			t.Errorf("gainers[%d] = %s, want %s", i, g.Symbol, want[i])
		}
	}
}

func TestRankCapsCount(t *testing.T) {
	tickers := []binance.Ticker24hr{
		ticker("AUSDT", 1),
		ticker("BUSDT", 5),
		ticker("CUSDT", 3),
		ticker("DUSDT", 4),
	}

	gainers := Rank(tickers, "USDT", 2)
	if len(gainers) != 2 {
		t.Fatalf("got %d gainers, want 2", len(gainers))
	}
	if gainers[0].Symbol != "BUSDT" || gainers[1].Symbol != "DUSDT" {
		t.Errorf("top two = %s,%s, want BUSDT,DUSDT", gainers[0].Symbol, gainers[1].Symbol)
	}
}

func TestGainerInfo(t *testing.T) {
	s := NewScanner(nil, "USDT", zerolog.Nop())
	s.mu.Lock()
	s.gainers = Rank([]binance.Ticker24hr{
		ticker("BTCUSDT", 3.2),
		ticker("ETHUSDT", 7.5),
	}, "USDT", 10)
	s.mu.Unlock()

	g, ok := s.GainerInfo("BTCUSDT")
	if !ok || g.PriceChangePercent != 3.2 {
		t.Errorf("GainerInfo(BTCUSDT) = %+v, %v", g, ok)
	}
	if _, ok := s.GainerInfo("DOGEUSDT"); ok {
		t.Error("unknown symbol reported as cached")
	}

	snapshot := s.Gainers()
	if len(snapshot) != 2 {
		t.Fatalf("got %d gainers, want 2", len(snapshot))
	}
	snapshot[0].Symbol = "mutated"
	if g, _ := s.GainerInfo("ETHUSDT"); g.Symbol != "ETHUSDT" {
		t.Error("Gainers snapshot aliases internal slice")
	}
}
