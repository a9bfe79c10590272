package analysis

import (
	"errors"
	"testing"

	"fvg-liquidity-bot/internal/market"
)

// TestTimeframeDurationOrdering checks the canonical sort key
func TestTimeframeDurationOrdering(t *testing.T) {
	ordered := []Timeframe{TF1m, TF5m, TF15m, TF1h, TF4h, TF1d}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Duration() >= ordered[i].Duration() {
			t.Errorf("Expected %s < %s by duration", ordered[i-1], ordered[i])
		}
	}

	// Unknown timeframes sort after every known one
	if Timeframe("2w").Duration() <= TF1d.Duration() {
		t.Error("Unknown timeframe must sort last")
	}
}

// TestATR computes the average true range over a known window
func TestATR(t *testing.T) {
	candles := []market.Candle{
		{OpenTime: 1000, Open: 100, High: 101, Low: 99, Close: 100, CloseTime: 1999},
		{OpenTime: 2000, Open: 100, High: 105, Low: 100, Close: 102, CloseTime: 2999},
		{OpenTime: 3000, Open: 102, High: 104, Low: 101, Close: 103, CloseTime: 3999},
	}

	// TR(1) = max(5, |105-100|, |100-100|) = 5
	// TR(2) = max(3, |104-102|, |101-102|) = 3
	if got := ATR(candles, 2); got != 4 {
		t.Errorf("Expected ATR 4, got %f", got)
	}
}

// TestATRShortWindow returns zero when the window cannot cover the period
func TestATRShortWindow(t *testing.T) {
	candles := []market.Candle{
		{OpenTime: 1000, High: 101, Low: 99, Close: 100},
	}
	if got := ATR(candles, 14); got != 0 {
		t.Errorf("Expected 0 for a short window, got %f", got)
	}
}

func testAnalyzer() *Analyzer {
	return NewAnalyzer(
		NewFVGDetector(0.001, 30, false),
		NewLiquidityDetector(2, 0, 0.001, 0.001, 0.001, 10, 0),
	)
}

// TestAnalyzeRejectsInvalidSequence surfaces malformed candle input
func TestAnalyzeRejectsInvalidSequence(t *testing.T) {
	candles := []market.Candle{
		{OpenTime: 2000, High: 101, Low: 99, Close: 100},
		{OpenTime: 1000, High: 101, Low: 99, Close: 100},
	}

	_, err := testAnalyzer().Analyze("BTCUSDT", TF1h, candles)
	if !errors.Is(err, market.ErrInvalidSequence) {
		t.Fatalf("Expected ErrInvalidSequence, got %v", err)
	}
}

// TestAnalyzeEmptyWindow tolerates missing data
func TestAnalyzeEmptyWindow(t *testing.T) {
	ta, err := testAnalyzer().Analyze("BTCUSDT", TF1h, nil)
	if err != nil {
		t.Fatalf("Expected no error for empty window, got %v", err)
	}
	if ta.CurrentPrice != 0 || len(ta.FVGs) != 0 {
		t.Error("Empty window must produce an empty analysis")
	}
}

// TestAnalyzePopulatesCurrentState carries price, index and ATR
func TestAnalyzePopulatesCurrentState(t *testing.T) {
	candles := []market.Candle{
		{OpenTime: 1000, Open: 95, High: 100, Low: 94, Close: 98, CloseTime: 1999},
		{OpenTime: 2000, Open: 98, High: 105, Low: 97, Close: 104, CloseTime: 2999},
		{OpenTime: 3000, Open: 104, High: 108, Low: 101, Close: 106, CloseTime: 3999},
	}

	ta, err := testAnalyzer().Analyze("BTCUSDT", TF1h, candles)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if ta.CurrentIndex != 2 {
		t.Errorf("Expected current index 2, got %d", ta.CurrentIndex)
	}
	if ta.CurrentPrice != 106 {
		t.Errorf("Expected current price 106, got %f", ta.CurrentPrice)
	}
	if len(ta.FVGs) != 1 {
		t.Errorf("Expected the bullish gap to be detected, got %d FVGs", len(ta.FVGs))
	}
}
