package market

import (
	"errors"
	"testing"
)

func seq(opens ...int64) []Candle {
	candles := make([]Candle, len(opens))
	for i, open := range opens {
		candles[i] = Candle{
			OpenTime:  open,
			Open:      100,
			High:      101,
			Low:       99,
			Close:     100,
			CloseTime: open + 999,
		}
	}
	return candles
}

// TestAppendAndWindow checks basic append and retrieval
func TestAppendAndWindow(t *testing.T) {
	store := NewStore(10)

	if err := store.Append("BTCUSDT", "1h", seq(1000, 2000, 3000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	window := store.Window("BTCUSDT", "1h")
	if len(window) != 3 {
		t.Fatalf("Expected 3 candles, got %d", len(window))
	}
	if window[0].OpenTime != 1000 || window[2].OpenTime != 3000 {
		t.Error("Window order does not match append order")
	}
}

// TestAppendSkipsDuplicates ignores candles already retained
func TestAppendSkipsDuplicates(t *testing.T) {
	store := NewStore(10)

	if err := store.Append("BTCUSDT", "1h", seq(1000, 2000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append("BTCUSDT", "1h", seq(1000, 2000, 3000)); err != nil {
		t.Fatalf("Second append failed: %v", err)
	}

	if n := store.Len("BTCUSDT", "1h"); n != 3 {
		t.Errorf("Expected 3 candles after overlapping append, got %d", n)
	}
}

// TestRetentionTrimsFront drops the oldest candles past the limit
func TestRetentionTrimsFront(t *testing.T) {
	store := NewStore(3)

	if err := store.Append("BTCUSDT", "1h", seq(1000, 2000, 3000, 4000, 5000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	window := store.Window("BTCUSDT", "1h")
	if len(window) != 3 {
		t.Fatalf("Expected retention of 3, got %d", len(window))
	}
	if window[0].OpenTime != 3000 {
		t.Errorf("Expected oldest retained candle at 3000, got %d", window[0].OpenTime)
	}
}

// TestRejectInvalidSequence rejects out-of-order batches wholesale
func TestRejectInvalidSequence(t *testing.T) {
	store := NewStore(10)

	err := store.Append("BTCUSDT", "1h", seq(2000, 1000))
	if !errors.Is(err, ErrInvalidSequence) {
		t.Fatalf("Expected ErrInvalidSequence, got %v", err)
	}
	if store.Len("BTCUSDT", "1h") != 0 {
		t.Error("Series must be untouched after a rejected batch")
	}
}

// TestRejectInvertedBounds rejects candles with high below low
func TestRejectInvertedBounds(t *testing.T) {
	bad := []Candle{{OpenTime: 1000, High: 99, Low: 101}}
	if err := ValidateSequence(bad); !errors.Is(err, ErrInvalidSequence) {
		t.Fatalf("Expected ErrInvalidSequence for inverted bounds, got %v", err)
	}
}

// TestSeriesIsolation keeps (symbol, timeframe) series independent
func TestSeriesIsolation(t *testing.T) {
	store := NewStore(10)

	if err := store.Append("BTCUSDT", "1h", seq(1000)); err != nil {
		t.Fatal(err)
	}
	if err := store.Append("BTCUSDT", "5m", seq(1000, 2000)); err != nil {
		t.Fatal(err)
	}
	if err := store.Append("ETHUSDT", "1h", seq(1000, 2000, 3000)); err != nil {
		t.Fatal(err)
	}

	if store.Len("BTCUSDT", "1h") != 1 || store.Len("BTCUSDT", "5m") != 2 || store.Len("ETHUSDT", "1h") != 3 {
		t.Error("Series are not isolated by symbol and timeframe")
	}
}

// TestWindowReturnsCopy ensures callers cannot mutate the retained series
func TestWindowReturnsCopy(t *testing.T) {
	store := NewStore(10)
	if err := store.Append("BTCUSDT", "1h", seq(1000, 2000)); err != nil {
		t.Fatal(err)
	}

	window := store.Window("BTCUSDT", "1h")
	window[0].Close = 999

	if store.Window("BTCUSDT", "1h")[0].Close == 999 {
		t.Error("Window must return a copy, not the retained slice")
	}
}

// TestReplace swaps a series wholesale
func TestReplace(t *testing.T) {
	store := NewStore(10)
	if err := store.Append("BTCUSDT", "1h", seq(1000, 2000, 3000)); err != nil {
		t.Fatal(err)
	}
	if err := store.Replace("BTCUSDT", "1h", seq(5000, 6000)); err != nil {
		t.Fatal(err)
	}

	window := store.Window("BTCUSDT", "1h")
	if len(window) != 2 || window[0].OpenTime != 5000 {
		t.Errorf("Replace did not swap the series: %+v", window)
	}
}

// TestLastClose returns the most recent close or zero
func TestLastClose(t *testing.T) {
	store := NewStore(10)
	if store.LastClose("BTCUSDT", "1h") != 0 {
		t.Error("Expected 0 for an empty series")
	}

	candles := seq(1000, 2000)
	candles[1].Close = 123.45
	if err := store.Append("BTCUSDT", "1h", candles); err != nil {
		t.Fatal(err)
	}
	if got := store.LastClose("BTCUSDT", "1h"); got != 123.45 {
		t.Errorf("Expected last close 123.45, got %f", got)
	}
}
