package market

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidSequence is returned when an appended candle batch is malformed:
// non-monotonic open times, duplicates, or inverted high/low bounds.
var ErrInvalidSequence = errors.New("invalid candle sequence")

// Candle is a single OHLCV bar. Immutable once appended to a store.
type Candle struct {
	OpenTime  int64   `json:"open_time"` // Milliseconds since epoch
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// Store keeps an ordered, append-only candle window per (symbol, timeframe)
// with bounded retention. Older candles are discarded from the front once the
// retention limit is exceeded.
type Store struct {
	retention int
	mu        sync.RWMutex
	series    map[string][]Candle
}

// NewStore creates a store retaining at most retention candles per series.
func NewStore(retention int) *Store {
	if retention <= 0 {
		retention = 500
	}
	return &Store{
		retention: retention,
		series:    make(map[string][]Candle),
	}
}

func seriesKey(symbol, timeframe string) string {
	return symbol + ":" + timeframe
}

// Append adds candles to a series. Candles already present (by open time) are
// skipped; a batch that would break strict open-time ordering is rejected
// wholesale with ErrInvalidSequence and the series is left untouched.
func (s *Store) Append(symbol, timeframe string, candles []Candle) error {
	if err := ValidateSequence(candles); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey(symbol, timeframe)
	existing := s.series[key]

	var lastOpen int64 = -1
	if len(existing) > 0 {
		lastOpen = existing[len(existing)-1].OpenTime
	}

	for _, c := range candles {
		if c.OpenTime <= lastOpen {
			continue // already retained
		}
		existing = append(existing, c)
		lastOpen = c.OpenTime
	}

	if overflow := len(existing) - s.retention; overflow > 0 {
		existing = append([]Candle(nil), existing[overflow:]...)
	}
	s.series[key] = existing
	return nil
}

// Replace swaps a series wholesale with a validated window.
func (s *Store) Replace(symbol, timeframe string, candles []Candle) error {
	if err := ValidateSequence(candles); err != nil {
		return err
	}
	window := candles
	if len(window) > s.retention {
		window = window[len(window)-s.retention:]
	}

	s.mu.Lock()
	s.series[seriesKey(symbol, timeframe)] = append([]Candle(nil), window...)
	s.mu.Unlock()
	return nil
}

// Window returns a copy of the retained candles for a series, oldest first.
func (s *Store) Window(symbol, timeframe string) []Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Candle(nil), s.series[seriesKey(symbol, timeframe)]...)
}

// Len returns the number of retained candles for a series.
func (s *Store) Len(symbol, timeframe string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[seriesKey(symbol, timeframe)])
}

// LastClose returns the close of the most recent candle, or 0 if the series
// is empty.
func (s *Store) LastClose(symbol, timeframe string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[seriesKey(symbol, timeframe)]
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1].Close
}

// ValidateSequence checks that candles are strictly ordered by open time with
// no duplicates and sane per-bar bounds.
func ValidateSequence(candles []Candle) error {
	for i, c := range candles {
		if c.High < c.Low {
			return fmt.Errorf("%w: candle %d has high %.8f below low %.8f", ErrInvalidSequence, i, c.High, c.Low)
		}
		if i > 0 && c.OpenTime <= candles[i-1].OpenTime {
			return fmt.Errorf("%w: open time not strictly increasing at index %d", ErrInvalidSequence, i)
		}
	}
	return nil
}
