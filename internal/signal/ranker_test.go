package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankOrdersByConfidence(t *testing.T) {
	ranker := NewRanker(0.60, 2.0)

	signals := []Signal{
		{ID: "a", Symbol: "BTCUSDT", Confidence: 0.70, RRRatio: 2.5},
		{ID: "b", Symbol: "ETHUSDT", Confidence: 0.90, RRRatio: 2.0},
		{ID: "c", Symbol: "SOLUSDT", Confidence: 0.80, RRRatio: 3.0},
	}

	ranked := ranker.Rank(signals, 0)
	require.Len(t, ranked, 3)
	assert.Equal(t, "b", ranked[0].ID)
	assert.Equal(t, "c", ranked[1].ID)
	assert.Equal(t, "a", ranked[2].ID)
}

func TestRankBreaksTiesByRRThenSymbol(t *testing.T) {
	ranker := NewRanker(0.60, 2.0)

	// Equal confidence: higher reward/risk first.
	signals := []Signal{
		{ID: "low-rr", Symbol: "BTCUSDT", Confidence: 0.75, RRRatio: 2.0},
		{ID: "high-rr", Symbol: "ETHUSDT", Confidence: 0.75, RRRatio: 3.0},
	}
	ranked := ranker.Rank(signals, 0)
	require.Len(t, ranked, 2)
	assert.Equal(t, "high-rr", ranked[0].ID)

	// Full tie: symbol ascending keeps the order total.
	signals = []Signal{
		{ID: "z", Symbol: "ZENUSDT", Confidence: 0.75, RRRatio: 2.5},
		{ID: "a", Symbol: "ADAUSDT", Confidence: 0.75, RRRatio: 2.5},
	}
	ranked = ranker.Rank(signals, 0)
	assert.Equal(t, "a", ranked[0].ID)
	assert.Equal(t, "z", ranked[1].ID)
}

func TestRankExcludesBelowFloors(t *testing.T) {
	ranker := NewRanker(0.60, 2.0)

	signals := []Signal{
		{ID: "ok", Symbol: "BTCUSDT", Confidence: 0.80, RRRatio: 2.5},
		{ID: "low-conf", Symbol: "ETHUSDT", Confidence: 0.50, RRRatio: 3.0},
		{ID: "low-rr", Symbol: "SOLUSDT", Confidence: 0.90, RRRatio: 1.5},
	}

	ranked := ranker.Rank(signals, 0)
	require.Len(t, ranked, 1)
	assert.Equal(t, "ok", ranked[0].ID)
}

func TestRankAppliesLimit(t *testing.T) {
	ranker := NewRanker(0.0, 0.0)

	signals := []Signal{
		{ID: "a", Symbol: "A", Confidence: 0.9, RRRatio: 2},
		{ID: "b", Symbol: "B", Confidence: 0.8, RRRatio: 2},
		{ID: "c", Symbol: "C", Confidence: 0.7, RRRatio: 2},
	}

	ranked := ranker.Rank(signals, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].ID)
	assert.Equal(t, "b", ranked[1].ID)
}

func TestRankEmptyInput(t *testing.T) {
	ranker := NewRanker(0.60, 2.0)
	assert.Empty(t, ranker.Rank(nil, 5))
}
