package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"fvg-liquidity-bot/internal/logging"
	"fvg-liquidity-bot/internal/market"
)

// CandleHandler receives closed candles from the stream.
type CandleHandler func(symbol, interval string, candle market.Candle)

// KlineStream maintains a combined websocket subscription to Binance kline
// streams and forwards closed bars to a handler. The stream supplements the
// REST polling loop; the engine works fine without it, bars just arrive a
// cycle later.
type KlineStream struct {
	wsBaseURL string
	symbols   []string
	interval  string
	handler   CandleHandler
	log       *logging.Logger
}

// NewKlineStream creates a kline stream for the given symbols and interval
func NewKlineStream(wsBaseURL string, symbols []string, interval string, handler CandleHandler, log *logging.Logger) *KlineStream {
	if wsBaseURL == "" {
		wsBaseURL = "wss://stream.binance.com:9443"
	}
	return &KlineStream{
		wsBaseURL: wsBaseURL,
		symbols:   symbols,
		interval:  interval,
		handler:   handler,
		log:       log.WithComponent("kline-stream"),
	}
}

// klineEvent mirrors the combined-stream kline payload.
type klineEvent struct {
	Data struct {
		Symbol string `json:"s"`
		Kline  struct {
			StartTime int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Interval  string `json:"i"`
			Open      string `json:"o"`
			Close     string `json:"c"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Volume    string `json:"v"`
			Closed    bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

// Run connects and reads until the context is cancelled, reconnecting with
// backoff on failure.
func (ks *KlineStream) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		err := ks.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}

		ks.log.Warn("stream disconnected, reconnecting", "error", err, "backoff", backoff.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (ks *KlineStream) readLoop(ctx context.Context) error {
	streams := make([]string, 0, len(ks.symbols))
	for _, s := range ks.symbols {
		streams = append(streams, fmt.Sprintf("%s@kline_%s", strings.ToLower(s), ks.interval))
	}
	endpoint := fmt.Sprintf("%s/stream?streams=%s", ks.wsBaseURL, strings.Join(streams, "/"))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ks.log.Info("stream connected", "streams", len(streams), "interval", ks.interval)

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev klineEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		k := ev.Data.Kline
		if !k.Closed {
			continue
		}

		candle := market.Candle{
			OpenTime:  k.StartTime,
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
			CloseTime: k.CloseTime,
		}
		ks.handler(ev.Data.Symbol, k.Interval, candle)
	}
}
