package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"fvg-liquidity-bot/internal/market"
)

// Client is a REST client for the Binance spot API. Every request passes a
// token-bucket rate limit and a circuit breaker; while the breaker is open,
// data calls fail fast with ErrDataUnavailable instead of hammering a broken
// endpoint.
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a new Binance client
func NewClient(apiKey, secretKey, baseURL string) *Client {
	settings := gobreaker.Settings{
		Name:     "binance-rest",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
	}

	return &Client{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// Binance allows 1200 request weight per minute; stay well under it.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// GetKlines fetches candlestick data
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: klines %s %s: %v", ErrDataUnavailable, symbol, interval, err)
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("%w: parsing klines: %v", ErrDataUnavailable, err)
	}

	candles := make([]market.Candle, len(rawKlines))
	for i, raw := range rawKlines {
		if len(raw) < 7 {
			return nil, fmt.Errorf("%w: short kline row", ErrDataUnavailable)
		}
		candles[i] = market.Candle{
			OpenTime:  int64(raw[0].(float64)),
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
			CloseTime: int64(raw[6].(float64)),
		}
	}
	return candles, nil
}

// GetPrice fetches the latest trade price for a symbol
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.baseURL, symbol)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return 0, fmt.Errorf("%w: price %s: %v", ErrDataUnavailable, symbol, err)
	}

	var ticker struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price,string"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, fmt.Errorf("%w: parsing price: %v", ErrDataUnavailable, err)
	}
	return ticker.Price, nil
}

// Ping checks API connectivity
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, c.baseURL+"/api/v3/ping")
	if err != nil {
		return fmt.Errorf("%w: ping: %v", ErrDataUnavailable, err)
	}
	return nil
}

// PlaceOrder submits a signed market order. Order placement bypasses the
// breaker: a trade the gate already approved should not be dropped because
// unrelated data calls were failing.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	params := map[string]string{
		"symbol":    req.Symbol,
		"side":      req.Side,
		"type":      "MARKET",
		"quantity":  strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		"timestamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	params["signature"] = c.sign(params)

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v3/order", nil)
	if err != nil {
		return nil, err
	}
	httpReq.URL.RawQuery = values.Encode()
	httpReq.Header.Set("X-MBX-APIKEY", c.apiKey)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionRejected, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrExecutionRejected, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrExecutionRejected, string(body))
	}

	var orderResp struct {
		Symbol       string  `json:"symbol"`
		OrderID      int64   `json:"orderId"`
		TransactTime int64   `json:"transactTime"`
		Price        float64 `json:"price,string"`
		ExecutedQty  float64 `json:"executedQty,string"`
		Status       string  `json:"status"`
		Side         string  `json:"side"`
	}
	if err := json.Unmarshal(body, &orderResp); err != nil {
		return nil, fmt.Errorf("%w: parsing order response: %v", ErrExecutionRejected, err)
	}

	return &OrderResult{
		OrderID:  strconv.FormatInt(orderResp.OrderID, 10),
		Symbol:   orderResp.Symbol,
		Side:     orderResp.Side,
		Price:    orderResp.Price,
		Quantity: orderResp.ExecutedQty,
		Status:   orderResp.Status,
		FilledAt: orderResp.TransactTime,
	}, nil
}

// get runs one rate-limited, breaker-guarded GET and returns the body.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) sign(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(values.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}
