package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantbot/internal/quantum"
)

// BinanceFeed fetches klines over REST and keeps a live last-price per symbol
// from the trade websocket stream.
type BinanceFeed struct {
	restURL string
	wsURL   string
	client  *http.Client

	mu      sync.RWMutex // guards prices, conn and running
	prices  map[string]decimal.Decimal
	conn    *websocket.Conn
	running bool

	stopCh chan struct{}
}

// NewBinanceFeed creates a feed against the public Binance spot API.
func NewBinanceFeed() *BinanceFeed {
	return &BinanceFeed{
		restURL: "https://api.binance.com",
		wsURL:   "wss://stream.binance.com:9443/ws",
		client:  &http.Client{Timeout: 10 * time.Second},
		prices:  make(map[string]decimal.Decimal),
		stopCh:  make(chan struct{}),
	}
}

// GetBars fetches the most recent klines for a symbol, oldest first.
func (f *BinanceFeed) GetBars(ctx context.Context, symbol, interval string, count int) ([]quantum.Bar, error) {
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d",
		f.restURL, symbol, interval, count)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: klines returned %d", ErrUnavailable, resp.StatusCode)
	}

	var raw [][]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode klines: %v", ErrUnavailable, err)
	}

	bars := make([]quantum.Bar, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		openTime, _ := k[0].(float64)
		bars = append(bars, quantum.Bar{
			Timestamp: time.UnixMilli(int64(openTime)),
			Open:      parseFloat(k[1]),
			High:      parseFloat(k[2]),
			Low:       parseFloat(k[3]),
			Close:     parseFloat(k[4]),
			Volume:    parseFloat(k[5]),
		})
	}

	return bars, nil
}

// LastPrice returns the most recent streamed trade price for a symbol, or
// false if the stream has not delivered one yet.
func (f *BinanceFeed) LastPrice(symbol string) (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[strings.ToUpper(symbol)]
	return p, ok
}

// StartStream connects the trade websocket for the given symbols and keeps
// the last-price map current, reconnecting on failure until Stop is called.
// A second call while the stream is running is a no-op.
func (f *BinanceFeed) StartStream(symbols []string) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.runWebSocket(symbols)
	log.Info().Strs("symbols", symbols).Msg("📈 Binance stream started")
}

// Stop closes the websocket connection. Safe to call more than once.
func (f *BinanceFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)
	if f.conn != nil {
		f.conn.Close()
	}
}

func (f *BinanceFeed) isRunning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.running
}

func (f *BinanceFeed) runWebSocket(symbols []string) {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@trade"
	}
	url := fmt.Sprintf("%s/%s", f.wsURL, strings.Join(streams, "/"))

	for f.isRunning() {
		if err := f.connect(url); err != nil {
			log.Error().Err(err).Msg("WebSocket connection failed")
			select {
			case <-f.stopCh:
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		f.readMessages()

		if f.isRunning() {
			log.Warn().Msg("WebSocket disconnected, reconnecting...")
			select {
			case <-f.stopCh:
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (f *BinanceFeed) connect(url string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	f.mu.Lock()
	if !f.running {
		// Stopped while dialing: the connection must not outlive Stop.
		f.mu.Unlock()
		conn.Close()
		return fmt.Errorf("stream stopped")
	}
	f.conn = conn
	f.mu.Unlock()

	log.Info().Str("url", url).Msg("🔌 WebSocket connected")
	return nil
}

// readMessages drains one connection until it fails. Stop closes the
// connection, which surfaces here as a read error.
func (f *BinanceFeed) readMessages() {
	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.isRunning() {
				log.Error().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg struct {
			Event  string `json:"e"`
			Symbol string `json:"s"`
			Price  string `json:"p"`
		}
		if err := json.Unmarshal(message, &msg); err != nil || msg.Event != "trade" {
			continue
		}

		price, err := decimal.NewFromString(msg.Price)
		if err != nil {
			continue
		}

		f.mu.Lock()
		f.prices[msg.Symbol] = price
		f.mu.Unlock()
	}
}

func parseFloat(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	out, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return out
}
