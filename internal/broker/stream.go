package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/steinwealth/easyorb/internal/logger"
)

// StreamingQuoteCache is an optional real-time quote cache fed by a
// websocket connection. No component in this module constructs one: C4's
// ADV refresh and C8's monitor tick read quotes through the polling broker
// calls, and the BROKER_STREAMING_ENABLED setting is stored in config but
// not consulted.
type StreamingQuoteCache struct {
	mu     sync.RWMutex
	latest map[string]Quote
	log    *logger.Logger
}

// NewStreamingQuoteCache creates an empty cache.
func NewStreamingQuoteCache() *StreamingQuoteCache {
	return &StreamingQuoteCache{latest: make(map[string]Quote), log: logger.For("broker.stream")}
}

// Get returns the last streamed quote for symbol, if any.
func (c *StreamingQuoteCache) Get(symbol string) (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.latest[symbol]
	return q, ok
}

type wireQuote struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Volume int64   `json:"volume"`
}

// Run connects to wsURL and subscribes to symbols, updating the cache until
// ctx is cancelled. Reconnects with a fixed backoff on read errors; a
// connection failure never blocks the caller (intended to run in its own
// task).
func (c *StreamingQuoteCache) Run(ctx context.Context, wsURL string, symbols []string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := c.runOnce(ctx, wsURL, symbols); err != nil {
			c.log.Warnf("streaming quote connection lost: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (c *StreamingQuoteCache) runOnce(ctx context.Context, wsURL string, symbols []string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"action": "subscribe", "symbols": symbols}); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var wq wireQuote
		if err := json.Unmarshal(raw, &wq); err != nil {
			continue
		}
		c.mu.Lock()
		c.latest[wq.Symbol] = Quote{
			Symbol: wq.Symbol,
			Last:   wq.Last,
			Bid:    wq.Bid,
			Ask:    wq.Ask,
			Volume: wq.Volume,
			AsOf:   time.Now(),
		}
		c.mu.Unlock()
	}
}
