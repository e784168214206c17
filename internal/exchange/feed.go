package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"pump-monitor/pkg/types"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	writeTimeout     = 10 * time.Second
	baseReconnectWait = time.Second
	maxReconnectWait  = 60 * time.Second
	outBufferSize     = 1024
)

// Feed is the market-data WebSocket transport: it dials a combined-stream
// URL, subscribes to ticker/markPrice/depth channels for every registered
// symbol, and reconnects with exponential backoff and full jitter on any
// drop.
type Feed struct {
	baseURL string
	symbols []string
	out     chan types.ExchangeMessage
	logger  *slog.Logger
	limiter *RateLimiter

	mu       sync.Mutex
	conn     *websocket.Conn
}

// NewFeed builds a Feed that will subscribe to symbols once Run starts.
func NewFeed(baseURL string, symbols []string, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		baseURL: baseURL,
		symbols: symbols,
		limiter: NewRateLimiter(),
		out:     make(chan types.ExchangeMessage, outBufferSize),
		logger:  logger,
	}
}

// Messages returns the channel decoded ExchangeMessage values are pushed
// onto. Callers must keep draining it; a full channel causes the feed to
// warn and drop the message rather than block.
func (f *Feed) Messages() <-chan types.ExchangeMessage {
	return f.out
}

// Run dials, subscribes, and reads until ctx is cancelled, reconnecting
// with exponential backoff (base 1s, cap 60s, full jitter) on any error,
// mirroring WSFeed.Run/connectAndRead.
func (f *Feed) Run(ctx context.Context) {
	wait := baseReconnectWait
	for {
		if ctx.Err() != nil {
			return
		}

		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			f.logger.Warn("market feed disconnected, reconnecting", "error", err, "wait", wait)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter(wait)):
		}

		wait *= 2
		if wait > maxReconnectWait {
			wait = maxReconnectWait
		}
	}
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d)))
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	url := f.streamURL()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial market feed: %w", err)
	}
	defer conn.Close()

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go f.pingLoop(connCtx, conn)

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read market frame: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		decoded, ok := f.decode(msg)
		if !ok {
			continue
		}

		select {
		case f.out <- decoded:
		default:
			f.logger.Warn("market feed output buffer full, dropping message",
				"symbol", decoded.Symbol, "channel", decoded.Channel)
		}
	}
}

func (f *Feed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			f.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// streamURL builds a combined-stream URL subscribing every registered
// symbol to the ticker, markPrice, and depth channels in one connection.
func (f *Feed) streamURL() string {
	streams := make([]string, 0, len(f.symbols)*3)
	for _, sym := range f.symbols {
		if !f.limiter.AllowSubscribe() {
			f.logger.Warn("subscribe rate limit reached, deferring symbol to next reconnect", "symbol", sym)
			continue
		}
		lower := strings.ToLower(sym)
		streams = append(streams,
			lower+"@ticker",
			lower+"@markPrice",
			lower+"@depth20",
		)
	}
	return f.baseURL + "/stream?streams=" + strings.Join(streams, "/")
}

type wsEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type wsTickerPayload struct {
	Symbol string `json:"s"`
	Last   string `json:"c"`
}

type wsMarkPricePayload struct {
	Symbol string `json:"s"`
	Mark   string `json:"p"`
}

type wsDepthLevel [2]string

type wsDepthPayload struct {
	Symbol string         `json:"s"`
	Bids   []wsDepthLevel `json:"b"`
	Asks   []wsDepthLevel `json:"a"`
}

// decode classifies an incoming frame by its stream suffix and converts it
// into a tagged ExchangeMessage, mirroring dispatchMessage's event_type
// switch. Unrecognized frames are dropped.
func (f *Feed) decode(raw []byte) (types.ExchangeMessage, bool) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return types.ExchangeMessage{}, false
	}

	now := time.Now()
	switch {
	case strings.HasSuffix(env.Stream, "@ticker"):
		var p wsTickerPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return types.ExchangeMessage{}, false
		}
		last, err := decimal.NewFromString(p.Last)
		if err != nil {
			return types.ExchangeMessage{}, false
		}
		return types.ExchangeMessage{
			Channel: types.ChannelTicker,
			Symbol:  p.Symbol,
			Payload: types.Ticker{Symbol: p.Symbol, LastPrice: last, Ts: now},
			Ts:      now,
		}, true

	case strings.HasSuffix(env.Stream, "@markPrice"):
		var p wsMarkPricePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return types.ExchangeMessage{}, false
		}
		mark, err := decimal.NewFromString(p.Mark)
		if err != nil {
			return types.ExchangeMessage{}, false
		}
		return types.ExchangeMessage{
			Channel: types.ChannelMark,
			Symbol:  p.Symbol,
			Payload: types.MarkPrice{Symbol: p.Symbol, MarkPrice: mark, FairPrice: mark, Ts: now},
			Ts:      now,
		}, true

	case strings.Contains(env.Stream, "@depth"):
		var p wsDepthPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return types.ExchangeMessage{}, false
		}
		bids := decodeLevels(p.Bids)
		asks := decodeLevels(p.Asks)
		return types.ExchangeMessage{
			Channel: types.ChannelDepth,
			Symbol:  p.Symbol,
			Payload: types.DepthUpdate{Symbol: p.Symbol, Bids: bids, Asks: asks, Ts: now},
			Ts:      now,
		}, true

	default:
		return types.ExchangeMessage{}, false
	}
}

func decodeLevels(levels []wsDepthLevel) []types.PriceLevel {
	out := make([]types.PriceLevel, 0, len(levels))
	for _, l := range levels {
		price, err := decimal.NewFromString(l[0])
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(l[1])
		if err != nil {
			continue
		}
		out = append(out, types.PriceLevel{Price: price, Size: size})
	}
	return out
}
