package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arbmon/internal/models"
)

// tickerMessage is the wire shape of a last-trade ticker update. Price
// fields arrive as JSON strings on every venue observed in this pack.
type tickerMessage struct {
	Topic string `json:"topic"`
	Data  struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"data"`
}

// TickerFeeder is the per-pair feeder shape: one subscription stream bound
// to a single pair, a single-entry cache.
type TickerFeeder struct {
	venue string
	pair  models.Pair
	topic string
	log   *zap.Logger

	mgr *reconnectManager

	mu    sync.RWMutex
	quote models.VenueQuote
	have  bool
}

// NewTickerFeeder builds a per-pair feeder. topic is the venue-specific
// subscription channel name (e.g. "tickers.ADAUSDC").
func NewTickerFeeder(venue, wsURL string, pair models.Pair, topic string, log *zap.Logger) *TickerFeeder {
	f := &TickerFeeder{venue: venue, pair: pair, topic: topic, log: log}
	f.mgr = newReconnectManager(venue, wsURL, log)
	f.mgr.SetOnMessage(f.handleMessage)
	return f
}

func (f *TickerFeeder) Connect() error {
	if f.mgr.State() == StateConnected {
		return ErrAlreadyConnected
	}
	sub := map[string]interface{}{"op": "subscribe", "args": []string{f.topic}}
	f.mgr.AddSubscription(sub)
	if err := f.mgr.Connect(); err != nil {
		return err
	}
	return f.mgr.Send(sub)
}

func (f *TickerFeeder) Latest(pair models.Pair) (models.VenueQuote, bool) {
	if pair != f.pair {
		return models.VenueQuote{}, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.quote, f.have
}

func (f *TickerFeeder) Close() error {
	return f.mgr.Close()
}

func (f *TickerFeeder) handleMessage(raw []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.log.Debug("ticker parse failed", zap.String("venue", f.venue), zap.Error(err))
		return
	}
	if msg.Data.LastPrice == "" {
		return
	}
	price, err := decimal.NewFromString(msg.Data.LastPrice)
	if err != nil || !price.IsPositive() {
		f.log.Debug("ticker price invalid", zap.String("venue", f.venue), zap.String("raw", msg.Data.LastPrice))
		return
	}

	q := models.VenueQuote{
		Venue:      f.venue,
		Pair:       f.pair,
		Price:      price,
		ObservedAt: time.Now().UTC(),
	}

	f.mu.Lock()
	f.quote = q
	f.have = true
	f.mu.Unlock()
}
