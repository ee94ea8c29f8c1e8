package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arbmon/internal/models"
)

// MultiplexFeeder is the multi-pair feeder shape: a single subscription
// multiplexes every configured pair over one WebSocket; the cache is a
// map keyed by pair.
type MultiplexFeeder struct {
	venue string
	log   *zap.Logger

	// topicToPair maps the venue's wire symbol back to our Pair, since the
	// incoming message only carries the venue's own symbol string.
	topicToPair map[string]models.Pair

	mgr *reconnectManager

	mu     sync.RWMutex
	quotes map[models.Pair]models.VenueQuote
}

// NewMultiplexFeeder builds a multi-pair feeder. symbolToPair maps each
// venue wire symbol (e.g. "ADAUSDC") to the Pair it represents.
func NewMultiplexFeeder(venue, wsURL string, symbolToPair map[string]models.Pair, log *zap.Logger) *MultiplexFeeder {
	f := &MultiplexFeeder{
		venue:       venue,
		log:         log,
		topicToPair: symbolToPair,
		quotes:      make(map[models.Pair]models.VenueQuote),
	}
	f.mgr = newReconnectManager(venue, wsURL, log)
	f.mgr.SetOnMessage(f.handleMessage)
	return f
}

func (f *MultiplexFeeder) Connect() error {
	if f.mgr.State() == StateConnected {
		return ErrAlreadyConnected
	}

	topics := make([]string, 0, len(f.topicToPair))
	for symbol := range f.topicToPair {
		topics = append(topics, "tickers."+symbol)
	}
	sub := map[string]interface{}{"op": "subscribe", "args": topics}
	f.mgr.AddSubscription(sub)

	if err := f.mgr.Connect(); err != nil {
		return err
	}
	return f.mgr.Send(sub)
}

func (f *MultiplexFeeder) Latest(pair models.Pair) (models.VenueQuote, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.quotes[pair]
	return q, ok
}

func (f *MultiplexFeeder) Close() error {
	return f.mgr.Close()
}

func (f *MultiplexFeeder) handleMessage(raw []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.log.Debug("ticker parse failed", zap.String("venue", f.venue), zap.Error(err))
		return
	}
	pair, known := f.topicToPair[msg.Data.Symbol]
	if !known {
		return
	}
	if msg.Data.LastPrice == "" {
		return
	}
	price, err := decimal.NewFromString(msg.Data.LastPrice)
	if err != nil || !price.IsPositive() {
		return
	}

	q := models.VenueQuote{
		Venue:      f.venue,
		Pair:       pair,
		Price:      price,
		ObservedAt: time.Now().UTC(),
	}

	f.mu.Lock()
	f.quotes[pair] = q
	f.mu.Unlock()
}
