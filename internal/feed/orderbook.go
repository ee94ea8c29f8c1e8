package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arbmon/internal/models"
)

// priceLevel is one side of a book update: price and size as wire strings.
type priceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// orderBookMessage is the wire shape of a DEX-style book update: top of
// book only, best bid and best ask.
type orderBookMessage struct {
	Symbol string       `json:"symbol"`
	Bids   []priceLevel `json:"bids"`
	Asks   []priceLevel `json:"asks"`
}

// OrderBookFeeder derives price as the arithmetic mean of best bid and
// best ask, for venues (typically DEXes) that expose only book depth and
// no last-trade ticker. Quotes missing either side are dropped.
type OrderBookFeeder struct {
	venue string
	pair  models.Pair
	topic string
	log   *zap.Logger

	mgr *reconnectManager

	mu    sync.RWMutex
	quote models.VenueQuote
	have  bool
}

func NewOrderBookFeeder(venue, wsURL string, pair models.Pair, topic string, log *zap.Logger) *OrderBookFeeder {
	f := &OrderBookFeeder{venue: venue, pair: pair, topic: topic, log: log}
	f.mgr = newReconnectManager(venue, wsURL, log)
	f.mgr.SetOnMessage(f.handleMessage)
	return f
}

func (f *OrderBookFeeder) Connect() error {
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

func (f *OrderBookFeeder) Latest(pair models.Pair) (models.VenueQuote, bool) {
	if pair != f.pair {
		return models.VenueQuote{}, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.quote, f.have
}

func (f *OrderBookFeeder) Close() error {
	return f.mgr.Close()
}

func (f *OrderBookFeeder) handleMessage(raw []byte) {
	var msg orderBookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.log.Debug("orderbook parse failed", zap.String("venue", f.venue), zap.Error(err))
		return
	}
	if len(msg.Bids) == 0 || len(msg.Asks) == 0 {
		return
	}

	bestBid, err := decimal.NewFromString(msg.Bids[0].Price)
	if err != nil {
		return
	}
	bestAsk, err := decimal.NewFromString(msg.Asks[0].Price)
	if err != nil {
		return
	}
	if !bestBid.IsPositive() || !bestAsk.IsPositive() {
		return
	}

	mid := bestBid.Add(bestAsk).Div(decimal.NewFromInt(2))

	q := models.VenueQuote{
		Venue:      f.venue,
		Pair:       f.pair,
		Price:      mid,
		ObservedAt: time.Now().UTC(),
	}

	f.mu.Lock()
	f.quote = q
	f.have = true
	f.mu.Unlock()
}
