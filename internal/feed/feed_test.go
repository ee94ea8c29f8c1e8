package feed

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arbmon/internal/models"
)

func TestTickerFeeder_HandleMessage(t *testing.T) {
	f := NewTickerFeeder("bybit", "wss://example.invalid", models.Pair("ADA/USDC"), "tickers.ADAUSDC", zap.NewNop())

	if _, ok := f.Latest(models.Pair("ADA/USDC")); ok {
		t.Fatal("expected no quote before first message")
	}

	f.handleMessage([]byte(`{"topic":"tickers.ADAUSDC","data":{"symbol":"ADAUSDC","bid1Price":"0.3998","ask1Price":"0.4002","lastPrice":"0.4000"}}`))

	q, ok := f.Latest(models.Pair("ADA/USDC"))
	if !ok {
		t.Fatal("expected a quote after message")
	}
	if !q.Price.Equal(mustDecimal(t, "0.4000")) {
		t.Errorf("price = %s, want 0.4000", q.Price)
	}
	if q.Venue != "bybit" {
		t.Errorf("venue = %s, want bybit", q.Venue)
	}
}

func TestTickerFeeder_UnknownPairReturnsFalse(t *testing.T) {
	f := NewTickerFeeder("bybit", "wss://example.invalid", models.Pair("ADA/USDC"), "tickers.ADAUSDC", zap.NewNop())
	f.handleMessage([]byte(`{"topic":"tickers.ADAUSDC","data":{"symbol":"ADAUSDC","lastPrice":"0.40"}}`))

	if _, ok := f.Latest(models.Pair("BTC/USDT")); ok {
		t.Fatal("expected false for a pair this feeder doesn't track")
	}
}

func TestTickerFeeder_DropsNonPositivePrice(t *testing.T) {
	f := NewTickerFeeder("bybit", "wss://example.invalid", models.Pair("ADA/USDC"), "tickers.ADAUSDC", zap.NewNop())
	f.handleMessage([]byte(`{"topic":"tickers.ADAUSDC","data":{"symbol":"ADAUSDC","lastPrice":"0"}}`))

	if _, ok := f.Latest(models.Pair("ADA/USDC")); ok {
		t.Fatal("expected a zero price to be dropped, not cached")
	}
}

func TestTickerFeeder_MalformedMessageIsSkippedNotFatal(t *testing.T) {
	f := NewTickerFeeder("bybit", "wss://example.invalid", models.Pair("ADA/USDC"), "tickers.ADAUSDC", zap.NewNop())

	f.handleMessage([]byte(`not json`))
	f.handleMessage([]byte(`{"topic":"tickers.ADAUSDC","data":{"symbol":"ADAUSDC","lastPrice":"0.41"}}`))

	q, ok := f.Latest(models.Pair("ADA/USDC"))
	if !ok || !q.Price.Equal(mustDecimal(t, "0.41")) {
		t.Fatal("a malformed message must not stop later valid messages from being cached")
	}
}

func TestMultiplexFeeder_RoutesBySymbol(t *testing.T) {
	symbolToPair := map[string]models.Pair{
		"ADAUSDC": models.Pair("ADA/USDC"),
		"BTCUSDT": models.Pair("BTC/USDT"),
	}
	f := NewMultiplexFeeder("okx", "wss://example.invalid", symbolToPair, zap.NewNop())

	f.handleMessage([]byte(`{"topic":"tickers.ADAUSDC","data":{"symbol":"ADAUSDC","lastPrice":"0.40"}}`))
	f.handleMessage([]byte(`{"topic":"tickers.BTCUSDT","data":{"symbol":"BTCUSDT","lastPrice":"65000.50"}}`))

	q1, ok := f.Latest(models.Pair("ADA/USDC"))
	if !ok || !q1.Price.Equal(mustDecimal(t, "0.40")) {
		t.Fatalf("ADA/USDC quote wrong: %+v", q1)
	}
	q2, ok := f.Latest(models.Pair("BTC/USDT"))
	if !ok || !q2.Price.Equal(mustDecimal(t, "65000.50")) {
		t.Fatalf("BTC/USDT quote wrong: %+v", q2)
	}
}

func TestMultiplexFeeder_UnknownSymbolIgnored(t *testing.T) {
	f := NewMultiplexFeeder("okx", "wss://example.invalid", map[string]models.Pair{"ADAUSDC": models.Pair("ADA/USDC")}, zap.NewNop())
	f.handleMessage([]byte(`{"topic":"tickers.XRPUSDT","data":{"symbol":"XRPUSDT","lastPrice":"0.55"}}`))

	if _, ok := f.Latest(models.Pair("XRP/USDT")); ok {
		t.Fatal("a symbol this feeder was not configured for must not appear in the cache")
	}
}

func TestOrderBookFeeder_DerivesMidPrice(t *testing.T) {
	f := NewOrderBookFeeder("uniswap", "wss://example.invalid", models.Pair("ETH/USDC"), "book.ETHUSDC", zap.NewNop())
	f.handleMessage([]byte(`{"symbol":"ETHUSDC","bids":[{"price":"3000.00","size":"1"}],"asks":[{"price":"3002.00","size":"1"}]}`))

	q, ok := f.Latest(models.Pair("ETH/USDC"))
	if !ok {
		t.Fatal("expected a quote after a valid book update")
	}
	if !q.Price.Equal(mustDecimal(t, "3001")) {
		t.Errorf("mid price = %s, want 3001", q.Price)
	}
}

func TestOrderBookFeeder_DropsQuoteWithMissingSide(t *testing.T) {
	f := NewOrderBookFeeder("uniswap", "wss://example.invalid", models.Pair("ETH/USDC"), "book.ETHUSDC", zap.NewNop())
	f.handleMessage([]byte(`{"symbol":"ETHUSDC","bids":[],"asks":[{"price":"3002.00","size":"1"}]}`))

	if _, ok := f.Latest(models.Pair("ETH/USDC")); ok {
		t.Fatal("a book update missing one side must be dropped entirely")
	}
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}
