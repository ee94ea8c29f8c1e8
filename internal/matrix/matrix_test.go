package matrix

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arbmon/internal/models"
)

type fakeFeeder struct {
	pair    models.Pair
	price   decimal.Decimal
	have    bool
	closed  bool
	closeErr error
}

func (f *fakeFeeder) Connect() error { return nil }

func (f *fakeFeeder) Latest(pair models.Pair) (models.VenueQuote, bool) {
	if pair != f.pair || !f.have {
		return models.VenueQuote{}, false
	}
	return models.VenueQuote{Venue: "v", Pair: pair, Price: f.price, ObservedAt: time.Now().UTC()}, true
}

func (f *fakeFeeder) Close() error {
	f.closed = true
	return f.closeErr
}

func TestSnapshot_CollectsAllVenues(t *testing.T) {
	m := New(zap.NewNop())
	pair := models.Pair("ADA/USDC")

	f1 := &fakeFeeder{pair: pair, price: decimal.NewFromFloat(0.40), have: true}
	f2 := &fakeFeeder{pair: pair, price: decimal.NewFromFloat(0.41), have: true}
	m.Add(pair, f1)
	m.Add(pair, f2)

	snap := m.Snapshot(pair)
	if len(snap) != 2 {
		t.Fatalf("snapshot length = %d, want 2", len(snap))
	}
}

func TestSnapshot_DropsMissingQuotes(t *testing.T) {
	m := New(zap.NewNop())
	pair := models.Pair("ADA/USDC")

	m.Add(pair, &fakeFeeder{pair: pair, have: false})
	m.Add(pair, &fakeFeeder{pair: pair, price: decimal.NewFromFloat(0.40), have: true})

	snap := m.Snapshot(pair)
	if len(snap) != 1 {
		t.Fatalf("snapshot length = %d, want 1", len(snap))
	}
}

func TestSnapshot_UnknownPairIsEmpty(t *testing.T) {
	m := New(zap.NewNop())
	snap := m.Snapshot(models.Pair("BTC/USDT"))
	if snap != nil {
		t.Fatalf("expected nil snapshot for unregistered pair, got %+v", snap)
	}
}

func TestShutdown_ClosesEveryFeeder(t *testing.T) {
	m := New(zap.NewNop())
	pair := models.Pair("ADA/USDC")

	f1 := &fakeFeeder{pair: pair}
	f2 := &fakeFeeder{pair: models.Pair("BTC/USDT")}
	m.Add(pair, f1)
	m.Add(f2.pair, f2)

	m.Shutdown()

	if !f1.closed || !f2.closed {
		t.Fatal("expected every registered feeder to be closed")
	}
}

func TestPairs_ReturnsEveryRegisteredPair(t *testing.T) {
	m := New(zap.NewNop())
	m.Add(models.Pair("ADA/USDC"), &fakeFeeder{pair: models.Pair("ADA/USDC")})
	m.Add(models.Pair("BTC/USDT"), &fakeFeeder{pair: models.Pair("BTC/USDT")})

	pairs := m.Pairs()
	if len(pairs) != 2 {
		t.Fatalf("pairs length = %d, want 2", len(pairs))
	}
}
