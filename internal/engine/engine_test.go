package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arbmon/internal/models"
	"arbmon/pkg/utils"
)

type fakeMatrix struct {
	mu   sync.Mutex
	next map[models.Pair]models.Snapshot
}

func newFakeMatrix() *fakeMatrix {
	return &fakeMatrix{next: make(map[models.Pair]models.Snapshot)}
}

func (m *fakeMatrix) set(pair models.Pair, snap models.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next[pair] = snap
}

func (m *fakeMatrix) Snapshot(pair models.Pair) models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next[pair]
}

type fakeSink struct {
	mu            sync.Mutex
	opportunities []models.OpportunityRecord
	prices        []models.Snapshot
	trades        []models.TradeRecord
}

func (s *fakeSink) LogOpportunity(r models.OpportunityRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opportunities = append(s.opportunities, r)
}

func (s *fakeSink) LogPrices(pair models.Pair, snap models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = append(s.prices, snap)
}

func (s *fakeSink) LogTrade(r models.TradeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, r)
}

func quote(venue, price string) models.VenueQuote {
	return models.VenueQuote{Venue: venue, Price: decimal.RequireFromString(price), ObservedAt: time.Now().UTC()}
}

func TestProcessPair_EntryScenario(t *testing.T) {
	pair := models.Pair("X/USDC")
	m := newFakeMatrix()
	m.set(pair, models.Snapshot{quote("A", "100.00"), quote("B", "100.60")})
	sink := &fakeSink{}

	e := New(m, sink, []models.Pair{pair}, zap.NewNop())
	e.processPair(pair)

	state, pos, ok := e.State(pair)
	if state != models.StateOpen || !ok {
		t.Fatalf("expected OPEN position, got state=%v ok=%v", state, ok)
	}
	if pos.BuyVenue != "A" || pos.SellVenue != "B" {
		t.Fatalf("unexpected venues: buy=%s sell=%s", pos.BuyVenue, pos.SellVenue)
	}
	if len(sink.opportunities) != 1 {
		t.Fatalf("expected 1 opportunity logged, got %d", len(sink.opportunities))
	}

	wantUnits := decimal.RequireFromString("1000").Div(decimal.RequireFromString("100.15"))
	if !pos.EntryUnits.Sub(wantUnits).Abs().LessThan(decimal.RequireFromString("0.0001")) {
		t.Errorf("entry_units = %s, want ~%s", pos.EntryUnits, wantUnits)
	}
}

func TestProcessPair_NoEntryBelowAbsoluteFloor(t *testing.T) {
	pair := models.Pair("X/USDC")
	m := newFakeMatrix()
	m.set(pair, models.Snapshot{quote("A", "10.00"), quote("B", "10.045")})
	sink := &fakeSink{}

	e := New(m, sink, []models.Pair{pair}, zap.NewNop())
	e.processPair(pair)

	if state, _, _ := e.State(pair); state != models.StateIdle {
		t.Fatalf("expected no entry, state = %v", state)
	}
	if len(sink.opportunities) != 0 {
		t.Fatalf("expected no opportunity logged, got %d", len(sink.opportunities))
	}
}

func TestProcessPair_ExitOnConvergence(t *testing.T) {
	pair := models.Pair("X/USDC")
	m := newFakeMatrix()
	m.set(pair, models.Snapshot{quote("A", "100.00"), quote("B", "100.60")})
	sink := &fakeSink{}

	e := New(m, sink, []models.Pair{pair}, zap.NewNop())
	e.processPair(pair)

	m.set(pair, models.Snapshot{quote("A", "100.30"), quote("B", "100.35")})
	e.processPair(pair)

	state, _, _ := e.State(pair)
	if state != models.StateIdle {
		t.Fatalf("expected position closed, state = %v", state)
	}
	if len(sink.trades) != 1 {
		t.Fatalf("expected 1 trade logged, got %d", len(sink.trades))
	}
	trade := sink.trades[0]
	if trade.EventType != models.EventExit {
		t.Errorf("event_type = %s, want EXIT", trade.EventType)
	}
	if trade.DurationSeconds == nil || *trade.DurationSeconds < 0 {
		t.Errorf("duration_seconds = %v, want >= 0", trade.DurationSeconds)
	}
	if trade.CloseTimestamp == nil {
		t.Error("expected close_timestamp to be set")
	}
	if len(sink.opportunities) != 1 {
		t.Fatalf("expected 1 opportunity logged, got %d", len(sink.opportunities))
	}
	entryTime := sink.opportunities[0].Timestamp
	if !trade.Timestamp.Equal(entryTime) {
		t.Errorf("timestamp = %v, want entry time %v (timestamp must stay the entry instant; close_timestamp carries the exit instant)", trade.Timestamp, entryTime)
	}
	if trade.CloseTimestamp != nil && trade.Timestamp.Equal(*trade.CloseTimestamp) {
		t.Error("timestamp and close_timestamp must not collapse to the same instant")
	}
}

func TestProcessPair_PartialSnapshotDefersExit(t *testing.T) {
	pair := models.Pair("X/USDC")
	m := newFakeMatrix()
	m.set(pair, models.Snapshot{quote("A", "100.00"), quote("B", "100.60")})
	sink := &fakeSink{}

	e := New(m, sink, []models.Pair{pair}, zap.NewNop())
	e.processPair(pair)

	// Convergent spread, but venue A is missing.
	m.set(pair, models.Snapshot{quote("B", "100.35"), quote("C", "100.40")})
	e.processPair(pair)

	state, _, _ := e.State(pair)
	if state != models.StateOpen {
		t.Fatalf("expected position to remain open, state = %v", state)
	}
	if len(sink.trades) != 0 {
		t.Fatalf("expected no trade logged, got %d", len(sink.trades))
	}
}

func TestProcessPair_FewerThanTwoQuotesSkipsPair(t *testing.T) {
	pair := models.Pair("X/USDC")
	m := newFakeMatrix()
	m.set(pair, models.Snapshot{quote("A", "100.00")})
	sink := &fakeSink{}

	e := New(m, sink, []models.Pair{pair}, zap.NewNop())
	e.processPair(pair)

	if len(sink.prices) != 0 {
		t.Fatalf("expected LogPrices not called, got %d calls", len(sink.prices))
	}
}

func TestProcessPair_EntryWhileOpenIsIgnored(t *testing.T) {
	pair := models.Pair("X/USDC")
	m := newFakeMatrix()
	m.set(pair, models.Snapshot{quote("A", "100.00"), quote("B", "100.60")})
	sink := &fakeSink{}

	e := New(m, sink, []models.Pair{pair}, zap.NewNop())
	e.processPair(pair)
	e.processPair(pair) // still above entry thresholds; must not re-enter

	if len(sink.opportunities) != 1 {
		t.Fatalf("expected exactly 1 opportunity across both ticks, got %d", len(sink.opportunities))
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	m := newFakeMatrix()
	e := New(m, &fakeSink{}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestNoteDayBoundary_LogsOnceOnCrossing(t *testing.T) {
	e := New(newFakeMatrix(), &fakeSink{}, nil, zap.NewNop())

	yesterday := utils.GetDayStartFrom(time.Now().UTC().AddDate(0, 0, -1))
	e.currentDay = yesterday

	e.noteDayBoundary()
	if e.currentDay.Equal(yesterday) {
		t.Error("expected currentDay to advance past yesterday")
	}

	advanced := e.currentDay
	e.noteDayBoundary()
	if !e.currentDay.Equal(advanced) {
		t.Error("noteDayBoundary should be a no-op within the same UTC day")
	}
}
