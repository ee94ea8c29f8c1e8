// Package engine implements the Arbitrage Engine: one logical engine
// covering every configured pair, driving a fixed-cadence tick loop that
// detects entry/exit conditions, simulates fee- and slippage-adjusted
// PnL, and manages at most one OpenPosition per pair.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arbmon/internal/models"
	"arbmon/pkg/utils"
)

// Matrix is the subset of matrix.MarketMatrix the engine depends on.
type Matrix interface {
	Snapshot(pair models.Pair) models.Snapshot
}

// EventSink is the subset of persist.Logger the engine depends on. A
// fault from the sink is logged and swallowed by the engine — it never
// blocks on persistence (spec §4.C "Failure semantics").
type EventSink interface {
	LogOpportunity(models.OpportunityRecord)
	LogPrices(pair models.Pair, snapshot models.Snapshot)
	LogTrade(models.TradeRecord)
}

// Engine drives the tick loop described in spec §4.C.
type Engine struct {
	matrix Matrix
	sink   EventSink
	log    *zap.Logger

	pairs  []models.Pair
	states sync.Map // models.Pair -> *pairState

	mu         sync.Mutex
	currentDay time.Time
}

func New(matrix Matrix, sink EventSink, pairs []models.Pair, log *zap.Logger) *Engine {
	return &Engine{
		matrix:     matrix,
		sink:       sink,
		log:        log,
		pairs:      pairs,
		currentDay: utils.GetDayStart(),
	}
}

// noteDayBoundary logs once when the tick loop crosses into a new UTC
// calendar day, giving the log stream a daily marker without a separate
// rollover job.
func (e *Engine) noteDayBoundary() {
	today := utils.GetDayStart()
	e.mu.Lock()
	defer e.mu.Unlock()
	if today.Equal(e.currentDay) {
		return
	}
	e.currentDay = today
	e.log.Info("crossed UTC day boundary", zap.Time("day", today))
}

func (e *Engine) stateFor(pair models.Pair) *pairState {
	v, _ := e.states.LoadOrStore(pair, newPairState())
	return v.(*pairState)
}

// State reports the current IDLE/OPEN state for a pair, for callers like
// the read-only HTTP surface that only need a snapshot of engine state.
func (e *Engine) State(pair models.Pair) (models.State, models.OpenPosition, bool) {
	ps := e.stateFor(pair)
	pos, ok := ps.Position()
	return ps.State(), pos, ok
}

// Run starts the tick loop and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.noteDayBoundary()
			e.tick()
		}
	}
}

// tick processes every configured pair once. Pairs are independent: a
// fault reading one pair's snapshot must not affect any other (spec §5),
// so each pair is fanned out to its own goroutine for the duration of
// the tick.
func (e *Engine) tick() {
	var wg sync.WaitGroup
	wg.Add(len(e.pairs))
	for _, pair := range e.pairs {
		go func(pair models.Pair) {
			defer wg.Done()
			e.processPair(pair)
		}(pair)
	}
	wg.Wait()
}

// processPair implements the five numbered steps of spec §4.C's tick
// loop for a single pair.
func (e *Engine) processPair(pair models.Pair) {
	start := time.Now()
	defer func() { tickLatency.Observe(time.Since(start).Seconds()) }()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic while processing pair, tick aborted for this pair only",
				zap.String("pair", string(pair)), zap.Any("panic", r))
		}
	}()

	// Step 1: obtain a snapshot; require at least 2 quotes.
	snap := e.matrix.Snapshot(pair)
	if len(snap) < 2 {
		return
	}

	// Step 2: persist the snapshot as unassociated price records.
	e.sink.LogPrices(pair, snap)

	// Step 3: spread and spread_pct from the cheapest/priciest quote.
	low := snap.Low()
	high := snap.High()
	spread := high.Price.Sub(low.Price)
	spreadPct := spread.Div(low.Price).Mul(hundred)

	ps := e.stateFor(pair)

	if !ps.IsOpen() {
		if spread.GreaterThanOrEqual(AbsThreshold) && spreadPct.GreaterThanOrEqual(PctThreshold) {
			opportunitiesDetected.WithLabelValues(string(pair)).Inc()
			e.tryEntry(pair, ps, low, high, spread, spreadPct, snap)
		}
		return
	}

	if spreadPct.LessThanOrEqual(ConvergenceThreshold) {
		e.tryExit(pair, ps, snap, spread, spreadPct)
	}
}

func (e *Engine) tryEntry(pair models.Pair, ps *pairState, low, high models.VenueQuote, spread, spreadPct decimal.Decimal, snap models.Snapshot) {
	units, effBuy, effSell, feeFrac, slipFrac := simulateEntry(low.Price, high.Price, TradeNotional, FeePct, SlipPct)

	pos := models.OpenPosition{
		Pair:           pair,
		EntryTime:      time.Now().UTC(),
		BuyVenue:       low.Venue,
		SellVenue:      high.Venue,
		BuyPrice:       low.Price,
		SellPrice:      high.Price,
		EntrySpreadPct: spreadPct,
		EntryUnits:     units,
		EntryEffBuy:    effBuy,
		EntryEffSell:   effSell,
		FeeFrac:        feeFrac,
		SlipFrac:       slipFrac,
	}

	if !ps.open(pos) {
		// Already OPEN: entry is silently ignored, per the state machine.
		return
	}

	opportunitiesEntered.WithLabelValues(string(pair)).Inc()
	e.sink.LogOpportunity(models.OpportunityRecord{
		Timestamp:    pos.EntryTime,
		Pair:         pair,
		BuyExchange:  low.Venue,
		BuyPrice:     low.Price,
		SellExchange: high.Venue,
		SellPrice:    high.Price,
		Spread:       spread,
		SpreadPct:    spreadPct,
		Quotes:       snap,
	})
}

func (e *Engine) tryExit(pair models.Pair, ps *pairState, snap models.Snapshot, spread, spreadPct decimal.Decimal) {
	pos, ok := ps.Position()
	if !ok {
		return
	}

	buyQuote, haveBuy := snap.ByVenue(pos.BuyVenue)
	sellQuote, haveSell := snap.ByVenue(pos.SellVenue)
	if !haveBuy || !haveSell {
		// Postpone exit to the next tick.
		return
	}

	net, gross, _, _ := simulateExit(pos, buyQuote.Price, sellQuote.Price)

	closed, ok := ps.close()
	if !ok {
		return
	}

	now := time.Now().UTC()
	duration := int64(now.Sub(closed.EntryTime).Seconds())
	exitBuyPrice := buyQuote.Price
	exitSellPrice := sellQuote.Price

	exitsByReason.WithLabelValues(string(pair), DecisionReasonConverged).Inc()
	e.log.Info("position closed on convergence",
		zap.String("pair", string(pair)),
		zap.String("held_for", utils.FormatDuration(time.Duration(duration)*time.Second)))
	e.sink.LogTrade(models.TradeRecord{
		Timestamp:       closed.EntryTime,
		Pair:            pair,
		BuyExchange:     closed.BuyVenue,
		BuyPrice:        closed.BuyPrice,
		SellExchange:    closed.SellVenue,
		SellPrice:       closed.SellPrice,
		Spread:          spread,
		SpreadPct:       spreadPct,
		NetProfit:       net,
		GrossProfit:     gross,
		EventType:       models.EventExit,
		CloseTimestamp:  &now,
		ExitBuyPrice:    &exitBuyPrice,
		ExitSellPrice:   &exitSellPrice,
		DurationSeconds: &duration,
		DecisionReason:  DecisionReasonConverged,
	})
}
