// Package persist implements the Batched Logger: the sole write path from
// the Arbitrage Engine into the relational store. Three in-memory buffers
// absorb high-frequency enqueue calls from the Engine's tick loop; a
// background timer drains them into the database on a fixed cadence so
// that no caller ever blocks on a transaction.
package persist

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"arbmon/internal/engine"
	"arbmon/internal/models"
)

// DefaultFlushInterval is how often the background timer drains the
// buffers, per spec.md §4.D.
const DefaultFlushInterval = 10 * time.Second

// EarlyFlushThreshold is the combined buffered row count above which an
// out-of-band flush is requested ahead of the next timer tick. An
// optimization hint, not a correctness requirement: buffers are never
// bounded and rows are never dropped waiting on it.
const EarlyFlushThreshold = 500

// Logger is arbmon's adaptation of the teacher's repository layer into a
// single buffered sink satisfying engine.EventSink. Unlike the teacher's
// per-call synchronous repository methods, every ingress method here only
// appends to an in-memory buffer and returns; persistence happens only
// inside flush.
type Logger struct {
	db            *sql.DB
	log           *zap.Logger
	flushInterval time.Duration

	mu            sync.Mutex
	opportunities []models.OpportunityRecord
	prices        []models.PriceRecord
	trades        []models.TradeRecord

	earlyFlush chan struct{}
}

// NewLogger wraps an already-open connection pool. Call EnsureDatabase and
// EnsureTables against the same coordinates before Run, per spec.md §4.D's
// startup bootstrap.
func NewLogger(db *sql.DB, log *zap.Logger) *Logger {
	return &Logger{
		db:            db,
		log:           log,
		flushInterval: DefaultFlushInterval,
		earlyFlush:    make(chan struct{}, 1),
	}
}

// LogOpportunity enqueues an opportunity plus its contributing quotes.
func (l *Logger) LogOpportunity(r models.OpportunityRecord) {
	l.mu.Lock()
	l.opportunities = append(l.opportunities, r)
	n := l.bufferedLocked()
	l.mu.Unlock()
	l.reportDepth(n)
}

// LogPrices enqueues venue quotes not tied to any opportunity.
func (l *Logger) LogPrices(pair models.Pair, snap models.Snapshot) {
	l.mu.Lock()
	for _, q := range snap {
		l.prices = append(l.prices, models.PriceRecord{
			Pair:         pair,
			ExchangeName: q.Venue,
			Price:        q.Price,
			Timestamp:    q.ObservedAt,
		})
	}
	n := l.bufferedLocked()
	l.mu.Unlock()
	l.reportDepth(n)
}

// LogTrade enqueues a trade row (entry or exit).
func (l *Logger) LogTrade(r models.TradeRecord) {
	l.mu.Lock()
	l.trades = append(l.trades, r)
	n := l.bufferedLocked()
	l.mu.Unlock()
	l.reportDepth(n)
}

// bufferedLocked returns the combined row count. Caller must hold l.mu.
func (l *Logger) bufferedLocked() int {
	return len(l.opportunities) + len(l.prices) + len(l.trades)
}

func (l *Logger) reportDepth(n int) {
	engine.ObserveBufferDepth(n)
	if n <= EarlyFlushThreshold {
		return
	}
	engine.IncBufferOverflow()
	select {
	case l.earlyFlush <- struct{}{}:
	default:
		// a flush is already pending; nothing more to signal
	}
}

// Run drives the flush timer until ctx is cancelled, performing one final
// flush before returning (spec.md §4.D "Shutdown").
func (l *Logger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.flush()
			return
		case <-ticker.C:
			l.flush()
		case <-l.earlyFlush:
			l.flush()
		}
	}
}

// flush drains all three buffers into one transaction. Buffers are cleared
// unconditionally, even on failure: spec.md §4.D and §7 both call for
// at-most-once delivery rather than retrying and risking unbounded buffer
// growth across a persistent DB outage.
func (l *Logger) flush() {
	l.mu.Lock()
	opps := l.opportunities
	prices := l.prices
	trades := l.trades
	l.opportunities = nil
	l.prices = nil
	l.trades = nil
	l.mu.Unlock()

	if len(opps) == 0 && len(prices) == 0 && len(trades) == 0 {
		return
	}

	if err := l.flushTx(opps, prices, trades); err != nil {
		l.log.Error("flush failed, buffered rows dropped",
			zap.Error(err),
			zap.Int("opportunities", len(opps)),
			zap.Int("prices", len(prices)),
			zap.Int("trades", len(trades)))
	}
	engine.ObserveBufferDepth(0)
}

// flushTx implements the five numbered steps of spec.md §4.D's flush.
func (l *Logger) flushTx(opps []models.OpportunityRecord, prices []models.PriceRecord, trades []models.TradeRecord) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin flush transaction: %w", err)
	}
	defer tx.Rollback() // no-op once Commit succeeds

	// Step 1+2: insert opportunities, capture the assigned id, and tag
	// each opportunity's contributing quotes with it.
	for _, o := range opps {
		var id int64
		err := tx.QueryRow(
			`INSERT INTO arbitrage_opportunities
				(timestamp, pair, buy_exchange, buy_price, sell_exchange, sell_price, spread, spread_pct)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			 RETURNING id`,
			o.Timestamp, string(o.Pair), o.BuyExchange, o.BuyPrice.String(),
			o.SellExchange, o.SellPrice.String(), o.Spread.String(), o.SpreadPct.String(),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert opportunity: %w", err)
		}
		for _, q := range o.Quotes {
			oppID := id
			prices = append(prices, models.PriceRecord{
				Pair:          o.Pair,
				ExchangeName:  q.Venue,
				Price:         q.Price,
				Timestamp:     q.ObservedAt,
				OpportunityID: &oppID,
			})
		}
	}

	// Step 3: bulk-insert every price row, tagged and untagged alike.
	for _, p := range prices {
		var oppID interface{}
		if p.OpportunityID != nil {
			oppID = *p.OpportunityID
		}
		if _, err := tx.Exec(
			`INSERT INTO exchange_prices (pair, exchange_name, price, timestamp, arbitrage_id)
			 VALUES ($1,$2,$3,$4,$5)`,
			string(p.Pair), p.ExchangeName, p.Price.String(), p.Timestamp, oppID,
		); err != nil {
			return fmt.Errorf("insert price: %w", err)
		}
	}

	// Step 4: bulk-insert every trade row.
	for _, t := range trades {
		var closeTS, durationSeconds, exitBuy, exitSell interface{}
		if t.CloseTimestamp != nil {
			closeTS = *t.CloseTimestamp
		}
		if t.DurationSeconds != nil {
			durationSeconds = *t.DurationSeconds
		}
		if t.ExitBuyPrice != nil {
			exitBuy = t.ExitBuyPrice.String()
		}
		if t.ExitSellPrice != nil {
			exitSell = t.ExitSellPrice.String()
		}
		var metadata interface{}
		if len(t.Metadata) > 0 {
			metadata = []byte(t.Metadata)
		}
		if _, err := tx.Exec(
			`INSERT INTO trade_log
				(timestamp, pair, buy_exchange, buy_price, sell_exchange, sell_price, spread, spread_pct,
				 net_profit, gross_profit, event_type, close_timestamp, exit_buy_price, exit_sell_price,
				 duration_seconds, decision_reason, metadata)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
			t.Timestamp, string(t.Pair), t.BuyExchange, t.BuyPrice.String(), t.SellExchange, t.SellPrice.String(),
			t.Spread.String(), t.SpreadPct.String(), t.NetProfit.String(), t.GrossProfit.String(),
			string(t.EventType), closeTS, exitBuy, exitSell, durationSeconds, t.DecisionReason, metadata,
		); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
	}

	return tx.Commit()
}
