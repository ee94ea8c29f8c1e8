package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityRecord is the durable row shape for a detected entry. Owns N
// PriceRecords via OpportunityID once flushed.
type OpportunityRecord struct {
	ID           int64 // assigned by the database on insert; zero until flushed
	Timestamp    time.Time
	Pair         Pair
	BuyExchange  string
	BuyPrice     decimal.Decimal
	SellExchange string
	SellPrice    decimal.Decimal
	Spread       decimal.Decimal
	SpreadPct    decimal.Decimal

	// Quotes carries the snapshot that produced this opportunity; the
	// Logger expands it into price rows tagged with this opportunity's id
	// at flush time. Not a database column itself.
	Quotes Snapshot
}

// PriceRecord is the durable row shape for one venue quote. OpportunityID
// is nil for quotes not tied to any detected opportunity.
type PriceRecord struct {
	ID            int64
	Pair          Pair
	ExchangeName  string
	Price         decimal.Decimal
	Timestamp     time.Time
	OpportunityID *int64
}

// EventType distinguishes trade log rows. Only ENTRY and EXIT occur in v1.
type EventType string

const (
	EventEntry EventType = "ENTRY"
	EventExit  EventType = "EXIT"
)

// TradeRecord is the durable row shape for a simulated trade. Independent
// of OpportunityRecord — no foreign key links them.
type TradeRecord struct {
	ID              int64
	Timestamp       time.Time
	Pair            Pair
	BuyExchange     string
	BuyPrice        decimal.Decimal
	SellExchange    string
	SellPrice       decimal.Decimal
	Spread          decimal.Decimal
	SpreadPct       decimal.Decimal
	NetProfit       decimal.Decimal
	GrossProfit     decimal.Decimal
	EventType       EventType
	CloseTimestamp  *time.Time
	ExitBuyPrice    *decimal.Decimal
	ExitSellPrice   *decimal.Decimal
	DurationSeconds *int64
	DecisionReason  string
	Metadata        json.RawMessage
}
