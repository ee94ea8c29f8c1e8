package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpenPosition is the simulated long/short pair held between an entry and
// an exit. At most one exists per Pair at any moment. Created on entry
// detection, mutated never, destroyed on exit detection.
type OpenPosition struct {
	Pair           Pair
	EntryTime      time.Time
	BuyVenue       string
	SellVenue      string
	BuyPrice       decimal.Decimal
	SellPrice      decimal.Decimal
	EntrySpreadPct decimal.Decimal
	EntryUnits     decimal.Decimal
	EntryEffBuy    decimal.Decimal
	EntryEffSell   decimal.Decimal
	FeeFrac        decimal.Decimal
	SlipFrac       decimal.Decimal
}
