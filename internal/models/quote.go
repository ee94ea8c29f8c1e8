package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VenueQuote is an immutable value object: one price reading from one venue
// for one pair. Price is strictly positive; ObservedAt is always UTC.
type VenueQuote struct {
	Venue      string
	Pair       Pair
	Price      decimal.Decimal
	ObservedAt time.Time
}

// Valid reports whether the quote carries a usable price.
func (q VenueQuote) Valid() bool {
	return q.Price.IsPositive()
}

// Snapshot is the list of VenueQuotes collected from every registered feeder
// for one pair during a single tick. Transient — never persisted directly.
type Snapshot []VenueQuote

// Low returns the quote with the lowest price. Ties pick the first
// occurrence. Panics if the snapshot is empty — callers must check length
// first, per the engine's "require |snapshot| >= 2" tick-loop rule.
func (s Snapshot) Low() VenueQuote {
	low := s[0]
	for _, q := range s[1:] {
		if q.Price.LessThan(low.Price) {
			low = q
		}
	}
	return low
}

// High returns the quote with the highest price. Ties pick the first
// occurrence.
func (s Snapshot) High() VenueQuote {
	high := s[0]
	for _, q := range s[1:] {
		if q.Price.GreaterThan(high.Price) {
			high = q
		}
	}
	return high
}

// ByVenue returns the quote published by the named venue, if present in
// this snapshot.
func (s Snapshot) ByVenue(venue string) (VenueQuote, bool) {
	for _, q := range s {
		if q.Venue == venue {
			return q, true
		}
	}
	return VenueQuote{}, false
}
