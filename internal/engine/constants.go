package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickInterval is the engine's fixed tick cadence (spec §4.C: ~200ms).
const TickInterval = 200 * time.Millisecond

// Entry/exit thresholds and simulated-entry parameters, all compile-time
// constants per spec §6 ("no other knobs are required by the core").
var (
	AbsThreshold         = decimal.NewFromFloat(0.05)
	PctThreshold         = decimal.NewFromFloat(0.40)
	ConvergenceThreshold = decimal.NewFromFloat(0.10)

	TradeNotional = decimal.NewFromInt(1000)
	FeePct        = decimal.NewFromFloat(0.1)
	SlipPct       = decimal.NewFromFloat(0.05)

	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// DecisionReasonConverged is the only exit decision_reason v1 produces.
const DecisionReasonConverged = "spread_converged"
