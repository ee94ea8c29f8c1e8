package engine

import (
	"github.com/shopspring/decimal"

	"arbmon/internal/models"
)

// simulateEntry computes the effective buy/sell prices and the unit size
// of a simulated entry, per spec §4.C.1. Pure function: no side effects,
// no shared state.
func simulateEntry(buyPrice, sellPrice, notional, feePct, slipPct decimal.Decimal) (units, effBuy, effSell, feeFrac, slipFrac decimal.Decimal) {
	feeFrac = feePct.Div(hundred)
	slipFrac = slipPct.Div(hundred)
	effBuy = buyPrice.Mul(one.Add(feeFrac).Add(slipFrac))
	effSell = sellPrice.Mul(one.Sub(feeFrac).Sub(slipFrac))
	units = notional.Div(effBuy)
	return
}

// simulateExit computes net and gross PnL for closing an OpenPosition at
// current prices buyPrime (B') and sellPrime (S'), per spec §4.C.2. The
// net formula is reproduced literally — forward and reverse legs mix
// entry and exit effective prices by design; it is not algebraically
// equivalent to (eff_sell' - eff_buy') * units, see spec §9.
func simulateExit(pos models.OpenPosition, buyPrime, sellPrime decimal.Decimal) (net, gross, effBuyPrime, effSellPrime decimal.Decimal) {
	effBuyPrime = buyPrime.Mul(one.Add(pos.FeeFrac).Add(pos.SlipFrac))
	effSellPrime = sellPrime.Mul(one.Sub(pos.FeeFrac).Sub(pos.SlipFrac))

	forward := pos.EntryUnits.Mul(effSellPrime.Sub(pos.EntryEffBuy))
	reverse := pos.EntryUnits.Mul(effBuyPrime.Sub(pos.EntryEffSell))

	net = forward.Sub(reverse).Round(4)
	gross = sellPrime.Sub(pos.BuyPrice).Mul(pos.EntryUnits).Round(4)
	return
}
