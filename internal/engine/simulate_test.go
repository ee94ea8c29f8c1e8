package engine

import (
	"testing"

	"github.com/shopspring/decimal"

	"arbmon/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSimulateEntry_MatchesSpecScenario(t *testing.T) {
	units, effBuy, effSell, feeFrac, slipFrac := simulateEntry(d("100.00"), d("100.60"), TradeNotional, FeePct, SlipPct)

	if !effBuy.Sub(d("100.15")).Abs().LessThan(d("0.0001")) {
		t.Errorf("eff_buy = %s, want ~100.15", effBuy)
	}
	if !effSell.Sub(d("100.4491")).Abs().LessThan(d("0.0001")) {
		t.Errorf("eff_sell = %s, want ~100.4491", effSell)
	}
	if !units.Sub(d("9.98502")).Abs().LessThan(d("0.001")) {
		t.Errorf("units = %s, want ~9.98502", units)
	}
	if !feeFrac.Equal(d("0.001")) {
		t.Errorf("fee_frac = %s, want 0.001", feeFrac)
	}
	if !slipFrac.Equal(d("0.0005")) {
		t.Errorf("slip_frac = %s, want 0.0005", slipFrac)
	}
}

func TestSimulateEntry_EffectivePricesBracketSpread(t *testing.T) {
	// "entry_eff_buy > buy_price and entry_eff_sell < sell_price" (spec §8).
	units, effBuy, effSell, _, _ := simulateEntry(d("50"), d("51"), TradeNotional, FeePct, SlipPct)
	_ = units
	if !effBuy.GreaterThan(d("50")) {
		t.Errorf("eff_buy %s should be greater than buy_price 50", effBuy)
	}
	if !effSell.LessThan(d("51")) {
		t.Errorf("eff_sell %s should be less than sell_price 51", effSell)
	}
}

func TestSimulateExit_RoundTripAtUnchangedPrices(t *testing.T) {
	units, effBuy, effSell, feeFrac, slipFrac := simulateEntry(d("100.00"), d("100.60"), TradeNotional, FeePct, SlipPct)
	pos := models.OpenPosition{
		BuyPrice: d("100.00"), SellPrice: d("100.60"),
		EntryUnits: units, EntryEffBuy: effBuy, EntryEffSell: effSell,
		FeeFrac: feeFrac, SlipFrac: slipFrac,
	}

	net, gross, _, _ := simulateExit(pos, d("100.00"), d("100.60"))

	wantGross := d("100.60").Sub(d("100.00")).Mul(units).Round(4)
	if !gross.Equal(wantGross) {
		t.Errorf("gross = %s, want %s", gross, wantGross)
	}

	wantNet := units.Mul(effSell.Sub(effBuy)).Sub(units.Mul(effBuy.Sub(effSell))).Round(4)
	if !net.Equal(wantNet) {
		t.Errorf("net = %s, want %s", net, wantNet)
	}
}

func TestSimulateExit_ConvergenceScenario(t *testing.T) {
	units, effBuy, effSell, feeFrac, slipFrac := simulateEntry(d("100.00"), d("100.60"), TradeNotional, FeePct, SlipPct)
	pos := models.OpenPosition{
		BuyPrice: d("100.00"), SellPrice: d("100.60"),
		EntryUnits: units, EntryEffBuy: effBuy, EntryEffSell: effSell,
		FeeFrac: feeFrac, SlipFrac: slipFrac,
	}

	net, gross, _, _ := simulateExit(pos, d("100.30"), d("100.35"))

	if net.Exponent() != -4 {
		t.Errorf("net not rounded to 4 places: %s (exponent %d)", net, net.Exponent())
	}
	if gross.Exponent() != -4 {
		t.Errorf("gross not rounded to 4 places: %s (exponent %d)", gross, gross.Exponent())
	}
}
