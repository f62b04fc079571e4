// Package ledger converts an executed trade stream into realized and
// mark-to-market profit-and-loss using FIFO lot accounting: the oldest open
// position closes first.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	match "github.com/hftlab/marketsim"
)

// Lot is one open position entry: quantity acquired at entryPrice.
type Lot struct {
	EntryPrice decimal.Decimal `json:"entry_price"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// Summary is the point-in-time state of the ledger for reporting.
type Summary struct {
	TotalTrades   int64           `json:"total_trades"`
	Inventory     decimal.Decimal `json:"inventory"`
	CashFlow      decimal.Decimal `json:"cash_flow"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	OpenLongLots  int             `json:"open_long_lots"`
	OpenShortLots int             `json:"open_short_lots"`
}

// Tracker maintains FIFO lots per direction and accumulates realized PnL.
//
// A buy first offsets open short lots head-first before opening new long
// lots; a sell symmetrically offsets long lots first. In steady state at
// most one of the two queues holds entries.
//
// All arithmetic is exact decimal, so lot consumption uses exact equality
// rather than the float epsilon the accounting rule is usually stated with.
type Tracker struct {
	longs       []Lot
	shorts      []Lot
	realizedPnL decimal.Decimal
	cashFlow    decimal.Decimal
	inventory   decimal.Decimal
	totalTrades int64
}

// NewTracker creates an empty ledger.
func NewTracker() *Tracker {
	return &Tracker{
		longs:  make([]Lot, 0),
		shorts: make([]Lot, 0),
	}
}

// Record books one executed trade. side is the direction of our fill:
// match.Bid is a buy, match.Ask is a sell.
func (t *Tracker) Record(price, quantity decimal.Decimal, side match.Side) error {
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", match.ErrInvalidOrder)
	}

	switch side {
	case match.Bid:
		t.recordBuy(price, quantity)
	case match.Ask:
		t.recordSell(price, quantity)
	default:
		return fmt.Errorf("%w: unknown side %d", match.ErrInvalidRequest, int8(side))
	}

	t.totalTrades++
	return nil
}

// RecordTrade books an engine trade from our perspective as the aggressor.
func (t *Tracker) RecordTrade(trade *match.Trade) error {
	return t.Record(trade.Price, trade.Quantity, trade.TakerSide)
}

func (t *Tracker) recordBuy(price, quantity decimal.Decimal) {
	t.inventory = t.inventory.Add(quantity)
	t.cashFlow = t.cashFlow.Sub(price.Mul(quantity))

	remaining := quantity
	for remaining.IsPositive() && len(t.shorts) > 0 {
		lot := &t.shorts[0]
		matched := decimal.Min(remaining, lot.Quantity)

		// Closing a short: profit when we buy back below the entry.
		t.realizedPnL = t.realizedPnL.Add(lot.EntryPrice.Sub(price).Mul(matched))

		if matched.Equal(lot.Quantity) {
			t.shorts = t.shorts[1:]
		} else {
			lot.Quantity = lot.Quantity.Sub(matched)
		}

		remaining = remaining.Sub(matched)
	}

	if remaining.IsPositive() {
		t.longs = append(t.longs, Lot{EntryPrice: price, Quantity: remaining})
	}
}

func (t *Tracker) recordSell(price, quantity decimal.Decimal) {
	t.inventory = t.inventory.Sub(quantity)
	t.cashFlow = t.cashFlow.Add(price.Mul(quantity))

	remaining := quantity
	for remaining.IsPositive() && len(t.longs) > 0 {
		lot := &t.longs[0]
		matched := decimal.Min(remaining, lot.Quantity)

		t.realizedPnL = t.realizedPnL.Add(price.Sub(lot.EntryPrice).Mul(matched))

		if matched.Equal(lot.Quantity) {
			t.longs = t.longs[1:]
		} else {
			lot.Quantity = lot.Quantity.Sub(matched)
		}

		remaining = remaining.Sub(matched)
	}

	if remaining.IsPositive() {
		t.shorts = append(t.shorts, Lot{EntryPrice: price, Quantity: remaining})
	}
}

// RealizedPnL returns the PnL locked in by closed lots.
func (t *Tracker) RealizedPnL() decimal.Decimal {
	return t.realizedPnL
}

// Inventory returns the signed net position.
func (t *Tracker) Inventory() decimal.Decimal {
	return t.inventory
}

// CashFlow returns net cash movement: sells add, buys subtract.
func (t *Tracker) CashFlow() decimal.Decimal {
	return t.cashFlow
}

// UnrealizedPnL values every open lot against the given mark price.
func (t *Tracker) UnrealizedPnL(markPrice decimal.Decimal) decimal.Decimal {
	pnl := decimal.Zero

	for _, lot := range t.longs {
		pnl = pnl.Add(markPrice.Sub(lot.EntryPrice).Mul(lot.Quantity))
	}

	for _, lot := range t.shorts {
		pnl = pnl.Add(lot.EntryPrice.Sub(markPrice).Mul(lot.Quantity))
	}

	return pnl
}

// TotalPnL is realized plus unrealized PnL at the given mark price.
func (t *Tracker) TotalPnL(markPrice decimal.Decimal) decimal.Decimal {
	return t.realizedPnL.Add(t.UnrealizedPnL(markPrice))
}

// OpenLots returns copies of the open long and short lot queues in FIFO order.
func (t *Tracker) OpenLots() (longs []Lot, shorts []Lot) {
	longs = make([]Lot, len(t.longs))
	copy(longs, t.longs)
	shorts = make([]Lot, len(t.shorts))
	copy(shorts, t.shorts)
	return longs, shorts
}

// Summary returns the current ledger state for reporting.
func (t *Tracker) Summary() Summary {
	return Summary{
		TotalTrades:   t.totalTrades,
		Inventory:     t.inventory,
		CashFlow:      t.cashFlow,
		RealizedPnL:   t.realizedPnL,
		OpenLongLots:  len(t.longs),
		OpenShortLots: len(t.shorts),
	}
}
