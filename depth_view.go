package match

import (
	"fmt"

	"github.com/igrmk/treemap/v2"
	"github.com/shopspring/decimal"
)

// depthChange is the single (side, price, size delta) a BookEvent applies
// to aggregated depth.
type depthChange struct {
	Side     Side
	Price    decimal.Decimal
	SizeDiff decimal.Decimal
}

// calculateDepthChange derives the depth delta of a book event.
// For match events the returned side is the maker's side: a match removes
// liquidity from the resting side, which is opposite the event's taker side.
func calculateDepthChange(event *BookEvent) depthChange {
	switch event.Type {
	case EventTypeOpen:
		return depthChange{
			Side:     event.Side,
			Price:    event.Price,
			SizeDiff: event.Quantity,
		}
	case EventTypeCancel:
		return depthChange{
			Side:     event.Side,
			Price:    event.Price,
			SizeDiff: event.Quantity.Neg(),
		}
	case EventTypeMatch:
		return depthChange{
			Side:     event.Side.Opposite(),
			Price:    event.Price,
			SizeDiff: event.Quantity.Neg(),
		}
	case EventTypeAmend:
		// Priority lost (price changed or quantity increased): the order
		// left the book and re-enters via subsequent open/match events, so
		// only the old size at the old price comes off here.
		if !event.OldPrice.Equal(event.Price) || event.Quantity.GreaterThan(event.OldQty) {
			return depthChange{
				Side:     event.Side,
				Price:    event.OldPrice,
				SizeDiff: event.OldQty.Neg(),
			}
		}

		// Priority kept: in-place quantity change at the same price.
		return depthChange{
			Side:     event.Side,
			Price:    event.Price,
			SizeDiff: event.Quantity.Sub(event.OldQty),
		}
	}

	return depthChange{}
}

// DepthView maintains an aggregated (price, volume) view of an order book,
// rebuilt purely from the book's event stream. It is meant for reporting
// and display consumers that must not touch engine state.
type DepthView struct {
	seqID uint64 // last applied SequenceID, for gap detection and deduplication
	bid   *treemap.TreeMap[decimal.Decimal, decimal.Decimal]
	ask   *treemap.TreeMap[decimal.Decimal, decimal.Decimal]
}

// NewDepthView creates an empty DepthView.
func NewDepthView() *DepthView {
	less := func(a, b decimal.Decimal) bool {
		return a.LessThan(b)
	}

	return &DepthView{
		bid: treemap.NewWithKeyCompare[decimal.Decimal, decimal.Decimal](less),
		ask: treemap.NewWithKeyCompare[decimal.Decimal, decimal.Decimal](less),
	}
}

// SequenceID returns the last applied event sequence ID.
func (v *DepthView) SequenceID() uint64 {
	return v.seqID
}

// Apply replays a book event into the view. Events at or below the current
// sequence ID are duplicates and are skipped; a gap in the sequence is an
// error, since the view would silently drift from the book.
func (v *DepthView) Apply(event *BookEvent) error {
	if event.SequenceID <= v.seqID {
		return nil
	}

	if v.seqID != 0 && event.SequenceID != v.seqID+1 {
		return fmt.Errorf("%w: event sequence gap, have %d got %d", ErrInvalidRequest, v.seqID, event.SequenceID)
	}

	change := calculateDepthChange(event)
	if !change.SizeDiff.IsZero() {
		v.applyChange(change)
	}

	v.seqID = event.SequenceID
	return nil
}

func (v *DepthView) applyChange(change depthChange) {
	levels := v.bid
	if change.Side == Ask {
		levels = v.ask
	}

	size, ok := levels.Get(change.Price)
	if !ok {
		size = decimal.Zero
	}

	size = size.Add(change.SizeDiff)
	if size.IsPositive() {
		levels.Set(change.Price, size)
	} else {
		levels.Del(change.Price)
	}
}

// BestBid returns the highest bid level of the view, if any.
func (v *DepthView) BestBid() (decimal.Decimal, bool) {
	it := v.bid.Reverse()
	if !it.Valid() {
		return decimal.Decimal{}, false
	}
	return it.Key(), true
}

// BestAsk returns the lowest ask level of the view, if any.
func (v *DepthView) BestAsk() (decimal.Decimal, bool) {
	it := v.ask.Iterator()
	if !it.Valid() {
		return decimal.Decimal{}, false
	}
	return it.Key(), true
}

// Depth returns up to limit levels per side, best price first.
func (v *DepthView) Depth(limit uint32) *Depth {
	depth := &Depth{
		UpdateID: v.seqID,
		Bids:     make([]*DepthItem, 0, limit),
		Asks:     make([]*DepthItem, 0, limit),
	}

	var i uint32
	for it := v.bid.Reverse(); it.Valid() && i < limit; it.Next() {
		depth.Bids = append(depth.Bids, &DepthItem{Price: it.Key(), Volume: it.Value()})
		i++
	}

	i = 0
	for it := v.ask.Iterator(); it.Valid() && i < limit; it.Next() {
		depth.Asks = append(depth.Asks, &DepthItem{Price: it.Key(), Volume: it.Value()})
		i++
	}

	return depth
}
