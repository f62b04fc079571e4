package match

import (
	"github.com/shopspring/decimal"
)

// Side identifies which half of the book an order belongs to.
type Side int8

const (
	Bid Side = 1 // buy side
	Ask Side = 2 // sell side
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	}
	return "unknown"
}

// valid reports whether the side is one of the two known values.
func (s Side) valid() bool {
	return s == Bid || s == Ask
}

type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

func (t OrderType) valid() bool {
	return t == Market || t == Limit
}

// Order is the state of a resting order in the book. Quantity is the
// remaining quantity; it only ever decreases while the order rests.
type Order struct {
	ID        uint64          `json:"id"`
	OwnerID   string          `json:"owner_id"` // opaque submitter id, used for trade attribution only
	Side      Side            `json:"side"`
	Type      OrderType       `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp uint64          `json:"timestamp"` // logical sequence number, FIFO tie-break within a level

	// Intrusive linked list pointers (ignored by JSON)
	next *Order
	prev *Order
}

// PlaceOrderRequest is the input for Submit and Replay.
// Price is required for limit orders and ignored for market orders.
// ID and Timestamp are only honored by Replay; Submit allocates both.
type PlaceOrderRequest struct {
	ID        uint64          `json:"id,omitempty"`
	OwnerID   string          `json:"owner_id,omitempty"`
	Side      Side            `json:"side"`
	Type      OrderType       `json:"type"`
	Price     decimal.Decimal `json:"price,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp uint64          `json:"timestamp,omitempty"`
}

// Update describes a cancel-replace of a resting order. A price change, or a
// quantity increase at the same price, forfeits the order's queue position;
// a quantity decrease at the same price keeps it.
type Update struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Trade is a single execution between the incoming (taker) order and a
// resting (maker) order. Price is always the maker's price.
type Trade struct {
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	BuyOrderID  uint64          `json:"buy_order_id"`
	SellOrderID uint64          `json:"sell_order_id"`
	TakerSide   Side            `json:"taker_side"` // side of the aggressor
	TakerOwner  string          `json:"taker_owner,omitempty"`
	MakerOwner  string          `json:"maker_owner,omitempty"`
	Timestamp   uint64          `json:"timestamp"`
}

// SubmitResult is the outcome of one submission: the trades it generated,
// plus the resting remainder for limit orders that were not fully filled.
// Resting is nil for fully filled limit orders and for all market orders.
type SubmitResult struct {
	Trades  []*Trade
	Resting *Order
}

// DepthItem is one aggregated price level of the book.
type DepthItem struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// Depth is a best-N snapshot of both sides, best price first.
type Depth struct {
	UpdateID uint64       `json:"update_id"`
	Bids     []*DepthItem `json:"bids"`
	Asks     []*DepthItem `json:"asks"`
}

// BookStats contains resting order and price level counts for diagnostics.
type BookStats struct {
	BidOrderCount int64
	BidDepthCount int64
	AskOrderCount int64
	AskDepthCount int64
}
