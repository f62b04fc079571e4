package match

import (
	"fmt"
	"strings"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"
)

// OrderBook is a single-instrument continuous double auction.
//
// All operations are synchronous and run to completion on the caller's
// goroutine. The book carries no locking of its own; a concurrent host must
// treat the whole book (both sides, the clock, the tape) as one shared
// resource and serialize access to it.
type OrderBook struct {
	symbol      string
	bidQueue    *queue
	askQueue    *queue
	clock       uint64 // logical time, advanced once per intake
	nextOrderID uint64
	seqID       uint64 // event sequence, one per published BookEvent
	tape        *Tape
	publisher   Publisher
}

// NewOrderBook creates a new order book instance. A nil publisher discards
// the event stream.
func NewOrderBook(symbol string, publisher Publisher) *OrderBook {
	if publisher == nil {
		publisher = NewDiscardPublisher()
	}

	return &OrderBook{
		symbol:    symbol,
		bidQueue:  newBidQueue(),
		askQueue:  newAskQueue(),
		tape:      NewTape(),
		publisher: publisher,
	}
}

// Symbol returns the instrument identifier of this book.
func (book *OrderBook) Symbol() string {
	return book.symbol
}

// Clock returns the current logical time.
func (book *OrderBook) Clock() uint64 {
	return book.clock
}

// Tape returns the append-only trade history of this book.
func (book *OrderBook) Tape() *Tape {
	return book.tape
}

// Submit validates and processes a new order. The logical clock advances by
// one tick and stamps the order; a fresh order id is allocated, and a fresh
// owner id when the request carries none.
//
// Limit orders match against the opposite side while the book crosses, then
// rest with any remainder. Market orders match until the opposite side is
// exhausted; an unfilled remainder is discarded, never booked.
func (book *OrderBook) Submit(req *PlaceOrderRequest) (*SubmitResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	book.clock++
	book.nextOrderID++

	ownerID := req.OwnerID
	if ownerID == "" {
		ownerID = xid.New().String()
	}

	order := &Order{
		ID:        book.nextOrderID,
		OwnerID:   ownerID,
		Side:      req.Side,
		Type:      req.Type,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Timestamp: book.clock,
	}

	return book.process(order), nil
}

// Replay processes an order carried over from historical data. The
// caller-supplied timestamp becomes the new clock value and the supplied
// order id is honored as given (one is allocated if absent). A timestamp
// older than the current clock is a data-quality problem in the input, not
// a fatal condition; it is logged and adopted.
func (book *OrderBook) Replay(req *PlaceOrderRequest) (*SubmitResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if req.Timestamp < book.clock {
		logger.Warn("replay timestamp regressed",
			"symbol", book.symbol,
			"clock", book.clock,
			"timestamp", req.Timestamp)
	}
	book.clock = req.Timestamp

	id := req.ID
	if id == 0 {
		book.nextOrderID++
		id = book.nextOrderID
	} else if book.bidQueue.order(id) != nil || book.askQueue.order(id) != nil {
		return nil, fmt.Errorf("%w: order id %d already resting", ErrInvalidOrder, id)
	} else if id > book.nextOrderID {
		book.nextOrderID = id
	}

	order := &Order{
		ID:        id,
		OwnerID:   req.OwnerID,
		Side:      req.Side,
		Type:      req.Type,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Timestamp: book.clock,
	}

	return book.process(order), nil
}

func validateRequest(req *PlaceOrderRequest) error {
	if !req.Type.valid() {
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidRequest, req.Type)
	}

	if !req.Side.valid() {
		return fmt.Errorf("%w: unknown side %d", ErrInvalidRequest, int8(req.Side))
	}

	if !req.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}

	if req.Type == Limit && !req.Price.IsPositive() {
		return fmt.Errorf("%w: limit order requires a positive price", ErrInvalidOrder)
	}

	return nil
}

func (book *OrderBook) process(order *Order) *SubmitResult {
	var (
		result *SubmitResult
		events []*BookEvent
	)

	switch order.Type {
	case Limit:
		result, events = book.processLimitOrder(order)
	case Market:
		result, events = book.processMarketOrder(order)
	}

	if len(events) > 0 {
		book.publisher.Publish(events...)
	}

	return result
}

// processLimitOrder matches the incoming order against the opposite side
// while the book crosses, then rests any remainder at its limit price.
func (book *OrderBook) processLimitOrder(order *Order) (*SubmitResult, []*BookEvent) {
	myQueue, targetQueue := book.bidQueue, book.askQueue
	if order.Side == Ask {
		myQueue, targetQueue = book.askQueue, book.bidQueue
	}

	result := &SubmitResult{Trades: make([]*Trade, 0, 4)}
	events := make([]*BookEvent, 0, 4)

	for order.Quantity.IsPositive() {
		maker := targetQueue.peekHeadOrder()
		if maker == nil {
			break
		}

		if order.Side == Bid && order.Price.LessThan(maker.Price) ||
			order.Side == Ask && order.Price.GreaterThan(maker.Price) {
			break
		}

		trade, event := book.fill(order, targetQueue)
		result.Trades = append(result.Trades, trade)
		events = append(events, event)
	}

	if order.Quantity.IsPositive() {
		myQueue.insertOrder(order, false)
		result.Resting = order
		events = append(events, book.newOpenEvent(order))
	}

	return result, events
}

// processMarketOrder matches with no price constraint until filled or the
// opposite side is exhausted. The remainder of an underfilled market order
// is discarded.
func (book *OrderBook) processMarketOrder(order *Order) (*SubmitResult, []*BookEvent) {
	targetQueue := book.askQueue
	if order.Side == Ask {
		targetQueue = book.bidQueue
	}

	result := &SubmitResult{Trades: make([]*Trade, 0, 4)}
	events := make([]*BookEvent, 0, 4)

	for order.Quantity.IsPositive() {
		if targetQueue.peekHeadOrder() == nil {
			logger.Debug("market order ran out of liquidity",
				"symbol", book.symbol,
				"order_id", order.ID,
				"unfilled", order.Quantity)
			break
		}

		trade, event := book.fill(order, targetQueue)
		result.Trades = append(result.Trades, trade)
		events = append(events, event)
	}

	return result, events
}

// fill executes the incoming order against the head of the target queue and
// returns the resulting trade. The trade prints at the maker's price. A
// partially consumed maker goes back at the front of its level, keeping its
// original timestamp and priority.
func (book *OrderBook) fill(taker *Order, targetQueue *queue) (*Trade, *BookEvent) {
	maker := targetQueue.popHeadOrder()

	var traded decimal.Decimal
	if taker.Quantity.GreaterThanOrEqual(maker.Quantity) {
		traded = maker.Quantity
		taker.Quantity = taker.Quantity.Sub(traded)
	} else {
		traded = taker.Quantity
		maker.Quantity = maker.Quantity.Sub(traded)
		targetQueue.insertOrder(maker, true)
		taker.Quantity = decimal.Zero
	}

	trade := &Trade{
		Price:      maker.Price,
		Quantity:   traded,
		TakerSide:  taker.Side,
		TakerOwner: taker.OwnerID,
		MakerOwner: maker.OwnerID,
		Timestamp:  book.clock,
	}

	if taker.Side == Bid {
		trade.BuyOrderID = taker.ID
		trade.SellOrderID = maker.ID
	} else {
		trade.BuyOrderID = maker.ID
		trade.SellOrderID = taker.ID
	}

	book.tape.append(trade)

	return trade, book.newMatchEvent(taker, maker, trade)
}

// Cancel removes a resting order by id from the named side. Canceling an
// unknown id is a no-op: the caller's intent (order not resting) already
// holds, so it reports success.
func (book *OrderBook) Cancel(side Side, id uint64) error {
	if !side.valid() {
		return fmt.Errorf("%w: unknown side %d", ErrInvalidRequest, int8(side))
	}

	book.clock++

	q := book.bidQueue
	if side == Ask {
		q = book.askQueue
	}

	order := q.order(id)
	if order == nil {
		return nil
	}

	q.removeOrder(order.Price, id)
	book.publisher.Publish(book.newCancelEvent(order))

	return nil
}

// Modify is a cancel-replace of a resting order. The order's timestamp is
// re-stamped to the current logical time in every case.
//
// Keeping the price while decreasing the quantity preserves the order's
// position in its level. Changing the price, or increasing the quantity,
// forfeits priority: the order is removed and re-enters as if newly
// submitted, matching first if its new price crosses the book.
func (book *OrderBook) Modify(id uint64, update Update) error {
	if !update.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}

	if !update.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}

	var myQueue *queue
	order := book.askQueue.order(id)
	if order != nil {
		myQueue = book.askQueue
	} else {
		order = book.bidQueue.order(id)
		if order != nil {
			myQueue = book.bidQueue
		}
	}

	if order == nil {
		return fmt.Errorf("%w: order %d is not resting", ErrNotFound, id)
	}

	book.clock++

	oldPrice := order.Price
	oldQty := order.Quantity

	if !oldPrice.Equal(update.Price) || update.Quantity.GreaterThan(oldQty) {
		// Priority lost: remove, then re-enter through the matching path.
		myQueue.removeOrder(oldPrice, id)

		order.Price = update.Price
		order.Quantity = update.Quantity
		order.Timestamp = book.clock

		book.publisher.Publish(book.newAmendEvent(order, oldPrice, oldQty))

		_, events := book.processLimitOrder(order)
		if len(events) > 0 {
			book.publisher.Publish(events...)
		}

		return nil
	}

	// Priority kept: price unchanged and quantity not increased.
	if update.Quantity.LessThan(oldQty) {
		myQueue.updateOrderQuantity(id, update.Quantity)
	}
	order.Timestamp = book.clock

	book.publisher.Publish(book.newAmendEvent(order, oldPrice, oldQty))

	return nil
}

// BestBid returns the highest resting bid price, if any.
func (book *OrderBook) BestBid() (decimal.Decimal, bool) {
	return book.bidQueue.bestPrice()
}

// BestAsk returns the lowest resting ask price, if any.
func (book *OrderBook) BestAsk() (decimal.Decimal, bool) {
	return book.askQueue.bestPrice()
}

// VolumeAt returns the total resting volume at the given price level, or
// zero if the level does not exist.
func (book *OrderBook) VolumeAt(side Side, price decimal.Decimal) (decimal.Decimal, error) {
	if !side.valid() {
		return decimal.Zero, fmt.Errorf("%w: unknown side %d", ErrInvalidRequest, int8(side))
	}

	if side == Bid {
		return book.bidQueue.volumeAt(price), nil
	}

	return book.askQueue.volumeAt(price), nil
}

// Depth returns the aggregated book up to the specified number of levels
// per side, best price first.
func (book *OrderBook) Depth(limit uint32) (*Depth, error) {
	if limit == 0 {
		return nil, fmt.Errorf("%w: depth limit must be positive", ErrInvalidRequest)
	}

	return &Depth{
		UpdateID: book.seqID,
		Bids:     book.bidQueue.depth(limit),
		Asks:     book.askQueue.depth(limit),
	}, nil
}

// Snapshot returns every resting order of both sides in priority order
// (best price first, FIFO within a level).
func (book *OrderBook) Snapshot() (bids []Order, asks []Order) {
	return book.bidQueue.toSnapshot(), book.askQueue.toSnapshot()
}

// Stats returns resting order and price level counts for diagnostics.
func (book *OrderBook) Stats() *BookStats {
	return &BookStats{
		BidOrderCount: book.bidQueue.orderCount(),
		BidDepthCount: book.bidQueue.depthCount(),
		AskOrderCount: book.askQueue.orderCount(),
		AskDepthCount: book.askQueue.depthCount(),
	}
}

// String renders the top of the book and the most recent trades.
func (book *OrderBook) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "=== OrderBook %s ===\n", book.symbol)

	sb.WriteString(">> Bids <<\n")
	for _, item := range book.bidQueue.depth(10) {
		fmt.Fprintf(&sb, "%s: %s\n", item.Price, item.Volume)
	}

	sb.WriteString(">> Asks <<\n")
	for _, item := range book.askQueue.depth(10) {
		fmt.Fprintf(&sb, "%s: %s\n", item.Price, item.Volume)
	}

	sb.WriteString(">> Last Trades <<\n")
	for _, trade := range book.tape.Last(10) {
		fmt.Fprintf(&sb, "%s @ %s [%d] %d/%d\n",
			trade.Quantity, trade.Price, trade.Timestamp, trade.BuyOrderID, trade.SellOrderID)
	}

	return sb.String()
}

func (book *OrderBook) newOpenEvent(order *Order) *BookEvent {
	book.seqID++
	return &BookEvent{
		SequenceID: book.seqID,
		Type:       EventTypeOpen,
		Symbol:     book.symbol,
		Side:       order.Side,
		Price:      order.Price,
		Quantity:   order.Quantity,
		OrderID:    order.ID,
		OwnerID:    order.OwnerID,
		Timestamp:  book.clock,
	}
}

func (book *OrderBook) newMatchEvent(taker *Order, maker *Order, trade *Trade) *BookEvent {
	book.seqID++
	return &BookEvent{
		SequenceID: book.seqID,
		Type:       EventTypeMatch,
		Symbol:     book.symbol,
		Side:       taker.Side,
		Price:      trade.Price,
		Quantity:   trade.Quantity,
		OrderID:    taker.ID,
		OwnerID:    taker.OwnerID,
		MakerID:    maker.ID,
		Timestamp:  book.clock,
	}
}

func (book *OrderBook) newCancelEvent(order *Order) *BookEvent {
	book.seqID++
	return &BookEvent{
		SequenceID: book.seqID,
		Type:       EventTypeCancel,
		Symbol:     book.symbol,
		Side:       order.Side,
		Price:      order.Price,
		Quantity:   order.Quantity,
		OrderID:    order.ID,
		OwnerID:    order.OwnerID,
		Timestamp:  book.clock,
	}
}

func (book *OrderBook) newAmendEvent(order *Order, oldPrice, oldQty decimal.Decimal) *BookEvent {
	book.seqID++
	return &BookEvent{
		SequenceID: book.seqID,
		Type:       EventTypeAmend,
		Symbol:     book.symbol,
		Side:       order.Side,
		Price:      order.Price,
		Quantity:   order.Quantity,
		OldPrice:   oldPrice,
		OldQty:     oldQty,
		OrderID:    order.ID,
		OwnerID:    order.OwnerID,
		Timestamp:  book.clock,
	}
}
