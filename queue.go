package match

import (
	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"
)

// priceLevel is the FIFO of orders resting at one exact price.
// volume caches the sum of member quantities.
type priceLevel struct {
	volume decimal.Decimal
	head   *Order
	tail   *Order
	count  int64
}

// queue is one side of the book: price levels kept sorted by a skip list
// (best price at the front), plus id and price lookups so an arbitrary
// order can be removed without scanning levels.
//
// Note: shopspring decimals are not usable as map keys (they carry a big.Int
// pointer), so the price lookup is keyed by the canonical string form.
type queue struct {
	side        Side
	totalOrders int64
	depths      int64
	depthList   *skiplist.SkipList
	priceList   map[string]*skiplist.Element
	orders      map[uint64]*Order
}

// newBidQueue creates the buy side. Levels are sorted by price in
// descending order so the highest bid is the best price.
func newBidQueue() *queue {
	return &queue{
		side: Bid,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)

			return d2.Cmp(d1)
		})),
		priceList: make(map[string]*skiplist.Element),
		orders:    make(map[uint64]*Order),
	}
}

// newAskQueue creates the sell side. Levels are sorted by price in
// ascending order so the lowest ask is the best price.
func newAskQueue() *queue {
	return &queue{
		side: Ask,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)

			return d1.Cmp(d2)
		})),
		priceList: make(map[string]*skiplist.Element),
		orders:    make(map[uint64]*Order),
	}
}

// order finds a resting order by its ID.
func (q *queue) order(id uint64) *Order {
	return q.orders[id]
}

// insertOrder inserts an order into the queue.
// isFront pushes the order at the head of its level; this is only used to
// put back a partially filled maker order, which keeps its priority.
func (q *queue) insertOrder(order *Order, isFront bool) {
	key := order.Price.String()

	el, ok := q.priceList[key]
	if ok {
		level, _ := el.Value.(*priceLevel)
		if isFront {
			order.next = level.head
			order.prev = nil
			if level.head != nil {
				level.head.prev = order
			}
			level.head = order
			if level.tail == nil {
				level.tail = order
			}
		} else {
			order.prev = level.tail
			order.next = nil
			if level.tail != nil {
				level.tail.next = order
			}
			level.tail = order
			if level.head == nil {
				level.head = order
			}
		}

		level.volume = level.volume.Add(order.Quantity)
		level.count++
		q.orders[order.ID] = order
		q.totalOrders++
	} else {
		level := &priceLevel{
			head:   order,
			tail:   order,
			volume: order.Quantity,
			count:  1,
		}
		order.next = nil
		order.prev = nil

		q.orders[order.ID] = order

		el := q.depthList.Set(order.Price, level)
		q.priceList[key] = el

		q.totalOrders++
		q.depths++
	}
}

// removeOrder removes an order from the queue by price and ID.
// Empty price levels are dropped from the index.
func (q *queue) removeOrder(price decimal.Decimal, id uint64) {
	key := price.String()

	skipElement, ok := q.priceList[key]
	if !ok {
		return
	}
	level, _ := skipElement.Value.(*priceLevel)

	order, ok := q.orders[id]
	if !ok {
		return
	}

	if order.prev != nil {
		order.prev.next = order.next
	} else {
		level.head = order.next
	}

	if order.next != nil {
		order.next.prev = order.prev
	} else {
		level.tail = order.prev
	}

	// Clear pointers to avoid leaks
	order.next = nil
	order.prev = nil

	level.volume = level.volume.Sub(order.Quantity)
	level.count--
	delete(q.orders, id)
	q.totalOrders--

	if level.count == 0 {
		q.depthList.RemoveElement(skipElement)
		delete(q.priceList, key)
		q.depths--
	}
}

// updateOrderQuantity updates the quantity of an order in-place.
// This is used when the quantity decreases, preserving the order's priority.
func (q *queue) updateOrderQuantity(id uint64, newQuantity decimal.Decimal) {
	order, ok := q.orders[id]
	if !ok {
		return
	}

	skipElement, ok := q.priceList[order.Price.String()]
	if ok {
		level, _ := skipElement.Value.(*priceLevel)
		diff := order.Quantity.Sub(newQuantity)
		level.volume = level.volume.Sub(diff)
		order.Quantity = newQuantity
	}
}

// peekHeadOrder returns the earliest order at the best price without removing it.
func (q *queue) peekHeadOrder() *Order {
	el := q.depthList.Front()
	if el == nil {
		return nil
	}

	level, _ := el.Value.(*priceLevel)
	return level.head
}

// popHeadOrder removes and returns the earliest order at the best price.
func (q *queue) popHeadOrder() *Order {
	ord := q.peekHeadOrder()

	if ord != nil {
		q.removeOrder(ord.Price, ord.ID)
	}

	return ord
}

// bestPrice returns the best price of this side, if any.
func (q *queue) bestPrice() (decimal.Decimal, bool) {
	el := q.depthList.Front()
	if el == nil {
		return decimal.Decimal{}, false
	}

	level, _ := el.Value.(*priceLevel)
	return level.head.Price, true
}

// volumeAt returns the cached total volume resting at the given price,
// or zero if the level does not exist.
func (q *queue) volumeAt(price decimal.Decimal) decimal.Decimal {
	el, ok := q.priceList[price.String()]
	if !ok {
		return decimal.Zero
	}

	level, _ := el.Value.(*priceLevel)
	return level.volume
}

// orderCount returns the total number of orders in the queue.
func (q *queue) orderCount() int64 {
	return q.totalOrders
}

// depthCount returns the number of price levels in the queue.
func (q *queue) depthCount() int64 {
	return q.depths
}

// toSnapshot serializes the queue into a slice of Order values.
// It iterates price levels in priority order and each level's FIFO in
// arrival order, so the result's order is the fill order.
func (q *queue) toSnapshot() []Order {
	snapshots := make([]Order, 0, q.totalOrders)

	elem := q.depthList.Front()
	for elem != nil {
		level := elem.Value.(*priceLevel)

		order := level.head
		for order != nil {
			snapshots = append(snapshots, Order{
				ID:        order.ID,
				OwnerID:   order.OwnerID,
				Side:      order.Side,
				Type:      order.Type,
				Price:     order.Price,
				Quantity:  order.Quantity,
				Timestamp: order.Timestamp,
			})
			order = order.next
		}

		elem = elem.Next()
	}

	return snapshots
}

// depth returns the aggregated book depth up to the specified number of levels.
func (q *queue) depth(limit uint32) []*DepthItem {
	result := make([]*DepthItem, 0, limit)

	el := q.depthList.Front()

	var i uint32 = 0
	for i < limit && el != nil {
		level, _ := el.Value.(*priceLevel)
		d := DepthItem{
			Price:  level.head.Price,
			Volume: level.volume,
		}

		result = append(result, &d)

		el = el.Next()
		i++
	}

	return result
}
