package match

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

// Property: after every submission the book is never left crossed.
func TestProperty_BookNeverCrossed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOrderBook("TEST", nil)

		steps := rapid.IntRange(1, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			req := &PlaceOrderRequest{
				Side:     rapid.SampledFrom([]Side{Bid, Ask}).Draw(t, "side"),
				Quantity: decimal.NewFromInt(rapid.Int64Range(1, 50).Draw(t, "qty")),
			}

			if rapid.Float64Range(0, 1).Draw(t, "marketRatio") < 0.2 {
				req.Type = Market
			} else {
				req.Type = Limit
				req.Price = decimal.NewFromInt(rapid.Int64Range(90, 110).Draw(t, "price"))
			}

			if _, err := book.Submit(req); err != nil {
				t.Fatalf("submit failed: %v", err)
			}

			bestBid, hasBid := book.BestBid()
			bestAsk, hasAsk := book.BestAsk()
			if hasBid && hasAsk && bestBid.GreaterThanOrEqual(bestAsk) {
				t.Fatalf("book is crossed: best bid %s >= best ask %s", bestBid, bestAsk)
			}
		}
	})
}

// Property: quantity is conserved. For every submission, the incoming
// quantity equals traded quantity plus rested quantity (plus the discarded
// remainder of market orders), and the total resting volume moves by
// exactly rested minus traded.
func TestProperty_QuantityConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOrderBook("TEST", nil)

		totalResting := func() decimal.Decimal {
			sum := decimal.Zero
			bids, asks := book.Snapshot()
			for _, o := range bids {
				sum = sum.Add(o.Quantity)
			}
			for _, o := range asks {
				sum = sum.Add(o.Quantity)
			}
			return sum
		}

		steps := rapid.IntRange(1, 100).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			req := &PlaceOrderRequest{
				Side:     rapid.SampledFrom([]Side{Bid, Ask}).Draw(t, "side"),
				Quantity: decimal.NewFromInt(rapid.Int64Range(1, 20).Draw(t, "qty")),
			}

			if rapid.Float64Range(0, 1).Draw(t, "marketRatio") < 0.3 {
				req.Type = Market
			} else {
				req.Type = Limit
				req.Price = decimal.NewFromInt(rapid.Int64Range(95, 105).Draw(t, "price"))
			}

			before := totalResting()

			result, err := book.Submit(req)
			if err != nil {
				t.Fatalf("submit failed: %v", err)
			}

			traded := decimal.Zero
			for _, trade := range result.Trades {
				traded = traded.Add(trade.Quantity)
			}

			rested := decimal.Zero
			if result.Resting != nil {
				rested = result.Resting.Quantity
			}

			if req.Type == Limit {
				if !traded.Add(rested).Equal(req.Quantity) {
					t.Fatalf("limit conservation broken: traded %s + rested %s != submitted %s",
						traded, rested, req.Quantity)
				}
			} else {
				if traded.GreaterThan(req.Quantity) || !rested.IsZero() {
					t.Fatalf("market conservation broken: traded %s, rested %s, submitted %s",
						traded, rested, req.Quantity)
				}
			}

			after := totalResting()
			want := before.Sub(traded).Add(rested)
			if !after.Equal(want) {
				t.Fatalf("resting volume drifted: before %s, traded %s, rested %s, after %s",
					before, traded, rested, after)
			}
		}
	})
}

// Property: every trade prints at the resting order's price, never at the
// aggressor's limit price.
func TestProperty_TradesPrintAtMakerPrice(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOrderBook("TEST", nil)

		askPrice := rapid.Int64Range(1, 5000).Draw(t, "askPrice")
		bidPremium := rapid.Int64Range(0, 5000).Draw(t, "bidPremium")
		bidPrice := askPrice + bidPremium
		qty := rapid.Int64Range(1, 100).Draw(t, "qty")

		if _, err := book.Submit(limit(Ask, askPrice, qty)); err != nil {
			t.Fatalf("failed to place ask: %v", err)
		}

		result, err := book.Submit(limit(Bid, bidPrice, qty))
		if err != nil {
			t.Fatalf("failed to place bid: %v", err)
		}

		if len(result.Trades) == 0 {
			t.Fatalf("expected trade with bid=%d >= ask=%d", bidPrice, askPrice)
		}

		for i, trade := range result.Trades {
			if !trade.Price.Equal(decimal.NewFromInt(askPrice)) {
				t.Fatalf("trade[%d]: execution price %s != maker price %d", i, trade.Price, askPrice)
			}
		}
	})
}

// Property: at one price level, orders fill strictly in submission order.
func TestProperty_FIFOFairness(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOrderBook("TEST", nil)

		n := rapid.IntRange(2, 20).Draw(t, "orders")

		ids := make([]uint64, 0, n)
		for i := 0; i < n; i++ {
			result, err := book.Submit(limit(Ask, 100, 1))
			if err != nil {
				t.Fatalf("submit failed: %v", err)
			}
			ids = append(ids, result.Resting.ID)
		}

		result, err := book.Submit(market(Bid, int64(n)))
		if err != nil {
			t.Fatalf("sweep failed: %v", err)
		}

		if len(result.Trades) != n {
			t.Fatalf("expected %d trades, got %d", n, len(result.Trades))
		}

		for i, trade := range result.Trades {
			if trade.SellOrderID != ids[i] {
				t.Fatalf("fill %d went to order %d, expected %d", i, trade.SellOrderID, ids[i])
			}
		}
	})
}

// Property: canceling a nonexistent id succeeds and changes nothing.
func TestProperty_IdempotentCancel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOrderBook("TEST", nil)

		n := rapid.IntRange(0, 20).Draw(t, "orders")
		for i := 0; i < n; i++ {
			side := rapid.SampledFrom([]Side{Bid, Ask}).Draw(t, "side")
			price := int64(100)
			if side == Bid {
				price = int64(rapid.Int64Range(90, 99).Draw(t, "bidPrice"))
			} else {
				price = int64(rapid.Int64Range(101, 110).Draw(t, "askPrice"))
			}
			if _, err := book.Submit(limit(side, price, 1)); err != nil {
				t.Fatalf("submit failed: %v", err)
			}
		}

		statsBefore := *book.Stats()
		bidBefore, hasBidBefore := book.BestBid()
		askBefore, hasAskBefore := book.BestAsk()

		id := uint64(rapid.Int64Range(100000, 200000).Draw(t, "ghostID"))
		if err := book.Cancel(Bid, id); err != nil {
			t.Fatalf("cancel returned error: %v", err)
		}
		if err := book.Cancel(Ask, id); err != nil {
			t.Fatalf("cancel returned error: %v", err)
		}

		if *book.Stats() != statsBefore {
			t.Fatalf("stats changed: %+v != %+v", *book.Stats(), statsBefore)
		}

		bidAfter, hasBidAfter := book.BestBid()
		askAfter, hasAskAfter := book.BestAsk()
		if hasBidBefore != hasBidAfter || (hasBidBefore && !bidBefore.Equal(bidAfter)) {
			t.Fatalf("best bid changed")
		}
		if hasAskBefore != hasAskAfter || (hasAskBefore && !askBefore.Equal(askAfter)) {
			t.Fatalf("best ask changed")
		}
	})
}

// Property: a depth view rebuilt from the event stream always agrees with
// the book's own aggregated depth.
func TestProperty_DepthViewAgreesWithBook(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		events := NewMemoryPublisher()
		book := NewOrderBook("TEST", events)

		resting := make([]*Order, 0)

		steps := rapid.IntRange(1, 100).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			action := rapid.IntRange(0, 9).Draw(t, "action")

			switch {
			case action < 2 && len(resting) > 0:
				idx := rapid.IntRange(0, len(resting)-1).Draw(t, "cancelIdx")
				ord := resting[idx]
				resting = append(resting[:idx], resting[idx+1:]...)
				if err := book.Cancel(ord.Side, ord.ID); err != nil {
					t.Fatalf("cancel failed: %v", err)
				}
			case action < 3 && len(resting) > 0:
				idx := rapid.IntRange(0, len(resting)-1).Draw(t, "modifyIdx")
				ord := resting[idx]
				resting = append(resting[:idx], resting[idx+1:]...)
				err := book.Modify(ord.ID, Update{
					Price:    decimal.NewFromInt(rapid.Int64Range(95, 105).Draw(t, "newPrice")),
					Quantity: decimal.NewFromInt(rapid.Int64Range(1, 20).Draw(t, "newQty")),
				})
				// The order may have been filled since it was tracked.
				if err != nil && !errors.Is(err, ErrNotFound) {
					t.Fatalf("modify failed: %v", err)
				}
			default:
				req := &PlaceOrderRequest{
					Side:     rapid.SampledFrom([]Side{Bid, Ask}).Draw(t, "side"),
					Type:     Limit,
					Price:    decimal.NewFromInt(rapid.Int64Range(95, 105).Draw(t, "price")),
					Quantity: decimal.NewFromInt(rapid.Int64Range(1, 20).Draw(t, "qty")),
				}
				result, err := book.Submit(req)
				if err != nil {
					t.Fatalf("submit failed: %v", err)
				}
				if result.Resting != nil {
					resting = append(resting, result.Resting)
				}
			}
		}

		view := NewDepthView()
		for _, event := range events.Events() {
			if err := view.Apply(event); err != nil {
				t.Fatalf("apply failed: %v", err)
			}
		}

		depth, err := book.Depth(1000)
		if err != nil {
			t.Fatalf("depth failed: %v", err)
		}
		rebuilt := view.Depth(1000)

		assertDepthEqual(t, depth.Bids, rebuilt.Bids)
		assertDepthEqual(t, depth.Asks, rebuilt.Asks)
	})
}

func assertDepthEqual(t *rapid.T, want, got []*DepthItem) {
	if len(want) != len(got) {
		t.Fatalf("level count mismatch: book %d, view %d", len(want), len(got))
	}
	for i := range want {
		if !want[i].Price.Equal(got[i].Price) || !want[i].Volume.Equal(got[i].Volume) {
			t.Fatalf("level %d mismatch: book %s@%s, view %s@%s",
				i, want[i].Volume, want[i].Price, got[i].Volume, got[i].Price)
		}
	}
}
