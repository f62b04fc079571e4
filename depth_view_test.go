package match

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replayInto rebuilds a view from everything the publisher captured.
func replayInto(t *testing.T, view *DepthView, events *MemoryPublisher) {
	t.Helper()
	for _, event := range events.Events() {
		require.NoError(t, view.Apply(event))
	}
}

// assertViewMatchesBook checks the rebuilt aggregated depth against the
// book's own depth query.
func assertViewMatchesBook(t *testing.T, view *DepthView, book *OrderBook) {
	t.Helper()

	depth, err := book.Depth(100)
	require.NoError(t, err)
	rebuilt := view.Depth(100)

	require.Len(t, rebuilt.Bids, len(depth.Bids))
	require.Len(t, rebuilt.Asks, len(depth.Asks))

	for i, item := range depth.Bids {
		assert.True(t, item.Price.Equal(rebuilt.Bids[i].Price))
		assert.True(t, item.Volume.Equal(rebuilt.Bids[i].Volume))
	}
	for i, item := range depth.Asks {
		assert.True(t, item.Price.Equal(rebuilt.Asks[i].Price))
		assert.True(t, item.Volume.Equal(rebuilt.Asks[i].Volume))
	}
}

func TestDepthViewRebuild(t *testing.T) {
	events := NewMemoryPublisher()
	book := NewOrderBook("BTC-USD", events)

	_, err := book.Submit(limit(Bid, 98, 2))
	require.NoError(t, err)
	_, err = book.Submit(limit(Bid, 99, 1))
	require.NoError(t, err)
	_, err = book.Submit(limit(Ask, 101, 4))
	require.NoError(t, err)

	// Trade part of the ask, cancel a bid, amend the rest.
	_, err = book.Submit(market(Bid, 1))
	require.NoError(t, err)

	bids, _ := book.Snapshot()
	require.NoError(t, book.Cancel(Bid, bids[0].ID))
	require.NoError(t, book.Modify(bids[1].ID, Update{
		Price:    decimal.NewFromInt(97),
		Quantity: decimal.NewFromInt(2),
	}))

	view := NewDepthView()
	replayInto(t, view, events)
	assertViewMatchesBook(t, view, book)

	bestBid, ok := view.BestBid()
	require.True(t, ok)
	assert.Equal(t, "97", bestBid.String())

	bestAsk, ok := view.BestAsk()
	require.True(t, ok)
	assert.Equal(t, "101", bestAsk.String())
}

func TestDepthViewAmendInPlace(t *testing.T) {
	events := NewMemoryPublisher()
	book := NewOrderBook("BTC-USD", events)

	result, err := book.Submit(limit(Ask, 100, 5))
	require.NoError(t, err)

	// Same price, smaller quantity: in-place update.
	require.NoError(t, book.Modify(result.Resting.ID, Update{
		Price:    decimal.NewFromInt(100),
		Quantity: decimal.NewFromInt(3),
	}))

	view := NewDepthView()
	replayInto(t, view, events)
	assertViewMatchesBook(t, view, book)
}

func TestDepthViewDeduplicatesAndDetectsGaps(t *testing.T) {
	view := NewDepthView()

	open := &BookEvent{
		SequenceID: 1,
		Type:       EventTypeOpen,
		Side:       Bid,
		Price:      decimal.NewFromInt(99),
		Quantity:   decimal.NewFromInt(2),
	}

	require.NoError(t, view.Apply(open))
	require.NoError(t, view.Apply(open)) // duplicate is skipped

	vol, ok := view.bid.Get(decimal.NewFromInt(99))
	require.True(t, ok)
	assert.Equal(t, "2", vol.String())

	err := view.Apply(&BookEvent{
		SequenceID: 5,
		Type:       EventTypeOpen,
		Side:       Bid,
		Price:      decimal.NewFromInt(98),
		Quantity:   decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
