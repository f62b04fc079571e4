// Package feed replicates an external exchange's order book into a local
// matching engine. It consumes Binance-style partial depth snapshots over a
// websocket and translates each snapshot into cancel+submit calls, since
// the engine's only write surface is order submission.
package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	match "github.com/hftlab/marketsim"
)

// Config describes the upstream stream to mirror.
type Config struct {
	URL         string // full websocket URL; empty means build one from Endpoint+Symbol
	Endpoint    string // e.g. wss://stream.binance.com:9443
	Symbol      string // e.g. BTCUSDT
	Levels      int    // snapshot depth, e.g. 20
	MaxMessages int    // stop after this many snapshots; 0 means run until ctx is done
}

// StreamURL returns the partial-depth stream URL for the config.
func (c Config) StreamURL() string {
	if c.URL != "" {
		return c.URL
	}

	levels := c.Levels
	if levels == 0 {
		levels = 20
	}

	return fmt.Sprintf("%s/ws/%s@depth%d@100ms", c.Endpoint, strings.ToLower(c.Symbol), levels)
}

// PriceLevel is one [price, quantity] pair as sent on the wire.
type PriceLevel [2]string

// DepthSnapshot is a partial book snapshot: full replacement of the top N
// levels of both sides.
type DepthSnapshot struct {
	LastUpdateID uint64       `json:"lastUpdateId"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
}

// bookedLevel tracks the resting order we placed to represent one level.
type bookedLevel struct {
	orderID  uint64
	quantity decimal.Decimal
}

// Ingestor owns the mapping between upstream price levels and the resting
// orders it placed locally to represent them.
type Ingestor struct {
	book    *match.OrderBook
	ownerID string
	bids    map[string]bookedLevel // price string -> local resting order
	asks    map[string]bookedLevel
}

// NewIngestor creates an ingestor writing into the given book. All orders
// it places carry ownerID for attribution.
func NewIngestor(book *match.OrderBook, ownerID string) *Ingestor {
	return &Ingestor{
		book:    book,
		ownerID: ownerID,
		bids:    make(map[string]bookedLevel),
		asks:    make(map[string]bookedLevel),
	}
}

// Apply reconciles the local book with one upstream snapshot.
//
// Cancels run first on both sides so the book is clear of stale levels
// before any new order is submitted; otherwise a shifted spread could make
// a replacement order match against our own stale opposite side.
func (in *Ingestor) Apply(snap *DepthSnapshot) error {
	wantBids, err := parseLevels(snap.Bids)
	if err != nil {
		return fmt.Errorf("bad bid level: %w", err)
	}

	wantAsks, err := parseLevels(snap.Asks)
	if err != nil {
		return fmt.Errorf("bad ask level: %w", err)
	}

	if err := in.cancelStale(match.Bid, in.bids, wantBids); err != nil {
		return err
	}
	if err := in.cancelStale(match.Ask, in.asks, wantAsks); err != nil {
		return err
	}

	if err := in.submitNew(match.Bid, in.bids, wantBids); err != nil {
		return err
	}
	return in.submitNew(match.Ask, in.asks, wantAsks)
}

type wantedLevel struct {
	price    decimal.Decimal
	quantity decimal.Decimal
}

func parseLevels(levels []PriceLevel) (map[string]wantedLevel, error) {
	want := make(map[string]wantedLevel, len(levels))

	for _, level := range levels {
		price, err := decimal.NewFromString(level[0])
		if err != nil {
			return nil, err
		}

		quantity, err := decimal.NewFromString(level[1])
		if err != nil {
			return nil, err
		}

		// A zero quantity upstream means the level is gone.
		if quantity.IsPositive() {
			want[price.String()] = wantedLevel{price: price, quantity: quantity}
		}
	}

	return want, nil
}

// cancelStale cancels tracked orders whose level disappeared or changed size.
func (in *Ingestor) cancelStale(side match.Side, booked map[string]bookedLevel, want map[string]wantedLevel) error {
	for key, placed := range booked {
		level, ok := want[key]
		if ok && level.quantity.Equal(placed.quantity) {
			continue
		}

		if err := in.book.Cancel(side, placed.orderID); err != nil {
			return err
		}
		delete(booked, key)
	}

	return nil
}

// submitNew places a limit order for every wanted level not already booked.
func (in *Ingestor) submitNew(side match.Side, booked map[string]bookedLevel, want map[string]wantedLevel) error {
	for key, level := range want {
		if _, ok := booked[key]; ok {
			continue
		}

		result, err := in.book.Submit(&match.PlaceOrderRequest{
			OwnerID:  in.ownerID,
			Side:     side,
			Type:     match.Limit,
			Price:    level.price,
			Quantity: level.quantity,
		})
		if err != nil {
			return err
		}

		if result.Resting == nil {
			// The snapshot itself was crossed, or it traded against a stale
			// remnant; either way there is no resting order to track.
			logger.Warn("replicated level traded instead of resting",
				"side", side.String(),
				"price", level.price,
				"quantity", level.quantity)
			continue
		}

		booked[key] = bookedLevel{orderID: result.Resting.ID, quantity: level.quantity}
	}

	return nil
}

// Run dials the configured stream and applies snapshots until MaxMessages
// is reached or the context is cancelled.
func (in *Ingestor) Run(ctx context.Context, cfg Config) error {
	url := cfg.StreamURL()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	logger.Info("connected to depth stream", "url", url)

	for i := 0; cfg.MaxMessages == 0 || i < cfg.MaxMessages; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var snap DepthSnapshot
		if err := conn.ReadJSON(&snap); err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}

		if err := in.Apply(&snap); err != nil {
			return fmt.Errorf("apply snapshot: %w", err)
		}
	}

	return nil
}
