// Package sim drives a matching engine with randomized order flow and
// forwards the resulting trades to a PnL ledger. Runs are deterministic for
// a fixed seed, which makes them usable both as a demo harness and as a
// soak test for the engine's invariants.
package sim

import (
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"

	match "github.com/hftlab/marketsim"
	"github.com/hftlab/marketsim/ledger"
)

// Config controls the shape of the generated order flow.
type Config struct {
	Seed        int64
	Steps       int
	MidPrice    decimal.Decimal // center of the generated price band
	TickSize    decimal.Decimal // price increment
	BandTicks   int             // limit prices land within MidPrice ± BandTicks ticks
	MaxQuantity int             // order quantities land in [1, MaxQuantity]
	MarketRatio float64         // fraction of submissions that are market orders
	CancelRatio float64         // fraction of steps that cancel a random resting order
}

// DefaultConfig returns a flow shape that keeps both sides of the book
// populated while still trading regularly.
func DefaultConfig() Config {
	return Config{
		Seed:        1,
		Steps:       1000,
		MidPrice:    decimal.NewFromInt(100),
		TickSize:    decimal.New(1, -2),
		BandTicks:   200,
		MaxQuantity: 10,
		MarketRatio: 0.1,
		CancelRatio: 0.1,
	}
}

// Report summarizes one simulation run.
type Report struct {
	Steps       int
	Submitted   int
	Canceled    int
	Trades      int
	LastPrice   decimal.Decimal // last traded price, or MidPrice if nothing traded
	Ledger      ledger.Summary
	TotalPnL    decimal.Decimal // realized + unrealized at LastPrice
	FinalDepths *match.BookStats
}

type restingRef struct {
	side match.Side
	id   uint64
}

// Runner feeds generated orders into a book and books every trade into the
// tracker from the aggressor's perspective.
type Runner struct {
	book    *match.OrderBook
	tracker *ledger.Tracker
	cfg     Config
	rng     *rand.Rand
	resting []restingRef
}

// NewRunner creates a runner over the given book and tracker.
func NewRunner(book *match.OrderBook, tracker *ledger.Tracker, cfg Config) *Runner {
	return &Runner{
		book:    book,
		tracker: tracker,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		resting: make([]restingRef, 0, cfg.Steps),
	}
}

// Run executes the configured number of steps and returns the run summary.
func (r *Runner) Run() (*Report, error) {
	report := &Report{
		Steps:     r.cfg.Steps,
		LastPrice: r.cfg.MidPrice,
	}

	for i := 0; i < r.cfg.Steps; i++ {
		if len(r.resting) > 0 && r.rng.Float64() < r.cfg.CancelRatio {
			if err := r.cancelRandom(); err != nil {
				return nil, err
			}
			report.Canceled++
			continue
		}

		result, err := r.submitRandom()
		if err != nil {
			return nil, err
		}
		report.Submitted++

		for _, trade := range result.Trades {
			if err := r.tracker.RecordTrade(trade); err != nil {
				return nil, fmt.Errorf("record trade: %w", err)
			}
			report.LastPrice = trade.Price
			report.Trades++
		}

		if result.Resting != nil {
			r.resting = append(r.resting, restingRef{side: result.Resting.Side, id: result.Resting.ID})
		}
	}

	report.Ledger = r.tracker.Summary()
	report.TotalPnL = r.tracker.TotalPnL(report.LastPrice)
	report.FinalDepths = r.book.Stats()

	return report, nil
}

func (r *Runner) submitRandom() (*match.SubmitResult, error) {
	side := match.Bid
	if r.rng.Intn(2) == 1 {
		side = match.Ask
	}

	req := &match.PlaceOrderRequest{
		Side:     side,
		Quantity: decimal.NewFromInt(int64(1 + r.rng.Intn(r.cfg.MaxQuantity))),
	}

	if r.rng.Float64() < r.cfg.MarketRatio {
		req.Type = match.Market
	} else {
		req.Type = match.Limit
		req.Price = r.randomPrice()
	}

	return r.book.Submit(req)
}

// randomPrice picks a tick-aligned price within the configured band.
func (r *Runner) randomPrice() decimal.Decimal {
	offset := int64(r.rng.Intn(2*r.cfg.BandTicks+1) - r.cfg.BandTicks)
	return r.cfg.MidPrice.Add(r.cfg.TickSize.Mul(decimal.NewFromInt(offset)))
}

// cancelRandom cancels one previously tracked resting order. The order may
// already be filled; cancel is idempotent, so that is not an error.
func (r *Runner) cancelRandom() error {
	i := r.rng.Intn(len(r.resting))
	ref := r.resting[i]
	r.resting = append(r.resting[:i], r.resting[i+1:]...)

	return r.book.Cancel(ref.side, ref.id)
}
