package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	match "github.com/hftlab/marketsim"
	"github.com/hftlab/marketsim/feed"
	"github.com/hftlab/marketsim/internal/config"
	"github.com/hftlab/marketsim/ledger"
	"github.com/hftlab/marketsim/sim"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	match.SetLogger(logger)
	feed.SetLogger(logger)

	var runErr error
	switch cfg.Mode {
	case "sim":
		runErr = runSim(cfg, logger)
	case "feed":
		runErr = runFeed(cfg, logger)
	}

	if runErr != nil {
		logger.Error("run failed", "mode", cfg.Mode, "error", runErr)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// runSim drives the engine with randomized flow and prints the book, an
// event-rebuilt depth view, and the ledger summary.
func runSim(cfg *config.Config, logger *slog.Logger) error {
	events := match.NewMemoryPublisher()
	book := match.NewOrderBook(cfg.Symbol, events)
	tracker := ledger.NewTracker()

	simCfg := sim.DefaultConfig()
	simCfg.Seed = cfg.Seed
	simCfg.Steps = cfg.Steps
	simCfg.MidPrice = cfg.MidPrice
	simCfg.MarketRatio = cfg.MarketRatio
	simCfg.CancelRatio = cfg.CancelRatio

	runner := sim.NewRunner(book, tracker, simCfg)
	report, err := runner.Run()
	if err != nil {
		return err
	}

	logger.Info("simulation finished",
		"steps", report.Steps,
		"submitted", report.Submitted,
		"canceled", report.Canceled,
		"trades", report.Trades,
		"last_price", report.LastPrice)

	fmt.Print(book)

	// Reporting path: rebuild aggregated depth purely from the event
	// stream, the way a display consumer would.
	view := match.NewDepthView()
	for _, event := range events.Events() {
		if err := view.Apply(event); err != nil {
			return err
		}
	}

	depth := view.Depth(5)
	fmt.Println(">> Rebuilt Depth (top 5) <<")
	for _, item := range depth.Bids {
		fmt.Printf("bid %s: %s\n", item.Price, item.Volume)
	}
	for _, item := range depth.Asks {
		fmt.Printf("ask %s: %s\n", item.Price, item.Volume)
	}

	summary := report.Ledger
	fmt.Println(">> Ledger <<")
	fmt.Printf("total trades:   %d\n", summary.TotalTrades)
	fmt.Printf("inventory:      %s\n", summary.Inventory)
	fmt.Printf("cash flow:      %s\n", summary.CashFlow)
	fmt.Printf("realized pnl:   %s\n", summary.RealizedPnL)
	fmt.Printf("open lots:      %d long / %d short\n", summary.OpenLongLots, summary.OpenShortLots)
	fmt.Printf("total pnl @ %s: %s\n", report.LastPrice, report.TotalPnL)

	return nil
}

// runFeed mirrors an external depth stream into the local book and prints
// the replicated book after the configured number of snapshots.
func runFeed(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	book := match.NewOrderBook(cfg.Symbol, nil)
	ingestor := feed.NewIngestor(book, "feed")

	err := ingestor.Run(ctx, feed.Config{
		Endpoint:    cfg.FeedEndpoint,
		Symbol:      cfg.Symbol,
		Levels:      cfg.FeedLevels,
		MaxMessages: cfg.FeedMessages,
	})
	if err != nil {
		return err
	}

	logger.Info("feed finished", "symbol", cfg.Symbol, "messages", cfg.FeedMessages)
	fmt.Print(book)

	return nil
}
