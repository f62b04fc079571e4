package match

// Tape is the append-only trade history of a book. It grows without bound;
// a long-running host should drain or rotate it via Truncate.
//
// Like the rest of the book it is not synchronized: readers must coordinate
// with the single writer.
type Tape struct {
	trades []*Trade
}

// NewTape creates an empty trade tape.
func NewTape() *Tape {
	return &Tape{
		trades: make([]*Trade, 0),
	}
}

func (t *Tape) append(trade *Trade) {
	t.trades = append(t.trades, trade)
}

// Len returns the number of trades recorded.
func (t *Tape) Len() int {
	return len(t.trades)
}

// All returns a copy of the full trade history in execution order.
func (t *Tape) All() []*Trade {
	trades := make([]*Trade, len(t.trades))
	copy(trades, t.trades)
	return trades
}

// Last returns up to n most recent trades in execution order.
func (t *Tape) Last(n int) []*Trade {
	if n > len(t.trades) {
		n = len(t.trades)
	}

	trades := make([]*Trade, n)
	copy(trades, t.trades[len(t.trades)-n:])
	return trades
}

// Truncate drops all recorded trades.
func (t *Tape) Truncate() {
	t.trades = t.trades[:0]
}
