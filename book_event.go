package match

import (
	"sync"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventTypeOpen   EventType = "open"
	EventTypeMatch  EventType = "match"
	EventTypeCancel EventType = "cancel"
	EventTypeAmend  EventType = "amend"
)

// BookEvent records one state change of the order book.
// SequenceID is a globally increasing ID per book, used for ordering and
// deduplication when downstream views rebuild depth from the stream.
type BookEvent struct {
	SequenceID uint64          `json:"seq_id"`
	Type       EventType       `json:"type"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	OldPrice   decimal.Decimal `json:"old_price,omitempty"`
	OldQty     decimal.Decimal `json:"old_quantity,omitempty"`
	OrderID    uint64          `json:"order_id"`
	OwnerID    string          `json:"owner_id,omitempty"`
	MakerID    uint64          `json:"maker_order_id,omitempty"` // only set for match events
	Timestamp  uint64          `json:"timestamp"`                // logical clock at emission
}

// Publisher consumes the event stream of a book.
//
// Publish is called synchronously from inside Submit/Cancel/Modify, so
// implementations must not call back into the book.
type Publisher interface {
	Publish(...*BookEvent)
}

// MemoryPublisher stores events in memory, useful for testing and for
// feeding a DepthView after the fact.
type MemoryPublisher struct {
	mu     sync.RWMutex
	events []*BookEvent
}

// NewMemoryPublisher creates a new MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{
		events: make([]*BookEvent, 0),
	}
}

// Publish appends events to the in-memory slice.
func (m *MemoryPublisher) Publish(events ...*BookEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
}

// Count returns the number of events stored.
func (m *MemoryPublisher) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Get returns the event at the specified index.
func (m *MemoryPublisher) Get(index int) *BookEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.events[index]
}

// Events returns a copy of all events stored.
func (m *MemoryPublisher) Events() []*BookEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*BookEvent, len(m.events))
	copy(events, m.events)
	return events
}

// DiscardPublisher drops all events, useful for benchmarking.
type DiscardPublisher struct {
}

// NewDiscardPublisher creates a new DiscardPublisher.
func NewDiscardPublisher() *DiscardPublisher {
	return &DiscardPublisher{}
}

// Publish does nothing.
func (p *DiscardPublisher) Publish(events ...*BookEvent) {
}
