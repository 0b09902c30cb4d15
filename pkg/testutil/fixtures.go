package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/larder/larder-backend/internal/ledger"
	"github.com/shopspring/decimal"
)

// FixtureTime is the instant fixture clocks start from
var FixtureTime = time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)

// FixtureClock advances one second per call
type FixtureClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixtureClock starts a clock at start
func NewFixtureClock(start time.Time) *FixtureClock {
	return &FixtureClock{now: start}
}

// Now returns the next tick
func (c *FixtureClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// SequentialIDs returns an IDGenerator producing prefix-1, prefix-2, ...
func SequentialIDs(prefix string) ledger.IDGenerator {
	var mu sync.Mutex
	n := 0
	return ledger.IDGeneratorFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	})
}

// FixtureLedger returns a ledger with deterministic ids and clock
func FixtureLedger(opts ...ledger.Option) *ledger.Ledger {
	clock := NewFixtureClock(FixtureTime)
	base := []ledger.Option{
		ledger.WithIDGenerator(SequentialIDs("id")),
		ledger.WithClock(clock.Now),
	}
	return ledger.New(append(base, opts...)...)
}

// ItemFixture describes a pantry item for tests
type ItemFixture struct {
	Name            string
	Category        string
	Unit            string
	QuantityPerPack string
	TotalQuantity   string
	Quantity        string
	ExpiryDate      string
}

// DefaultItemFixture is a dated, batch-tracked dairy item
func DefaultItemFixture() ItemFixture {
	return ItemFixture{
		Name:          "Milk",
		Category:      "dairy",
		Unit:          "l",
		TotalQuantity: "4",
		Quantity:      "2",
		ExpiryDate:    "2025-01-20",
	}
}

// NewItem converts the fixture into a ledger.NewItem
func (f ItemFixture) NewItem() ledger.NewItem {
	in := ledger.NewItem{
		Name:     f.Name,
		Category: f.Category,
		Unit:     f.Unit,
		Quantity: decimal.Zero,
	}
	if f.QuantityPerPack != "" {
		in.QuantityPerPack = PtrDecimal(f.QuantityPerPack)
	}
	if f.TotalQuantity != "" {
		in.TotalQuantity = PtrDecimal(f.TotalQuantity)
	}
	if f.Quantity != "" {
		in.Quantity = Decimal(f.Quantity)
	}
	if f.ExpiryDate != "" {
		d := ledger.MustParseDate(f.ExpiryDate)
		in.ExpiryDate = &d
	}
	return in
}

// Build creates the item through l
func (f ItemFixture) Build(l *ledger.Ledger) *ledger.Item {
	return l.Create(f.NewItem())
}

// Collection builds a collection from fixtures using l
func Collection(l *ledger.Ledger, fixtures ...ItemFixture) ledger.Collection {
	c := make(ledger.Collection, len(fixtures))
	for _, f := range fixtures {
		it := f.Build(l)
		c[it.ID] = it
	}
	return c
}
