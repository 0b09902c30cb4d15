// Package ledger keeps an item's dated batches, its aggregate quantity and
// its nearest expiry consistent. It does no I/O; callers load an item,
// apply one operation and persist the result.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IDGenerator hands out batch and item identifiers
type IDGenerator interface {
	NewID() string
}

// IDGeneratorFunc adapts a function to IDGenerator
type IDGeneratorFunc func() string

func (f IDGeneratorFunc) NewID() string { return f() }

// UUIDGenerator issues random (v4) UUIDs
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// EditExpiryPolicy decides the cached expiry after a manual batch replacement
// leaves no dated batch.
type EditExpiryPolicy string

const (
	// RetainExpiry keeps the previously cached expiry
	RetainExpiry EditExpiryPolicy = "retain"
	// ClearExpiry applies the same strict rule as restock and consume
	ClearExpiry EditExpiryPolicy = "clear"
)

// Ledger applies stock operations to items
type Ledger struct {
	ids        IDGenerator
	now        func() time.Time
	editPolicy EditExpiryPolicy
}

// Option configures a Ledger
type Option func(*Ledger)

func WithIDGenerator(g IDGenerator) Option {
	return func(l *Ledger) { l.ids = g }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithEditExpiryPolicy(p EditExpiryPolicy) Option {
	return func(l *Ledger) { l.editPolicy = p }
}

// New returns a Ledger using UUIDs, the wall clock and RetainExpiry unless overridden
func New(opts ...Option) *Ledger {
	l := &Ledger{
		ids:        UUIDGenerator{},
		now:        time.Now,
		editPolicy: RetainExpiry,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the ledger clock's current time
func (l *Ledger) Now() time.Time {
	return l.now()
}

// Update carries the fields an operation changed. Delta is the signed change
// in current quantity; BatchID is the batch created or decremented, if any;
// Removed lists the ids of batches that left the set.
type Update struct {
	CurrentQuantity decimal.Decimal
	Batches         []Batch
	ExpiryDate      *Date
	Delta           decimal.Decimal
	BatchID         string
	Removed         []string
}

// Changed reports whether the operation did anything
func (u Update) Changed() bool {
	return !u.Delta.IsZero() || len(u.Removed) > 0 || u.BatchID != ""
}

func snapshot(it *Item, before decimal.Decimal) Update {
	return Update{
		CurrentQuantity: it.currentQuantity,
		Batches:         it.Batches(),
		ExpiryDate:      it.ExpiryDate(),
		Delta:           it.currentQuantity.Sub(before),
	}
}

// NewItem describes an item to create
type NewItem struct {
	Name            string
	Category        string
	Unit            string
	QuantityPerPack *decimal.Decimal
	TotalQuantity   *decimal.Decimal
	Notes           string
	Barcode         string
	Quantity        decimal.Decimal
	ExpiryDate      *Date
}

// Create builds an item with one seed batch holding the initial quantity.
// A zero or negative initial quantity creates an empty item.
func (l *Ledger) Create(in NewItem) *Item {
	now := l.now()
	it := &Item{
		ID:              l.ids.NewID(),
		Name:            in.Name,
		Category:        in.Category,
		Unit:            in.Unit,
		QuantityPerPack: cloneDecimal(in.QuantityPerPack),
		TotalQuantity:   cloneDecimal(in.TotalQuantity),
		Notes:           in.Notes,
		Barcode:         in.Barcode,
		CreatedAt:       now,
		UpdatedAt:       now,
		currentQuantity: decimal.Zero,
		batches:         []Batch{},
	}

	if in.Quantity.IsPositive() {
		it.batches = append(it.batches, Batch{
			ID:         l.ids.NewID(),
			Quantity:   in.Quantity,
			ExpiryDate: cloneDate(in.ExpiryDate),
			AddedDate:  now,
		})
		it.currentQuantity = SumQuantity(it.batches)
		it.expiryDate = NearestExpiry(it.batches)
	}

	return it
}

// Restock appends a batch of qty with the given expiry. Existing batches are
// neither reordered nor modified. Untracked bulk stock of a legacy item is
// first recorded as its own batch so the sum invariant holds afterwards.
// A non-positive qty is a no-op.
func (l *Ledger) Restock(it *Item, qty decimal.Decimal, expiry *Date) Update {
	before := it.currentQuantity
	if !qty.IsPositive() {
		return snapshot(it, before)
	}

	now := l.now()
	batches := make([]Batch, 0, len(it.batches)+2)
	batches = append(batches, cloneBatches(it.batches)...)

	if len(batches) == 0 && it.currentQuantity.IsPositive() {
		added := it.CreatedAt
		if added.IsZero() {
			added = now
		}
		batches = append(batches, Batch{
			ID:         l.ids.NewID(),
			Quantity:   it.currentQuantity,
			ExpiryDate: cloneDate(it.expiryDate),
			AddedDate:  added,
		})
	}

	batch := Batch{
		ID:         l.ids.NewID(),
		Quantity:   qty,
		ExpiryDate: cloneDate(expiry),
		AddedDate:  now,
	}
	batches = append(batches, batch)

	it.batches = batches
	it.currentQuantity = SumQuantity(batches)
	it.expiryDate = NearestExpiry(batches)
	it.UpdatedAt = now

	u := snapshot(it, before)
	u.BatchID = batch.ID
	return u
}

// RestockPack restocks one pack
func (l *Ledger) RestockPack(it *Item, expiry *Date) Update {
	return l.Restock(it, it.PackSize(), expiry)
}

// Consume removes qty using first-expiring-first-out order: dated batches
// by ascending expiry, then undated batches oldest first. A batch larger
// than what is left to remove is reduced and the walk stops; otherwise the
// batch is dropped and the remainder carries on. Surviving batches keep
// their insertion order.
//
// Requests beyond the available stock drain every batch and leave the
// quantity at zero. Nothing happens when qty is not positive or the item
// is already empty.
func (l *Ledger) Consume(it *Item, qty decimal.Decimal) Update {
	before := it.currentQuantity
	if !qty.IsPositive() || !before.IsPositive() {
		return snapshot(it, before)
	}

	now := l.now()

	if len(it.batches) == 0 {
		it.currentQuantity = decimal.Max(decimal.Zero, before.Sub(qty))
		if !it.currentQuantity.IsPositive() {
			it.expiryDate = nil
		}
		it.UpdatedAt = now
		return snapshot(it, before)
	}

	batches := cloneBatches(it.batches)
	dropped := make([]bool, len(batches))
	remaining := qty

	for _, i := range depletionOrder(batches) {
		if !remaining.IsPositive() {
			break
		}
		if batches[i].Quantity.GreaterThan(remaining) {
			batches[i].Quantity = batches[i].Quantity.Sub(remaining)
			remaining = decimal.Zero
			break
		}
		remaining = remaining.Sub(batches[i].Quantity)
		dropped[i] = true
	}

	survivors := make([]Batch, 0, len(batches))
	var removed []string
	for i, b := range batches {
		if dropped[i] {
			removed = append(removed, b.ID)
			continue
		}
		survivors = append(survivors, b)
	}

	it.batches = survivors
	it.currentQuantity = SumQuantity(survivors)
	it.expiryDate = NearestExpiry(survivors)
	it.UpdatedAt = now

	u := snapshot(it, before)
	u.Removed = removed
	return u
}

// ConsumePack consumes one pack
func (l *Ledger) ConsumePack(it *Item) Update {
	return l.Consume(it, it.PackSize())
}

// ConsumeBatch takes one pack out of a specific batch, dropping it when the
// pack covers the whole batch. A legacy item has no batch to select, so an
// unknown id decrements its bare quantity instead, floored at zero. On a
// batch-tracked item an unknown id changes nothing.
func (l *Ledger) ConsumeBatch(it *Item, batchID string) Update {
	before := it.currentQuantity
	pack := it.PackSize()

	idx := it.batchIndex(batchID)
	if idx < 0 {
		if len(it.batches) == 0 && before.IsPositive() {
			return l.Consume(it, pack)
		}
		return snapshot(it, before)
	}

	batches := cloneBatches(it.batches)
	var removed []string
	if batches[idx].Quantity.GreaterThan(pack) {
		batches[idx].Quantity = batches[idx].Quantity.Sub(pack)
	} else {
		removed = append(removed, batches[idx].ID)
		batches = append(batches[:idx], batches[idx+1:]...)
	}

	it.batches = batches
	it.currentQuantity = SumQuantity(batches)
	it.expiryDate = NearestExpiry(batches)
	it.UpdatedAt = l.now()

	u := snapshot(it, before)
	u.BatchID = batchID
	u.Removed = removed
	return u
}

// ReplaceBatches installs a manually edited batch list. Entries with a
// non-positive quantity are dropped, missing or duplicate ids are replaced
// with fresh ones and a zero added date becomes now. The current quantity
// is the sum of what remains. When batches remain but none is dated the
// cached expiry follows the ledger's EditExpiryPolicy.
func (l *Ledger) ReplaceBatches(it *Item, replacement []Batch) Update {
	before := it.currentQuantity
	previous := it.expiryDate
	now := l.now()

	seen := make(map[string]struct{}, len(replacement))
	kept := make([]Batch, 0, len(replacement))
	for _, b := range replacement {
		if !b.Quantity.IsPositive() {
			continue
		}
		b = b.clone()
		if _, dup := seen[b.ID]; b.ID == "" || dup {
			b.ID = l.ids.NewID()
		}
		seen[b.ID] = struct{}{}
		if b.AddedDate.IsZero() {
			b.AddedDate = now
		}
		kept = append(kept, b)
	}

	var removed []string
	for _, old := range it.batches {
		if _, ok := seen[old.ID]; !ok {
			removed = append(removed, old.ID)
		}
	}

	expiry := NearestExpiry(kept)
	if expiry == nil && len(kept) > 0 && l.editPolicy == RetainExpiry {
		expiry = cloneDate(previous)
	}

	it.batches = kept
	it.currentQuantity = SumQuantity(kept)
	it.expiryDate = expiry
	it.UpdatedAt = now

	u := snapshot(it, before)
	u.Removed = removed
	return u
}
