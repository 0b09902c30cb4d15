package ledger

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Batch is one lot of stock with its own expiry
type Batch struct {
	ID         string          `json:"id"`
	Quantity   decimal.Decimal `json:"quantity"`
	ExpiryDate *Date           `json:"expiryDate,omitempty"`
	AddedDate  time.Time       `json:"addedDate"`
}

func (b Batch) clone() Batch {
	b.ExpiryDate = cloneDate(b.ExpiryDate)
	return b
}

func cloneBatches(in []Batch) []Batch {
	out := make([]Batch, len(in))
	for i, b := range in {
		out[i] = b.clone()
	}
	return out
}

// SumQuantity totals the quantity of batches
func SumQuantity(batches []Batch) decimal.Decimal {
	total := decimal.Zero
	for _, b := range batches {
		total = total.Add(b.Quantity)
	}
	return total
}

var countUnits = map[string]struct{}{
	"pcs":    {},
	"pc":     {},
	"piece":  {},
	"pieces": {},
	"count":  {},
	"ea":     {},
	"each":   {},
	"x":      {},
}

// IsCountUnit reports whether unit counts discrete things rather than measuring
func IsCountUnit(unit string) bool {
	_, ok := countUnits[strings.ToLower(strings.TrimSpace(unit))]
	return ok
}

var one = decimal.NewFromInt(1)

// Item is a tracked pantry product.
//
// The stock fields are unexported: currentQuantity, expiryDate and batches
// change only through Ledger operations, so currentQuantity always equals
// the sum of batch quantities once an item has batches. An item with stock
// but no batches is a legacy record and carries a bare quantity.
type Item struct {
	ID              string
	Name            string
	Category        string
	Unit            string
	QuantityPerPack *decimal.Decimal
	TotalQuantity   *decimal.Decimal
	Notes           string
	Barcode         string
	CreatedAt       time.Time
	UpdatedAt       time.Time

	currentQuantity decimal.Decimal
	expiryDate      *Date
	batches         []Batch
}

// CurrentQuantity is the derived stock level
func (it *Item) CurrentQuantity() decimal.Decimal {
	return it.currentQuantity
}

// ExpiryDate is the cached nearest expiry, nil when unknown
func (it *Item) ExpiryDate() *Date {
	return cloneDate(it.expiryDate)
}

// Batches returns a copy of the batch list in insertion order
func (it *Item) Batches() []Batch {
	return cloneBatches(it.batches)
}

func (it *Item) BatchCount() int {
	return len(it.batches)
}

// IsLegacy reports whether the item holds untracked bulk stock
func (it *Item) IsLegacy() bool {
	return len(it.batches) == 0 && it.currentQuantity.IsPositive()
}

// Batch looks up a batch by id
func (it *Item) Batch(id string) (Batch, bool) {
	i := it.batchIndex(id)
	if i < 0 {
		return Batch{}, false
	}
	return it.batches[i].clone(), true
}

func (it *Item) batchIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(it.batches, func(b Batch) bool { return b.ID == id })
}

// PackSize is the amount one restock or consume tap represents: 1 for
// count-based units, else the per-pack quantity (1 when unset).
func (it *Item) PackSize() decimal.Decimal {
	if IsCountUnit(it.Unit) {
		return one
	}
	if it.QuantityPerPack != nil && it.QuantityPerPack.IsPositive() {
		return *it.QuantityPerPack
	}
	return one
}

// Clone returns a deep copy that shares no memory with it
func (it *Item) Clone() *Item {
	c := *it
	c.QuantityPerPack = cloneDecimal(it.QuantityPerPack)
	c.TotalQuantity = cloneDecimal(it.TotalQuantity)
	c.expiryDate = cloneDate(it.expiryDate)
	c.batches = cloneBatches(it.batches)
	return &c
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// normalize drops non-positive batches and re-derives currentQuantity from
// whatever batches remain. When batches were dropped the cached expiry is
// re-derived too, unless no surviving batch carries a date.
func (it *Item) normalize() {
	kept := make([]Batch, 0, len(it.batches))
	for _, b := range it.batches {
		if !b.Quantity.IsPositive() {
			continue
		}
		kept = append(kept, b.clone())
	}
	dropped := len(kept) < len(it.batches)
	it.batches = kept

	if len(kept) > 0 {
		it.currentQuantity = SumQuantity(kept)
	}
	if it.currentQuantity.IsNegative() {
		it.currentQuantity = decimal.Zero
	}

	it.expiryDate = cloneDate(it.expiryDate)
	if dropped && len(kept) > 0 {
		if nearest := NearestExpiry(kept); nearest != nil {
			it.expiryDate = nearest
		}
	}
}

// itemRecord is the persisted shape of an Item
type itemRecord struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Category        string           `json:"category,omitempty"`
	Unit            string           `json:"unit"`
	QuantityPerPack *decimal.Decimal `json:"quantityPerPack,omitempty"`
	TotalQuantity   *decimal.Decimal `json:"totalQuantity,omitempty"`
	CurrentQuantity decimal.Decimal  `json:"currentQuantity"`
	ExpiryDate      *Date            `json:"expiryDate,omitempty"`
	Batches         []Batch          `json:"batches"`
	Notes           string           `json:"notes,omitempty"`
	Barcode         string           `json:"barcode,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

func (it *Item) MarshalJSON() ([]byte, error) {
	batches := it.batches
	if batches == nil {
		batches = []Batch{}
	}
	return json.Marshal(itemRecord{
		ID:              it.ID,
		Name:            it.Name,
		Category:        it.Category,
		Unit:            it.Unit,
		QuantityPerPack: it.QuantityPerPack,
		TotalQuantity:   it.TotalQuantity,
		CurrentQuantity: it.currentQuantity,
		ExpiryDate:      cloneDate(it.expiryDate),
		Batches:         batches,
		Notes:           it.Notes,
		Barcode:         it.Barcode,
		CreatedAt:       it.CreatedAt,
		UpdatedAt:       it.UpdatedAt,
	})
}

// UnmarshalJSON restores a persisted item and normalizes its stock.
// Records without a batches field load as legacy items.
func (it *Item) UnmarshalJSON(data []byte) error {
	var rec itemRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	*it = Item{
		ID:              rec.ID,
		Name:            rec.Name,
		Category:        rec.Category,
		Unit:            rec.Unit,
		QuantityPerPack: rec.QuantityPerPack,
		TotalQuantity:   rec.TotalQuantity,
		Notes:           rec.Notes,
		Barcode:         rec.Barcode,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
		currentQuantity: rec.CurrentQuantity,
		expiryDate:      rec.ExpiryDate,
		batches:         rec.Batches,
	}
	it.normalize()
	return nil
}

// Collection is every item keyed by id. It is the unit of persistence.
type Collection map[string]*Item

// Clone deep-copies the collection
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for id, it := range c {
		out[id] = it.Clone()
	}
	return out
}

// Items returns the items ordered by creation time, then id
func (c Collection) Items() []*Item {
	items := make([]*Item, 0, len(c))
	for _, it := range c {
		items = append(items, it)
	}
	slices.SortFunc(items, func(a, b *Item) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return items
}

// UnmarshalJSON rekeys records by their own id, dropping null entries
func (c *Collection) UnmarshalJSON(data []byte) error {
	var raw map[string]*Item
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Collection, len(raw))
	for key, it := range raw {
		if it == nil {
			continue
		}
		if it.ID == "" {
			it.ID = key
		}
		out[it.ID] = it
	}
	*c = out
	return nil
}
