package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func sequentialIDs() IDGenerator {
	n := 0
	return IDGeneratorFunc(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	})
}

func newTestLedger(opts ...Option) *Ledger {
	clock := &testClock{t: baseTime}
	base := []Option{WithIDGenerator(sequentialIDs()), WithClock(clock.now)}
	return New(append(base, opts...)...)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(s string) *Date {
	d := MustParseDate(s)
	return &d
}

// itemWith builds a batch-tracked item directly, bypassing Create
func itemWith(unit string, batches ...Batch) *Item {
	it := &Item{ID: "item", Name: "Test", Unit: unit, CreatedAt: baseTime, batches: batches}
	it.currentQuantity = SumQuantity(batches)
	it.expiryDate = NearestExpiry(batches)
	return it
}

func legacyItem(qty string, expiry *Date) *Item {
	return &Item{ID: "legacy", Name: "Rice", Unit: "kg", CreatedAt: baseTime, currentQuantity: dec(qty), expiryDate: expiry}
}

func batch(id, qty string, expiry *Date, added time.Time) Batch {
	return Batch{ID: id, Quantity: dec(qty), ExpiryDate: expiry, AddedDate: added}
}

func assertInvariants(t *testing.T, it *Item) {
	t.Helper()
	for _, b := range it.batches {
		assert.True(t, b.Quantity.IsPositive(), "batch %s has non-positive quantity %s", b.ID, b.Quantity)
	}
	if len(it.batches) > 0 {
		assert.True(t, it.currentQuantity.Equal(SumQuantity(it.batches)),
			"currentQuantity %s != sum %s", it.currentQuantity, SumQuantity(it.batches))
	}
	assert.False(t, it.currentQuantity.IsNegative())
}

func batchIDs(batches []Batch) []string {
	ids := make([]string, len(batches))
	for i, b := range batches {
		ids[i] = b.ID
	}
	return ids
}

func TestCreate(t *testing.T) {
	l := newTestLedger()

	t.Run("seed batch from initial quantity", func(t *testing.T) {
		it := l.Create(NewItem{Name: "Milk", Unit: "l", Quantity: dec("2"), ExpiryDate: date("2025-02-01")})

		require.Len(t, it.Batches(), 1)
		seed := it.Batches()[0]
		assert.True(t, seed.Quantity.Equal(dec("2")))
		assert.Equal(t, "2025-02-01", seed.ExpiryDate.String())
		assert.Equal(t, it.CreatedAt, seed.AddedDate)
		assert.True(t, it.CurrentQuantity().Equal(dec("2")))
		assert.Equal(t, "2025-02-01", it.ExpiryDate().String())
		assert.NotEqual(t, it.ID, seed.ID)
		assertInvariants(t, it)
	})

	t.Run("zero quantity creates an empty item", func(t *testing.T) {
		it := l.Create(NewItem{Name: "Flour", Unit: "kg", Quantity: decimal.Zero, ExpiryDate: date("2025-06-01")})

		assert.Empty(t, it.Batches())
		assert.True(t, it.CurrentQuantity().IsZero())
		assert.Nil(t, it.ExpiryDate())
		assert.False(t, it.IsLegacy())
	})
}

func TestPackSize(t *testing.T) {
	pack := dec("500")
	zero := decimal.Zero

	tests := []struct {
		name    string
		unit    string
		perPack *decimal.Decimal
		want    string
	}{
		{name: "count unit ignores per-pack", unit: "pcs", perPack: &pack, want: "1"},
		{name: "count unit case-insensitive", unit: "Pieces", want: "1"},
		{name: "measured unit uses per-pack", unit: "g", perPack: &pack, want: "500"},
		{name: "measured unit without per-pack", unit: "ml", want: "1"},
		{name: "non-positive per-pack", unit: "g", perPack: &zero, want: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := &Item{Unit: tt.unit, QuantityPerPack: tt.perPack}
			assert.True(t, it.PackSize().Equal(dec(tt.want)), "got %s", it.PackSize())
		})
	}
}

func TestRestock(t *testing.T) {
	t.Run("appends without touching existing batches", func(t *testing.T) {
		l := newTestLedger()
		it := itemWith("pcs",
			batch("a", "2", date("2025-03-01"), baseTime),
			batch("b", "1", nil, baseTime),
		)
		before := it.Batches()

		u := l.Restock(it, dec("3"), date("2025-01-20"))

		after := it.Batches()
		require.Len(t, after, 3)
		assert.Equal(t, before, after[:2])
		assert.Equal(t, u.BatchID, after[2].ID)
		assert.True(t, after[2].Quantity.Equal(dec("3")))
		assert.True(t, u.CurrentQuantity.Equal(dec("6")))
		assert.True(t, u.Delta.Equal(dec("3")))
		assert.Equal(t, "2025-01-20", u.ExpiryDate.String())
		assertInvariants(t, it)
	})

	t.Run("undated restock keeps earlier nearest expiry", func(t *testing.T) {
		l := newTestLedger()
		it := itemWith("pcs", batch("a", "1", date("2025-03-01"), baseTime))

		u := l.Restock(it, dec("1"), nil)

		assert.Equal(t, "2025-03-01", u.ExpiryDate.String())
		assert.Nil(t, u.Batches[1].ExpiryDate)
	})

	t.Run("non-positive quantity is a no-op", func(t *testing.T) {
		l := newTestLedger()
		it := itemWith("pcs", batch("a", "1", nil, baseTime))

		for _, q := range []string{"0", "-2"} {
			u := l.Restock(it, dec(q), date("2025-01-01"))
			assert.False(t, u.Changed())
			assert.Equal(t, []string{"a"}, batchIDs(it.Batches()))
			assert.True(t, it.CurrentQuantity().Equal(dec("1")))
		}
	})

	t.Run("legacy stock is materialized first", func(t *testing.T) {
		l := newTestLedger()
		it := legacyItem("4", date("2025-05-01"))

		u := l.Restock(it, dec("1"), date("2025-04-01"))

		require.Len(t, u.Batches, 2)
		assert.True(t, u.Batches[0].Quantity.Equal(dec("4")))
		assert.Equal(t, "2025-05-01", u.Batches[0].ExpiryDate.String())
		assert.Equal(t, baseTime, u.Batches[0].AddedDate)
		assert.True(t, u.CurrentQuantity.Equal(dec("5")))
		assert.Equal(t, "2025-04-01", u.ExpiryDate.String())
		assertInvariants(t, it)
	})

	t.Run("restock pack uses pack size", func(t *testing.T) {
		l := newTestLedger()
		perPack := dec("250")
		it := itemWith("g", batch("a", "100", nil, baseTime))
		it.QuantityPerPack = &perPack

		u := l.RestockPack(it, nil)
		assert.True(t, u.CurrentQuantity.Equal(dec("350")))
	})

	t.Run("returned batches are not aliased", func(t *testing.T) {
		l := newTestLedger()
		it := itemWith("pcs", batch("a", "1", date("2025-03-01"), baseTime))

		u := l.Restock(it, dec("1"), nil)
		u.Batches[0].Quantity = dec("99")
		u.Batches[0].ExpiryDate.day = 9

		got, ok := it.Batch("a")
		require.True(t, ok)
		assert.True(t, got.Quantity.Equal(dec("1")))
		assert.Equal(t, "2025-03-01", got.ExpiryDate.String())
	})
}

func TestConsume_FIFOOrdering(t *testing.T) {
	l := newTestLedger()
	it := itemWith("pcs",
		batch("march", "5", date("2025-03-01"), baseTime),
		batch("undated", "5", nil, baseTime),
		batch("january", "5", date("2025-01-01"), baseTime),
	)

	u := l.Consume(it, dec("2"))

	got := map[string]string{}
	for _, b := range u.Batches {
		got[b.ID] = b.Quantity.String()
	}
	assert.Equal(t, map[string]string{"march": "5", "undated": "5", "january": "3"}, got)
	assert.Equal(t, []string{"march", "undated", "january"}, batchIDs(u.Batches), "insertion order preserved")
	assert.Empty(t, u.Removed)
	assertInvariants(t, it)
}

func TestConsume_FullDepletion(t *testing.T) {
	l := newTestLedger()
	it := itemWith("pcs",
		batch("a", "2", date("2025-01-01"), baseTime),
		batch("b", "3", date("2025-02-01"), baseTime),
	)

	u := l.Consume(it, dec("4"))

	require.Len(t, u.Batches, 1)
	assert.Equal(t, "b", u.Batches[0].ID)
	assert.True(t, u.Batches[0].Quantity.Equal(dec("1")))
	assert.True(t, u.CurrentQuantity.Equal(dec("1")))
	assert.Equal(t, "2025-02-01", u.ExpiryDate.String())
	assert.Equal(t, []string{"a"}, u.Removed)
	assert.True(t, u.Delta.Equal(dec("-4")))
	assertInvariants(t, it)
}

func TestConsume_ExactBatchIsDropped(t *testing.T) {
	l := newTestLedger()
	it := itemWith("pcs",
		batch("a", "2", date("2025-01-01"), baseTime),
		batch("b", "3", date("2025-02-01"), baseTime),
	)

	u := l.Consume(it, dec("2"))

	assert.Equal(t, []string{"b"}, batchIDs(u.Batches))
	assert.Equal(t, []string{"a"}, u.Removed)
}

func TestConsume_UndatedTieBreak(t *testing.T) {
	l := newTestLedger()
	t1 := baseTime
	t2 := baseTime.Add(time.Hour)
	it := itemWith("pcs",
		batch("newer", "3", nil, t2),
		batch("older", "3", nil, t1),
	)

	u := l.Consume(it, dec("1"))

	older, _ := it.Batch("older")
	newer, _ := it.Batch("newer")
	assert.True(t, older.Quantity.Equal(dec("2")))
	assert.True(t, newer.Quantity.Equal(dec("3")))
	assert.Equal(t, []string{"newer", "older"}, batchIDs(u.Batches))
}

func TestConsume_StableForEqualExpiry(t *testing.T) {
	l := newTestLedger()
	it := itemWith("pcs",
		batch("first", "1", date("2025-01-01"), baseTime),
		batch("second", "1", date("2025-01-01"), baseTime),
	)

	u := l.Consume(it, dec("1"))
	assert.Equal(t, []string{"second"}, batchIDs(u.Batches))
}

func TestConsume_FloorClamp(t *testing.T) {
	l := newTestLedger()
	it := itemWith("pcs",
		batch("a", "1", date("2025-01-01"), baseTime),
		batch("b", "2", nil, baseTime),
	)

	u := l.Consume(it, dec("10"))

	assert.Empty(t, u.Batches)
	assert.True(t, u.CurrentQuantity.IsZero())
	assert.Nil(t, u.ExpiryDate)
	assert.ElementsMatch(t, []string{"a", "b"}, u.Removed)
	assert.True(t, u.Delta.Equal(dec("-3")))
}

func TestConsume_NoOps(t *testing.T) {
	l := newTestLedger()

	t.Run("empty item", func(t *testing.T) {
		it := itemWith("pcs")
		u := l.Consume(it, dec("1"))
		assert.False(t, u.Changed())
		assert.True(t, u.CurrentQuantity.IsZero())
	})

	t.Run("non-positive request", func(t *testing.T) {
		it := itemWith("pcs", batch("a", "2", nil, baseTime))
		for _, q := range []string{"0", "-1"} {
			u := l.Consume(it, dec(q))
			assert.False(t, u.Changed())
			assert.True(t, it.CurrentQuantity().Equal(dec("2")))
		}
	})
}

func TestConsume_ClearsExpiryWhenLastDatedBatchGoes(t *testing.T) {
	l := newTestLedger()
	it := itemWith("pcs",
		batch("dated", "1", date("2025-01-01"), baseTime),
		batch("undated", "4", nil, baseTime),
	)
	require.NotNil(t, it.ExpiryDate())

	u := l.Consume(it, dec("1"))

	assert.Nil(t, u.ExpiryDate)
	assert.Nil(t, it.ExpiryDate())
}

func TestConsume_Legacy(t *testing.T) {
	l := newTestLedger()

	t.Run("decrements bare quantity", func(t *testing.T) {
		it := legacyItem("5", date("2025-05-01"))
		u := l.Consume(it, dec("2"))

		assert.True(t, u.CurrentQuantity.Equal(dec("3")))
		assert.Empty(t, u.Batches)
		assert.Equal(t, "2025-05-01", u.ExpiryDate.String())
	})

	t.Run("floors at zero and clears expiry", func(t *testing.T) {
		it := legacyItem("1", date("2025-05-01"))
		u := l.Consume(it, dec("3"))

		assert.True(t, u.CurrentQuantity.IsZero())
		assert.Nil(t, u.ExpiryDate)
		assert.True(t, u.Delta.Equal(dec("-1")))
	})
}

func TestConsumePack(t *testing.T) {
	l := newTestLedger()
	perPack := dec("0.5")
	it := itemWith("kg", batch("a", "2", nil, baseTime))
	it.QuantityPerPack = &perPack

	u := l.ConsumePack(it)
	assert.True(t, u.CurrentQuantity.Equal(dec("1.5")))
}

func TestConsumeBatch(t *testing.T) {
	t.Run("decrements the chosen batch out of FIFO order", func(t *testing.T) {
		l := newTestLedger()
		it := itemWith("pcs",
			batch("early", "3", date("2025-01-01"), baseTime),
			batch("late", "3", date("2025-06-01"), baseTime),
		)

		u := l.ConsumeBatch(it, "late")

		early, _ := it.Batch("early")
		late, _ := it.Batch("late")
		assert.True(t, early.Quantity.Equal(dec("3")))
		assert.True(t, late.Quantity.Equal(dec("2")))
		assert.True(t, u.CurrentQuantity.Equal(dec("5")))
		assert.Equal(t, "late", u.BatchID)
		assertInvariants(t, it)
	})

	t.Run("drops a batch smaller than one pack", func(t *testing.T) {
		l := newTestLedger()
		perPack := dec("500")
		it := itemWith("g",
			batch("small", "200", date("2025-01-01"), baseTime),
			batch("big", "1000", date("2025-03-01"), baseTime),
		)
		it.QuantityPerPack = &perPack

		u := l.ConsumeBatch(it, "small")

		assert.Equal(t, []string{"big"}, batchIDs(u.Batches))
		assert.Equal(t, []string{"small"}, u.Removed)
		assert.True(t, u.CurrentQuantity.Equal(dec("1000")))
		assert.Equal(t, "2025-03-01", u.ExpiryDate.String())
	})

	t.Run("unknown id on a legacy item decrements bare quantity", func(t *testing.T) {
		l := newTestLedger()
		it := legacyItem("2", nil)
		it.Unit = "pcs"

		u := l.ConsumeBatch(it, "missing")
		assert.True(t, u.CurrentQuantity.Equal(dec("1")))

		u = l.ConsumeBatch(it, "")
		assert.True(t, u.CurrentQuantity.IsZero())

		u = l.ConsumeBatch(it, "")
		assert.True(t, u.CurrentQuantity.IsZero())
		assert.False(t, u.Changed())
	})

	t.Run("unknown id on a tracked item is a no-op", func(t *testing.T) {
		l := newTestLedger()
		it := itemWith("pcs", batch("a", "2", nil, baseTime))

		u := l.ConsumeBatch(it, "missing")
		assert.False(t, u.Changed())
		assert.True(t, it.CurrentQuantity().Equal(dec("2")))
		assertInvariants(t, it)
	})
}

func TestNearestExpiry(t *testing.T) {
	assert.Nil(t, NearestExpiry(nil))
	assert.Nil(t, NearestExpiry([]Batch{batch("a", "1", nil, baseTime)}))

	got := NearestExpiry([]Batch{
		batch("a", "1", date("2025-03-01"), baseTime),
		batch("b", "1", nil, baseTime),
		batch("c", "1", date("2025-01-15"), baseTime),
	})
	require.NotNil(t, got)
	assert.Equal(t, "2025-01-15", got.String())
}

func TestDepletionOrder(t *testing.T) {
	t1 := baseTime
	t2 := baseTime.Add(time.Hour)
	batches := []Batch{
		batch("undated-new", "1", nil, t2),
		batch("march", "1", date("2025-03-01"), t1),
		batch("undated-old", "1", nil, t1),
		batch("jan", "1", date("2025-01-01"), t2),
	}

	assert.Equal(t, []string{"jan", "march", "undated-old", "undated-new"}, batchIDs(DepletionOrder(batches)))
	assert.Equal(t, "undated-new", batches[0].ID, "input untouched")
}

func TestReplaceBatches(t *testing.T) {
	t.Run("sum and nearest expiry follow the replacement", func(t *testing.T) {
		l := newTestLedger()
		it := itemWith("pcs", batch("a", "5", date("2025-01-01"), baseTime))

		u := l.ReplaceBatches(it, []Batch{
			{ID: "a", Quantity: dec("2"), ExpiryDate: date("2025-01-01"), AddedDate: baseTime},
			{Quantity: dec("4"), ExpiryDate: date("2024-12-24")},
			{ID: "zero", Quantity: dec("0")},
			{ID: "neg", Quantity: dec("-1")},
		})

		require.Len(t, u.Batches, 2)
		assert.Equal(t, "a", u.Batches[0].ID)
		assert.NotEmpty(t, u.Batches[1].ID)
		assert.False(t, u.Batches[1].AddedDate.IsZero())
		assert.True(t, u.CurrentQuantity.Equal(dec("6")))
		assert.Equal(t, "2024-12-24", u.ExpiryDate.String())
		assert.Empty(t, u.Removed)
		assertInvariants(t, it)
	})

	t.Run("duplicate ids are reassigned", func(t *testing.T) {
		l := newTestLedger()
		it := itemWith("pcs")

		u := l.ReplaceBatches(it, []Batch{
			{ID: "dup", Quantity: dec("1")},
			{ID: "dup", Quantity: dec("1")},
		})

		require.Len(t, u.Batches, 2)
		assert.NotEqual(t, u.Batches[0].ID, u.Batches[1].ID)
	})

	t.Run("removed batches are reported", func(t *testing.T) {
		l := newTestLedger()
		it := itemWith("pcs",
			batch("a", "1", nil, baseTime),
			batch("b", "1", nil, baseTime),
		)

		u := l.ReplaceBatches(it, []Batch{{ID: "b", Quantity: dec("1"), AddedDate: baseTime}})
		assert.Equal(t, []string{"a"}, u.Removed)
	})

	t.Run("retain policy keeps previous expiry when nothing is dated", func(t *testing.T) {
		l := newTestLedger()
		it := itemWith("pcs", batch("a", "1", date("2025-02-02"), baseTime))

		u := l.ReplaceBatches(it, []Batch{{ID: "a", Quantity: dec("1"), AddedDate: baseTime}})
		assert.Equal(t, "2025-02-02", u.ExpiryDate.String())
	})

	t.Run("clear policy drops expiry when nothing is dated", func(t *testing.T) {
		l := newTestLedger(WithEditExpiryPolicy(ClearExpiry))
		it := itemWith("pcs", batch("a", "1", date("2025-02-02"), baseTime))

		u := l.ReplaceBatches(it, []Batch{{ID: "a", Quantity: dec("1"), AddedDate: baseTime}})
		assert.Nil(t, u.ExpiryDate)
	})

	t.Run("empty replacement empties the item and clears expiry under retain", func(t *testing.T) {
		l := newTestLedger(WithEditExpiryPolicy(RetainExpiry))
		it := itemWith("pcs", batch("a", "3", date("2025-02-02"), baseTime))

		u := l.ReplaceBatches(it, nil)
		assert.Empty(t, u.Batches)
		assert.True(t, u.CurrentQuantity.IsZero())
		assert.Nil(t, u.ExpiryDate)
		assert.Equal(t, []string{"a"}, u.Removed)
	})

	t.Run("replacement on a legacy item starts tracking", func(t *testing.T) {
		l := newTestLedger()
		it := legacyItem("7", nil)

		u := l.ReplaceBatches(it, []Batch{{Quantity: dec("3"), ExpiryDate: date("2025-09-09")}})
		assert.True(t, u.CurrentQuantity.Equal(dec("3")))
		assert.False(t, it.IsLegacy())
		assertInvariants(t, it)
	})

	t.Run("caller slice is not retained", func(t *testing.T) {
		l := newTestLedger()
		it := itemWith("pcs")
		in := []Batch{{ID: "a", Quantity: dec("1"), ExpiryDate: date("2025-01-01")}}

		l.ReplaceBatches(it, in)
		in[0].Quantity = dec("50")
		in[0].ExpiryDate.day = 20

		got, _ := it.Batch("a")
		assert.True(t, got.Quantity.Equal(dec("1")))
		assert.Equal(t, "2025-01-01", got.ExpiryDate.String())
	})
}

func TestSumInvariantAcrossOperations(t *testing.T) {
	l := newTestLedger()
	it := l.Create(NewItem{Name: "Yogurt", Unit: "pcs", Quantity: dec("4"), ExpiryDate: date("2025-01-20")})

	steps := []func(){
		func() { l.Restock(it, dec("2"), date("2025-01-15")) },
		func() { l.Consume(it, dec("3")) },
		func() { l.RestockPack(it, nil) },
		func() { l.ConsumeBatch(it, it.Batches()[0].ID) },
		func() { l.ReplaceBatches(it, append(it.Batches(), Batch{Quantity: dec("1")})) },
		func() { l.Consume(it, dec("100")) },
		func() { l.Restock(it, dec("1"), nil) },
	}

	for i, step := range steps {
		step()
		t.Run(fmt.Sprintf("step %d", i), func(t *testing.T) {
			assertInvariants(t, it)
		})
	}
	assert.True(t, it.CurrentQuantity().Equal(dec("1")))
}

func TestDefaultLedgerUsesUUIDs(t *testing.T) {
	l := New()
	it := l.Create(NewItem{Name: "Tea", Unit: "pcs", Quantity: dec("1")})

	assert.Len(t, it.ID, 36)
	assert.Len(t, it.Batches()[0].ID, 36)
}
