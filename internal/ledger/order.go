package ledger

import "slices"

// NearestExpiry returns the earliest expiry among dated batches, or nil
// when none is dated.
func NearestExpiry(batches []Batch) *Date {
	var nearest *Date
	for _, b := range batches {
		if b.ExpiryDate == nil || b.ExpiryDate.IsZero() {
			continue
		}
		if nearest == nil || b.ExpiryDate.Before(*nearest) {
			nearest = b.ExpiryDate
		}
	}
	return cloneDate(nearest)
}

// compareDepletion orders dated batches by expiry ahead of undated ones,
// and undated batches by when they were added.
func compareDepletion(a, b Batch) int {
	aDated := a.ExpiryDate != nil && !a.ExpiryDate.IsZero()
	bDated := b.ExpiryDate != nil && !b.ExpiryDate.IsZero()

	switch {
	case aDated && bDated:
		return a.ExpiryDate.Compare(*b.ExpiryDate)
	case aDated:
		return -1
	case bDated:
		return 1
	default:
		return a.AddedDate.Compare(b.AddedDate)
	}
}

// depletionOrder returns batch indexes in consumption order. The sort is
// stable so equal keys keep insertion order.
func depletionOrder(batches []Batch) []int {
	order := make([]int, len(batches))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(i, j int) int {
		return compareDepletion(batches[i], batches[j])
	})
	return order
}

// DepletionOrder returns a copy of batches in the order Consume drains them
func DepletionOrder(batches []Batch) []Batch {
	out := make([]Batch, 0, len(batches))
	for _, i := range depletionOrder(batches) {
		out = append(out, batches[i].clone())
	}
	return out
}
