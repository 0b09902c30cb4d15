package service

import (
	"encoding/json"
	"fmt"

	"github.com/larder/larder-backend/internal/ledger"
	"github.com/shopspring/decimal"
)

// Stock status values
const (
	StatusInStock    = "in_stock"
	StatusLow        = "low"
	StatusOutOfStock = "out_of_stock"
)

// Expiry status values. An item without an expiry has no expiry status.
const (
	ExpiryOK       = "ok"
	ExpiryExpiring = "expiring"
	ExpiryExpired  = "expired"
)

// lowStockPercent is the share of totalQuantity below which stock is low
var lowStockPercent = decimal.NewFromInt(25)

var hundred = decimal.NewFromInt(100)

// ItemView is an item plus the fields derived from it for display
type ItemView struct {
	Item             *ledger.Item
	Status           string
	ExpiryStatus     string
	DaysUntilExpiry  *int
	PercentRemaining *decimal.Decimal
}

func newItemView(it *ledger.Item, today ledger.Date, warnDays int) *ItemView {
	v := &ItemView{Item: it}

	if expiry := it.ExpiryDate(); expiry != nil {
		days := expiry.DaysSince(today)
		v.DaysUntilExpiry = &days
		switch {
		case days < 0:
			v.ExpiryStatus = ExpiryExpired
		case days <= warnDays:
			v.ExpiryStatus = ExpiryExpiring
		default:
			v.ExpiryStatus = ExpiryOK
		}
	}

	qty := it.CurrentQuantity()
	if it.TotalQuantity != nil && it.TotalQuantity.IsPositive() {
		pct := qty.Mul(hundred).Div(*it.TotalQuantity).Round(1)
		v.PercentRemaining = &pct
	}

	switch {
	case !qty.IsPositive():
		v.Status = StatusOutOfStock
	case v.PercentRemaining != nil && v.PercentRemaining.LessThan(lowStockPercent):
		v.Status = StatusLow
	default:
		v.Status = StatusInStock
	}

	return v
}

type itemViewExtra struct {
	Status           string           `json:"status"`
	ExpiryStatus     string           `json:"expiryStatus,omitempty"`
	DaysUntilExpiry  *int             `json:"daysUntilExpiry,omitempty"`
	PercentRemaining *decimal.Decimal `json:"percentRemaining,omitempty"`
}

// MarshalJSON renders the item record with the derived fields appended
func (v *ItemView) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(v.Item)
	if err != nil {
		return nil, err
	}
	extra, err := json.Marshal(itemViewExtra{
		Status:           v.Status,
		ExpiryStatus:     v.ExpiryStatus,
		DaysUntilExpiry:  v.DaysUntilExpiry,
		PercentRemaining: v.PercentRemaining,
	})
	if err != nil {
		return nil, err
	}
	if len(base) < 2 || base[len(base)-1] != '}' {
		return nil, fmt.Errorf("unexpected item encoding for %s", v.Item.ID)
	}

	out := make([]byte, 0, len(base)+len(extra))
	out = append(out, base[:len(base)-1]...)
	out = append(out, ',')
	out = append(out, extra[1:]...)
	return out, nil
}
