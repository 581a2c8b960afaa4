package storage

import (
	"fmt"
	"strings"
)

func identityKey(storeURL, handle, planID string) string {
	if storeURL == "" || handle == "" || planID == "" {
		return ""
	}
	return storeURL + "|" + handle + "|" + planID
}

// diff lists the fields that differ between a stored and a fresh entry.
func diff(old, cur Entry) string {
	var parts []string
	if old.Name != cur.Name {
		parts = append(parts, fmt.Sprintf("name %q -> %q", old.Name, cur.Name))
	}
	if old.Description != cur.Description {
		parts = append(parts, "description")
	}
	if old.Interval != cur.Interval || old.IntervalCount != cur.IntervalCount {
		parts = append(parts, fmt.Sprintf("interval %d %s -> %d %s", old.IntervalCount, old.Interval, cur.IntervalCount, cur.Interval))
	}
	if old.AdjustmentKind != cur.AdjustmentKind || old.AdjustmentValue != cur.AdjustmentValue {
		parts = append(parts, fmt.Sprintf("adjustment %s %s -> %s %s", old.AdjustmentKind, old.AdjustmentValue, cur.AdjustmentKind, cur.AdjustmentValue))
	}
	if old.BasePrice != cur.BasePrice || old.DiscountedPrice != cur.DiscountedPrice {
		parts = append(parts, fmt.Sprintf("price %d/%d -> %d/%d", old.BasePrice, old.DiscountedPrice, cur.BasePrice, cur.DiscountedPrice))
	}
	if old.Quantity != cur.Quantity {
		parts = append(parts, fmt.Sprintf("quantity %d -> %d", old.Quantity, cur.Quantity))
	}
	return strings.Join(parts, "; ")
}
