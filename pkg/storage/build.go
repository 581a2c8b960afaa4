package storage

import (
	"errors"

	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/loopwidget/planscope/pkg/pricing"
)

// BuildEntries prices list with engine and turns it into storable entries.
func BuildEntries(storeURL, handle string, list []plans.SubscriptionPlan, engine *pricing.Engine) ([]Entry, error) {
	if storeURL == "" || handle == "" {
		return nil, errors.New("invalid product identifiers")
	}
	store := NormalizeStoreURL(storeURL)
	out := make([]Entry, 0, len(list))
	for _, p := range list {
		q := engine.Quote(p)
		out = append(out, Entry{
			StoreURL:        store,
			Handle:          handle,
			ProductID:       p.ProductID,
			PlanID:          p.ID,
			Name:            p.Name,
			Description:     p.Description,
			Interval:        string(p.Interval),
			IntervalCount:   p.IntervalCount,
			AdjustmentKind:  p.Adjustment.Kind.String(),
			AdjustmentValue: p.Adjustment.Value.String(),
			BasePrice:       q.BasePrice,
			DiscountedPrice: q.DiscountedPrice,
			SavingsPercent:  q.SavingsPercent,
			Quantity:        q.Quantity,
		})
	}
	return out, nil
}
