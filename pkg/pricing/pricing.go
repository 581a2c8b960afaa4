// Package pricing turns a canonical plan into display values: discounted
// price, savings percentage and the quantity a plan implies.
package pricing

import (
	"github.com/loopwidget/planscope/pkg/logging"
	"github.com/loopwidget/planscope/pkg/money"
	"github.com/loopwidget/planscope/pkg/plans"
)

// Quote holds the computed prices of one plan, all in minor units.
type Quote struct {
	PlanID          string `json:"plan_id" yaml:"plan_id"`
	BasePrice       int64  `json:"base_price" yaml:"base_price"`
	DiscountedPrice int64  `json:"discounted_price" yaml:"discounted_price"`
	SavingsPercent  int    `json:"savings_percent" yaml:"savings_percent"`
	Quantity        int    `json:"quantity" yaml:"quantity"`
	// UnitDisplayPrice is the discounted price of one unit.
	UnitDisplayPrice int64 `json:"unit_display_price" yaml:"unit_display_price"`
	// TotalBilledPrice is what one billing cycle charges: unit price * quantity.
	TotalBilledPrice int64 `json:"total_billed_price" yaml:"total_billed_price"`
	// AdjustmentRejected is set when the plan's adjustment was out of range and
	// the plan is priced at base.
	AdjustmentRejected bool `json:"adjustment_rejected,omitempty" yaml:"adjustment_rejected,omitempty"`
}

type Engine struct {
	Bundles BundlePolicy
	Log     logging.Logger
}

func NewEngine(bundles BundlePolicy, log logging.Logger) *Engine {
	return &Engine{Bundles: bundles, Log: logging.OrNop(log)}
}

// Quote prices p against its BasePrice.
func (e *Engine) Quote(p plans.SubscriptionPlan) Quote {
	base := p.BasePrice
	if base < 0 {
		base = 0
	}
	q := Quote{
		PlanID:          p.ID,
		BasePrice:       base,
		DiscountedPrice: base,
		Quantity:        e.Bundles.QuantityFor(p),
	}

	if err := p.Adjustment.Validate(); err != nil {
		logging.OrNop(e.Log).Warnf("plan %s: rejecting adjustment: %v", p.ID, err)
		q.AdjustmentRejected = true
	} else {
		switch p.Adjustment.Kind {
		case plans.AdjustPercentage:
			q.DiscountedPrice = money.ApplyPercentageDiscount(base, p.Adjustment.Value)
			q.SavingsPercent = int(p.Adjustment.Value.Round(0).IntPart())
		case plans.AdjustFixedAmount:
			q.DiscountedPrice = money.ApplyFixedDiscount(base, p.Adjustment.Value)
			q.SavingsPercent = money.SavingsPercent(base, q.DiscountedPrice)
		}
	}

	q.UnitDisplayPrice = q.DiscountedPrice
	q.TotalBilledPrice = q.DiscountedPrice * int64(q.Quantity)
	return q
}

// QuoteAll prices every plan, keeping order.
func (e *Engine) QuoteAll(list []plans.SubscriptionPlan) []Quote {
	out := make([]Quote, 0, len(list))
	for _, p := range list {
		out = append(out, e.Quote(p))
	}
	return out
}
