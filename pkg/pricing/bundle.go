package pricing

import (
	"strings"

	"github.com/loopwidget/planscope/pkg/plans"
)

// MultiUnitQuantity is the quantity a bundle plan ships per billing cycle.
const MultiUnitQuantity = 3

// BundlePolicy decides how many units a plan ships per cycle. Explicit
// per-plan quantities win, then the structural rule (MONTH with count >= 3),
// then, if enabled, the name/description heuristic.
type BundlePolicy struct {
	Quantities map[string]int
	Heuristic  bool
}

func DefaultBundlePolicy() BundlePolicy {
	return BundlePolicy{Heuristic: true}
}

// QuantityFor returns the implied quantity for p; always >= 1.
func (b BundlePolicy) QuantityFor(p plans.SubscriptionPlan) int {
	if q, ok := b.Quantities[p.ID]; ok && q >= 1 {
		return q
	}
	if IsStructuralBundle(p) {
		return MultiUnitQuantity
	}
	if b.Heuristic && LooksLikeBundle(p) {
		return MultiUnitQuantity
	}
	return 1
}

// IsStructuralBundle reports a monthly plan billed every three months or more.
func IsStructuralBundle(p plans.SubscriptionPlan) bool {
	return p.Interval == plans.Month && p.IntervalCount >= 3
}

// LooksLikeBundle is the text fallback for sources without bundle metadata:
// a name mentioning "3" or "90", or a description mentioning "3 unit".
func LooksLikeBundle(p plans.SubscriptionPlan) bool {
	name := strings.ToLower(p.Name)
	desc := strings.ToLower(p.Description)
	return strings.Contains(name, "3") || strings.Contains(name, "90") || strings.Contains(desc, "3 unit")
}
