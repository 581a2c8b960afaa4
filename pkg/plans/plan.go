package plans

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Interval is the billing unit of a selling plan.
type Interval string

const (
	Day   Interval = "DAY"
	Week  Interval = "WEEK"
	Month Interval = "MONTH"
	Year  Interval = "YEAR"
)

var ErrUnknownInterval = errors.New("unknown billing interval")

// ParseInterval upper-cases s and accepts plural forms ("months", "Weeks").
func ParseInterval(s string) (Interval, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	u = strings.TrimSuffix(u, "S")
	switch Interval(u) {
	case Day, Week, Month, Year:
		return Interval(u), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownInterval, s)
}

// AdjustmentKind tells which pricing adjustment variant is active.
type AdjustmentKind int

const (
	AdjustNone AdjustmentKind = iota
	AdjustPercentage
	AdjustFixedAmount
)

func (k AdjustmentKind) String() string {
	switch k {
	case AdjustPercentage:
		return "percentage"
	case AdjustFixedAmount:
		return "fixed_amount"
	default:
		return "none"
	}
}

// Adjustment is the single honoured price adjustment of a plan. Value is a
// percentage (0..100) for AdjustPercentage and major currency units for
// AdjustFixedAmount; it is zero for AdjustNone.
type Adjustment struct {
	Kind  AdjustmentKind
	Value decimal.Decimal
}

func NoAdjustment() Adjustment { return Adjustment{Kind: AdjustNone} }

func Percentage(p decimal.Decimal) Adjustment {
	return Adjustment{Kind: AdjustPercentage, Value: p}
}

func FixedAmount(major decimal.Decimal) Adjustment {
	return Adjustment{Kind: AdjustFixedAmount, Value: major}
}

func (a Adjustment) Equal(b Adjustment) bool {
	return a.Kind == b.Kind && a.Value.Equal(b.Value)
}

// Validate reports whether the adjustment value is within its kind's range.
func (a Adjustment) Validate() error {
	switch a.Kind {
	case AdjustNone:
		return nil
	case AdjustPercentage:
		if a.Value.IsNegative() || a.Value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("percentage %s outside 0..100", a.Value)
		}
	case AdjustFixedAmount:
		if a.Value.IsNegative() {
			return fmt.Errorf("fixed amount %s is negative", a.Value)
		}
	default:
		return fmt.Errorf("unknown adjustment kind %d", a.Kind)
	}
	return nil
}

// SubscriptionPlan is the canonical selling plan every source normalizes into.
type SubscriptionPlan struct {
	ID            string
	GlobalID      string
	Name          string
	Description   string
	Interval      Interval
	IntervalCount int
	Adjustment    Adjustment
	ProductID     string
	VariantID     string
	// BasePrice is the reference variant price in minor units at normalization time.
	BasePrice int64
}

func (p SubscriptionPlan) Validate() error {
	if p.ID == "" {
		return errors.New("missing plan id")
	}
	if _, err := ParseInterval(string(p.Interval)); err != nil {
		return err
	}
	if p.IntervalCount < 1 {
		return fmt.Errorf("interval count %d < 1", p.IntervalCount)
	}
	if p.BasePrice < 0 {
		return fmt.Errorf("base price %d < 0", p.BasePrice)
	}
	return p.Adjustment.Validate()
}

// Equal compares plans field by field; decimals are compared by value.
func (p SubscriptionPlan) Equal(o SubscriptionPlan) bool {
	a, b := p, o
	a.Adjustment, b.Adjustment = Adjustment{}, Adjustment{}
	return a == b && p.Adjustment.Equal(o.Adjustment)
}

// GlobalIDFor builds the fully-qualified selling plan id.
func GlobalIDFor(id string) string {
	return "gid://shopify/SellingPlan/" + id
}

// ProductGlobalID builds the fully-qualified product id used by the storefront API.
func ProductGlobalID(id string) string {
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return "gid://shopify/Product/" + id
}

// LocalID strips the "gid://shopify/<Type>/" prefix, if any.
func LocalID(gid string) string {
	return gid[strings.LastIndex(gid, "/")+1:]
}

// SortByInterval returns a copy sorted ascending by IntervalCount; plans with
// equal counts keep their input order.
func SortByInterval(list []SubscriptionPlan) []SubscriptionPlan {
	out := append([]SubscriptionPlan(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IntervalCount < out[j].IntervalCount
	})
	return out
}

// Find returns the plan with the given id.
func Find(list []SubscriptionPlan, id string) (SubscriptionPlan, bool) {
	for _, p := range list {
		if p.ID == id {
			return p, true
		}
	}
	return SubscriptionPlan{}, false
}
