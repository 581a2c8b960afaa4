// Package intent keeps the purchase intent of one widget: one-time or
// subscription, which plan, which product/variant and how many units.
package intent

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/loopwidget/planscope/pkg/pricing"
)

var (
	ErrNotSubscription = errors.New("plan selection requires subscription mode")
	ErrUnknownPlan     = errors.New("plan not in the current plan list")
)

type Mode int

const (
	OneTime Mode = iota
	Subscription
)

func (m Mode) String() string {
	if m == Subscription {
		return "SUBSCRIPTION"
	}
	return "ONE_TIME"
}

// ParseMode accepts "one_time", "onetime", "subscription" and "subscribe" in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")) {
	case "one_time", "onetime":
		return OneTime, nil
	case "subscription", "subscribe":
		return Subscription, nil
	}
	return OneTime, fmt.Errorf("unknown purchase mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// FormValues are the fields a purchase form submits.
type FormValues struct {
	ProductID     string `json:"product_id" yaml:"product_id"`
	VariantID     string `json:"variant_id" yaml:"variant_id"`
	SellingPlanID string `json:"selling_plan_id" yaml:"selling_plan_id"`
	Quantity      int    `json:"quantity" yaml:"quantity"`
}

// State is a copy of the intent for presentation.
type State struct {
	Mode             Mode   `json:"mode"`
	SelectedPlanID   string `json:"selected_plan_id,omitempty"`
	ActiveProductID  string `json:"active_product_id"`
	ActiveVariantID  string `json:"active_variant_id"`
	TrackedVariantID string `json:"tracked_variant_id"`
	Quantity         int    `json:"quantity"`
}

// Intent is safe for concurrent use.
type Intent struct {
	mu sync.Mutex

	engine *pricing.Engine

	mode           Mode
	primaryProduct string
	trackedVariant string
	activeProduct  string
	activeVariant  string
	selectedPlanID string
	quantity       int

	plans        []plans.SubscriptionPlan
	oneTimePrice int64
	hasOneTime   bool
}

// New starts an intent for the widget's declared product and variant.
func New(productID, variantID string, mode Mode, engine *pricing.Engine) *Intent {
	if engine == nil {
		engine = pricing.NewEngine(pricing.DefaultBundlePolicy(), nil)
	}
	return &Intent{
		engine:         engine,
		mode:           mode,
		primaryProduct: productID,
		trackedVariant: variantID,
		activeProduct:  productID,
		activeVariant:  variantID,
		quantity:       1,
	}
}

func (in *Intent) State() State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return State{
		Mode:             in.mode,
		SelectedPlanID:   in.selectedPlanID,
		ActiveProductID:  in.activeProduct,
		ActiveVariantID:  in.activeVariant,
		TrackedVariantID: in.trackedVariant,
		Quantity:         in.quantity,
	}
}

// SwitchMode changes the purchase mode. ONE_TIME always clears the plan and
// resets quantity and ids; SUBSCRIPTION selects the default plan when none is
// selected yet.
func (in *Intent) SwitchMode(m Mode) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.mode = m
	if m == OneTime {
		in.clearSelection()
		return
	}
	if _, ok := plans.Find(in.plans, in.selectedPlanID); !ok && len(in.plans) > 0 {
		in.selectLocked(in.plans[0])
	}
}

// SelectPlan selects the plan with id from the current list.
func (in *Intent) SelectPlan(id string) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.mode != Subscription {
		return ErrNotSubscription
	}
	p, ok := plans.Find(in.plans, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlan, id)
	}
	in.selectLocked(p)
	return nil
}

// SetPlans installs a freshly resolved list and re-derives the selection:
// the same plan when it is still listed, otherwise the default plan in
// SUBSCRIPTION mode, otherwise nothing.
func (in *Intent) SetPlans(list []plans.SubscriptionPlan) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.plans = list

	if in.mode != Subscription {
		in.clearSelection()
		return
	}
	if p, ok := plans.Find(list, in.selectedPlanID); ok {
		in.selectLocked(p)
		return
	}
	if len(list) > 0 {
		in.selectLocked(list[0])
		return
	}
	in.clearSelection()
}

// TrackVariant records a new page variant. It reports false when id is the
// variant already tracked, in which case nothing changes. The one-time price
// belonged to the previous variant and is forgotten until supplied again.
func (in *Intent) TrackVariant(id string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if id == "" || id == in.trackedVariant {
		return false
	}
	in.trackedVariant = id
	in.oneTimePrice, in.hasOneTime = 0, false
	if in.selectedPlanID == "" {
		in.activeVariant = id
	}
	return true
}

// TrackedVariant returns the variant the page currently shows.
func (in *Intent) TrackedVariant() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.trackedVariant
}

// OneTimePrice reports the one-time price of the tracked variant, if known.
func (in *Intent) OneTimePrice() (int64, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.oneTimePrice, in.hasOneTime
}

// SetOneTimePrice supplies the one-time price of the active variant in minor units.
func (in *Intent) SetOneTimePrice(minor int64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.oneTimePrice = minor
	in.hasOneTime = true
}

// DisplayPrice derives the price to show from the current state. ok is false
// when there is nothing to show: no one-time price known, or subscription mode
// without a plan.
func (in *Intent) DisplayPrice() (minor int64, ok bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.mode == OneTime {
		return in.oneTimePrice, in.hasOneTime
	}
	p, found := plans.Find(in.plans, in.selectedPlanID)
	if !found {
		return 0, false
	}
	return in.engine.Quote(p).DiscountedPrice, true
}

// FormValues returns what a purchase form should submit now. SellingPlanID is
// empty for one-time purchases.
func (in *Intent) FormValues() FormValues {
	in.mu.Lock()
	defer in.mu.Unlock()
	return FormValues{
		ProductID:     in.activeProduct,
		VariantID:     in.activeVariant,
		SellingPlanID: in.selectedPlanID,
		Quantity:      in.quantity,
	}
}

func (in *Intent) selectLocked(p plans.SubscriptionPlan) {
	in.selectedPlanID = p.ID
	in.activeProduct = in.primaryProduct
	if p.ProductID != "" {
		in.activeProduct = p.ProductID
	}
	in.activeVariant = in.trackedVariant
	if p.VariantID != "" {
		in.activeVariant = p.VariantID
	}
	in.quantity = in.engine.Bundles.QuantityFor(p)
}

func (in *Intent) clearSelection() {
	in.selectedPlanID = ""
	in.quantity = 1
	in.activeProduct = in.primaryProduct
	in.activeVariant = in.trackedVariant
}
