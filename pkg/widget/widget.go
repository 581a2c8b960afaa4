// Package widget binds a resolver, a pricing engine, a purchase intent and a
// variant-change bus into one product-page subscription widget.
package widget

import (
	"context"
	"errors"
	"sync"

	"github.com/loopwidget/planscope/pkg/events"
	"github.com/loopwidget/planscope/pkg/intent"
	"github.com/loopwidget/planscope/pkg/logging"
	"github.com/loopwidget/planscope/pkg/money"
	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/loopwidget/planscope/pkg/pricing"
	"github.com/loopwidget/planscope/pkg/resolver"
	"github.com/loopwidget/planscope/pkg/sources"
)

type Config struct {
	// SectionID filters variant-change events to this widget's page section.
	SectionID string
	Product   sources.ProductRef
	Mode      intent.Mode
	// OneTimePrice is the variant's one-time price in minor units; zero or
	// negative means unknown.
	OneTimePrice int64
	Formatter    money.Formatter
}

type Widget struct {
	cfg      Config
	bus      events.Bus
	resolver *resolver.Resolver
	engine   *pricing.Engine
	intent   *intent.Intent
	log      logging.Logger

	mu          sync.Mutex
	ref         sources.ProductRef
	active      bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup

	applyMu sync.Mutex
	applied resolver.Snapshot
}

func New(cfg Config, bus events.Bus, res *resolver.Resolver, engine *pricing.Engine, log logging.Logger) *Widget {
	if engine == nil {
		engine = pricing.NewEngine(pricing.DefaultBundlePolicy(), log)
	}
	in := intent.New(cfg.Product.ProductID, cfg.Product.VariantID, cfg.Mode, engine)
	if cfg.OneTimePrice > 0 {
		in.SetOneTimePrice(cfg.OneTimePrice)
	}
	return &Widget{
		cfg:      cfg,
		bus:      bus,
		resolver: res,
		engine:   engine,
		intent:   in,
		log:      logging.OrNop(log),
		ref:      cfg.Product,
	}
}

// Intent exposes the purchase intent for mode and plan selection.
func (w *Widget) Intent() *intent.Intent { return w.intent }

// Activate subscribes to variant changes and runs the first resolution.
// Activating an active widget only refreshes it.
func (w *Widget) Activate(ctx context.Context) error {
	w.mu.Lock()
	if !w.active {
		w.ctx, w.cancel = context.WithCancel(ctx)
		if w.bus != nil {
			w.unsubscribe = w.bus.SubscribeVariantChange(w.handleVariantChange)
		}
		w.active = true
	}
	runCtx := w.ctx
	w.mu.Unlock()

	return w.Refresh(runCtx)
}

// Deactivate unsubscribes, cancels resolutions in flight and waits for event
// handlers to return. It is safe to call more than once.
func (w *Widget) Deactivate() {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return
	}
	w.active = false
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
	w.cancel()
	w.mu.Unlock()

	w.resolver.Cancel()
	w.wg.Wait()
}

func (w *Widget) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

func (w *Widget) handleVariantChange(ev events.VariantChange) {
	if ev.SectionID != w.cfg.SectionID {
		return
	}
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return
	}
	ctx := w.ctx
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		if err := w.changeVariant(ctx, ev.VariantID, ev.Price); err != nil && !errors.Is(err, resolver.ErrStaleResolution) {
			w.log.Warnf("section %s: variant change to %s: %v", ev.SectionID, ev.VariantID, err)
		}
	}()
}

// OnVariantChanged re-resolves plans for a new variant. The same variant is a
// no-op.
func (w *Widget) OnVariantChanged(ctx context.Context, variantID string) error {
	return w.changeVariant(ctx, variantID, 0)
}

func (w *Widget) changeVariant(ctx context.Context, variantID string, price int64) error {
	if !w.intent.TrackVariant(variantID) {
		return nil
	}
	if price > 0 {
		w.intent.SetOneTimePrice(price)
	}
	w.mu.Lock()
	w.ref.VariantID = variantID
	w.mu.Unlock()
	return w.Refresh(ctx)
}

// Refresh runs a resolution for the current product reference and re-derives
// the intent from its result. A superseded resolution returns
// resolver.ErrStaleResolution and changes nothing.
func (w *Widget) Refresh(ctx context.Context) error {
	w.mu.Lock()
	ref := w.ref
	w.mu.Unlock()

	snap, err := w.resolver.Resolve(ctx, ref)
	if err != nil {
		return err
	}

	w.applyMu.Lock()
	defer w.applyMu.Unlock()
	if snap.Generation < w.applied.Generation {
		return resolver.ErrStaleResolution
	}
	w.applied = snap
	w.intent.SetPlans(snap.Plans)
	w.deriveOneTimePrice(snap.Plans)
	if !snap.Available() {
		w.log.Infof("section %s: no subscriptions available (%s)", w.cfg.SectionID, snap.State)
	}
	return nil
}

// PlanView is one plan as the presentation layer shows it.
type PlanView struct {
	Plan          plans.SubscriptionPlan `json:"-" yaml:"-"`
	ID            string                 `json:"id" yaml:"id"`
	Name          string                 `json:"name" yaml:"name"`
	Description   string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Quote         pricing.Quote          `json:"quote" yaml:"quote"`
	Price         string                 `json:"price" yaml:"price"`
	BasePrice     string                 `json:"base_price" yaml:"base_price"`
	TotalPrice    string                 `json:"total_price" yaml:"total_price"`
	FrequencyText string                 `json:"frequency_text" yaml:"frequency_text"`
	BillingText   string                 `json:"billing_text" yaml:"billing_text"`
	Selected      bool                   `json:"selected" yaml:"selected"`
}

// View is a consistent snapshot of everything a renderer needs.
type View struct {
	Status       string            `json:"status" yaml:"status"`
	Available    bool              `json:"available" yaml:"available"`
	Plans        []PlanView        `json:"plans" yaml:"plans"`
	Intent       intent.State      `json:"intent" yaml:"intent"`
	DisplayPrice string            `json:"display_price,omitempty" yaml:"display_price,omitempty"`
	Form         intent.FormValues `json:"form" yaml:"form"`
}

// State renders the current snapshot. While a resolution is in flight Status
// is LOADING and the previously applied plans are not shown.
func (w *Widget) State() View {
	w.applyMu.Lock()
	snap := w.applied
	w.applyMu.Unlock()

	status := snap.State
	if cur := w.resolver.Current(); cur.State == resolver.Loading && cur.Generation > snap.Generation {
		status = resolver.Loading
	}

	st := w.intent.State()
	v := View{
		Status:    status.String(),
		Available: status != resolver.Loading && snap.Available(),
		Intent:    st,
		Form:      w.intent.FormValues(),
		Plans:     []PlanView{},
	}
	if price, ok := w.intent.DisplayPrice(); ok {
		v.DisplayPrice = w.cfg.Formatter.Format(price)
	}
	if !v.Available {
		return v
	}

	for _, p := range snap.Plans {
		q := w.engine.Quote(p)
		v.Plans = append(v.Plans, PlanView{
			Plan:          p,
			ID:            p.ID,
			Name:          p.Name,
			Description:   p.Description,
			Quote:         q,
			Price:         w.cfg.Formatter.Format(q.UnitDisplayPrice),
			BasePrice:     w.cfg.Formatter.Format(q.BasePrice),
			TotalPrice:    w.cfg.Formatter.Format(q.TotalBilledPrice),
			FrequencyText: plans.FrequencyText(p, q.Quantity),
			BillingText:   plans.BillingText(p, w.cfg.Formatter.Format(q.TotalBilledPrice)),
			Selected:      p.ID == st.SelectedPlanID,
		})
	}
	return v
}

// deriveOneTimePrice fills a missing one-time price from the base price the
// plans report for the tracked variant.
func (w *Widget) deriveOneTimePrice(list []plans.SubscriptionPlan) {
	if _, ok := w.intent.OneTimePrice(); ok {
		return
	}
	variant := w.intent.TrackedVariant()
	if variant == "" {
		return
	}
	for _, p := range list {
		if p.BasePrice > 0 && plans.LocalID(p.VariantID) == plans.LocalID(variant) {
			w.intent.SetOneTimePrice(p.BasePrice)
			return
		}
	}
}
