package normalize

import (
	"fmt"

	"github.com/loopwidget/planscope/pkg/logging"
	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/tidwall/gjson"
)

// flatFields names the keys of the group -> plan -> adjustment structure shared
// by the product JSON document and the Liquid blob.
type flatFields struct {
	groups      string
	plans       string
	adjustments string
	valueType   string
}

var (
	productJSONFields = flatFields{
		groups:      "selling_plan_groups",
		plans:       "selling_plans",
		adjustments: "price_adjustments",
		valueType:   "value_type",
	}
	liquidFields = flatFields{
		groups:      "sellingPlanGroups",
		plans:       "sellingPlans",
		adjustments: "priceAdjustments",
		valueType:   "valueType",
	}
)

// ProductJSON normalizes a /products/<handle>.js document. Variant prices and
// fixed adjustment values are in minor units.
func ProductJSON(body string, opts Options) (Result, error) {
	return flat(ShapeProductJSON, productJSONFields, body, opts)
}

// Liquid normalizes a plan blob embedded in the product page. Variant prices
// and fixed adjustment values are in major units.
func Liquid(body string, opts Options) (Result, error) {
	return flat(ShapeLiquid, liquidFields, body, opts)
}

func flat(shape Shape, f flatFields, body string, opts Options) (Result, error) {
	log := logging.OrNop(opts.Log)
	if !gjson.Valid(body) {
		return Result{}, fmt.Errorf("%w: invalid JSON", ErrMalformedPayload)
	}
	doc := gjson.Parse(body)
	if !doc.IsObject() {
		return Result{}, fmt.Errorf("%w: document is %s", ErrMalformedPayload, doc.Type)
	}
	// Some themes wrap the product under a "product" key.
	if p := doc.Get("product"); p.IsObject() {
		doc = p
	}

	rule := Units(shape)
	productID := idOf(doc.Get("id"))

	var variants []variantRef
	for _, v := range doc.Get("variants").Array() {
		variants = append(variants, variantRef{id: idOf(v.Get("id")), price: v.Get("price")})
	}
	variant, ok := pickVariant(variants, opts.VariantID)
	base := basePrice(variant, ok, rule, log)

	var res Result
	for _, group := range doc.Get(f.groups).Array() {
		for _, node := range group.Get(f.plans).Array() {
			p, err := flatPlan(node, f, rule, func(err error) {
				record(&res, log, shape, err)
			})
			if err != nil {
				record(&res, log, shape, err)
				continue
			}
			p.ProductID = productID
			p.VariantID = variant.id
			p.BasePrice = base
			res.Plans = append(res.Plans, p)
		}
	}
	return res, nil
}

// flatPlan builds one plan from a flat-shape record. The interval comes from
// the first option; missing options mean one month.
func flatPlan(node gjson.Result, f flatFields, rule UnitRule, warn func(error)) (plans.SubscriptionPlan, error) {
	if !node.IsObject() {
		return plans.SubscriptionPlan{}, fmt.Errorf("%w: plan record is %s", ErrMalformedPlan, node.Type)
	}
	id := idOf(node.Get("id"))
	if id == "" {
		return plans.SubscriptionPlan{}, fmt.Errorf("%w: missing id", ErrMalformedPlan)
	}

	option := node.Get("options.0")
	value := option.Get("value").String()
	if !option.Get("value").Exists() {
		value = option.Get("values.0").String()
	}
	iv, err := optionInterval(option.Get("name").String(), value)
	if err != nil {
		return plans.SubscriptionPlan{}, fmt.Errorf("plan %s: %w", id, err)
	}

	p := plans.SubscriptionPlan{
		ID:            id,
		GlobalID:      plans.GlobalIDFor(id),
		Name:          node.Get("name").String(),
		Description:   node.Get("description").String(),
		Interval:      iv,
		IntervalCount: intervalCount(value),
		Adjustment:    plans.NoAdjustment(),
	}

	if adj := node.Get(f.adjustments + ".0"); adj.Exists() {
		raw := adj.Get("value")
		a, err := adjustment(adj.Get(f.valueType).String(), raw, raw, rule)
		if err != nil {
			warn(fmt.Errorf("plan %s: %w", id, err))
		}
		p.Adjustment = a
	}
	return p, nil
}
