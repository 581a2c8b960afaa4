package normalize

import (
	"fmt"

	"github.com/loopwidget/planscope/pkg/logging"
	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/tidwall/gjson"
)

// Remote normalizes a storefront GraphQL response. A response whose product is
// null normalizes to zero plans; a response carrying an "errors" array fails.
func Remote(body string, opts Options) (Result, error) {
	log := logging.OrNop(opts.Log)
	if !gjson.Valid(body) {
		return Result{}, fmt.Errorf("%w: invalid JSON", ErrMalformedPayload)
	}
	doc := gjson.Parse(body)
	if errs := doc.Get("errors"); errs.IsArray() && len(errs.Array()) > 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrMalformedPayload, errs.Get("0.message").String())
	}

	product := doc.Get("data.product")
	var res Result
	if !product.IsObject() {
		log.Debugf("[%s] no product in response", ShapeRemote)
		return res, nil
	}

	rule := Units(ShapeRemote)
	productID := plans.LocalID(product.Get("id").String())

	var variants []variantRef
	for _, edge := range product.Get("variants.edges").Array() {
		node := edge.Get("node")
		variants = append(variants, variantRef{
			id:    plans.LocalID(node.Get("id").String()),
			price: node.Get("price.amount"),
		})
	}
	variant, ok := pickVariant(variants, opts.VariantID)
	base := basePrice(variant, ok, rule, log)

	for _, group := range product.Get("sellingPlanGroups.edges").Array() {
		for _, edge := range group.Get("node.sellingPlans.edges").Array() {
			p, err := remotePlan(edge.Get("node"), rule, func(err error) {
				record(&res, log, ShapeRemote, err)
			})
			if err != nil {
				record(&res, log, ShapeRemote, err)
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

// remotePlan builds one plan from a GraphQL node. A missing interval defaults
// to MONTH; an interval outside the enumeration makes the record malformed.
// Adjustment problems go to warn and leave the plan unadjusted.
func remotePlan(node gjson.Result, rule UnitRule, warn func(error)) (plans.SubscriptionPlan, error) {
	if !node.IsObject() {
		return plans.SubscriptionPlan{}, fmt.Errorf("%w: plan node is %s", ErrMalformedPlan, node.Type)
	}
	gid := node.Get("id").String()
	if gid == "" {
		return plans.SubscriptionPlan{}, fmt.Errorf("%w: missing id", ErrMalformedPlan)
	}
	id := plans.LocalID(gid)

	iv := plans.Month
	if raw := node.Get("billingPolicy.interval"); raw.Exists() {
		var err error
		if iv, err = plans.ParseInterval(raw.String()); err != nil {
			return plans.SubscriptionPlan{}, fmt.Errorf("%w: plan %s: %v", ErrMalformedPlan, id, err)
		}
	}
	count := 1
	if c := node.Get("billingPolicy.intervalCount"); c.Exists() {
		count = int(c.Int())
		if count < 1 {
			return plans.SubscriptionPlan{}, fmt.Errorf("%w: plan %s: interval count %s", ErrMalformedPlan, id, c.Raw)
		}
	}

	p := plans.SubscriptionPlan{
		ID:            id,
		GlobalID:      plans.GlobalIDFor(id),
		Name:          node.Get("name").String(),
		Description:   node.Get("description").String(),
		Interval:      iv,
		IntervalCount: count,
		Adjustment:    plans.NoAdjustment(),
	}

	if policy := node.Get("pricingPolicies.0"); policy.Exists() {
		adj, err := adjustment(
			policy.Get("adjustmentType").String(),
			policy.Get("adjustmentValue.percentage"),
			policy.Get("adjustmentValue.fixedValue.amount"),
			rule,
		)
		if err != nil {
			warn(fmt.Errorf("plan %s: %w", id, err))
		}
		p.Adjustment = adj
	}
	return p, nil
}
