// Package normalize converts raw selling plan documents into canonical
// plans.SubscriptionPlan records.
//
// Three source shapes are supported:
//
//   - ShapeRemote: the storefront GraphQL response (group -> plan edges,
//     enumerated intervals, structured pricing policies).
//   - ShapeProductJSON: the /products/<handle>.js document
//     (selling_plan_groups[].selling_plans[], snake_case fields).
//   - ShapeLiquid: a blob rendered into the product page by Liquid with the
//     same structure as ShapeProductJSON but camelCase fields.
//
// The shapes disagree on whether amounts are cents or dollars. Units holds the
// one conversion rule per shape; nothing else in the package guesses.
//
// A malformed plan record is logged and skipped. A malformed document (not
// JSON, GraphQL errors) fails as a whole with ErrMalformedPayload.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/loopwidget/planscope/pkg/logging"
	"github.com/loopwidget/planscope/pkg/money"
	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

var (
	ErrMalformedPlan     = errors.New("malformed plan record")
	ErrInvalidAdjustment = errors.New("invalid price adjustment")
	ErrMalformedPayload  = errors.New("malformed selling plan payload")
)

type Shape int

const (
	ShapeRemote Shape = iota
	ShapeProductJSON
	ShapeLiquid
)

func (s Shape) String() string {
	switch s {
	case ShapeRemote:
		return "remote"
	case ShapeProductJSON:
		return "product_json"
	case ShapeLiquid:
		return "liquid"
	}
	return "unknown"
}

// Unit says how a raw amount is denominated.
type Unit int

const (
	Minor Unit = iota // cents
	Major             // dollars
)

// UnitRule is the per-shape denomination of the two amounts a plan carries.
type UnitRule struct {
	VariantPrice    Unit
	FixedAdjustment Unit
}

var unitTable = map[Shape]UnitRule{
	ShapeRemote:      {VariantPrice: Major, FixedAdjustment: Major},
	ShapeProductJSON: {VariantPrice: Minor, FixedAdjustment: Minor},
	ShapeLiquid:      {VariantPrice: Major, FixedAdjustment: Major},
}

// Units returns the denomination rule for a shape.
func Units(s Shape) UnitRule {
	return unitTable[s]
}

// Options tune a single normalization call.
type Options struct {
	// VariantID picks the variant whose price becomes BasePrice. When empty or
	// absent from the document, the first variant is used.
	VariantID string
	Log       logging.Logger
}

// Result is the outcome of normalizing one document. Errors lists per-record
// problems (skipped plans and rejected adjustments); they never abort the batch.
type Result struct {
	Plans  []plans.SubscriptionPlan
	Errors []error
}

// Document normalizes body according to shape.
func Document(shape Shape, body string, opts Options) (Result, error) {
	switch shape {
	case ShapeRemote:
		return Remote(body, opts)
	case ShapeProductJSON:
		return ProductJSON(body, opts)
	case ShapeLiquid:
		return Liquid(body, opts)
	}
	return Result{}, fmt.Errorf("unsupported shape %d", shape)
}

type variantRef struct {
	id    string
	price gjson.Result
}

// pickVariant returns the tracked variant when present, else the first one.
func pickVariant(variants []variantRef, tracked string) (variantRef, bool) {
	if len(variants) == 0 {
		return variantRef{}, false
	}
	if tracked != "" {
		for _, v := range variants {
			if v.id == tracked || v.id == plans.LocalID(tracked) {
				return v, true
			}
		}
	}
	return variants[0], true
}

// amountOf reads a JSON number or numeric string.
func amountOf(r gjson.Result) (decimal.Decimal, error) {
	switch r.Type {
	case gjson.Number:
		return decimal.NewFromString(r.Raw)
	case gjson.String:
		return money.ParseMajor(r.Str)
	}
	return decimal.Zero, fmt.Errorf("not a number: %s", r.Raw)
}

func toMinor(d decimal.Decimal, u Unit) int64 {
	if u == Major {
		return money.MinorUnits(d)
	}
	return d.Round(0).IntPart()
}

func toMajor(d decimal.Decimal, u Unit) decimal.Decimal {
	if u == Minor {
		return d.Div(decimal.NewFromInt(100))
	}
	return d
}

// basePrice converts a variant price to minor units. A missing or unreadable
// price yields zero, which prices every plan at zero rather than dropping it.
func basePrice(v variantRef, ok bool, rule UnitRule, log logging.Logger) int64 {
	if !ok || !v.price.Exists() {
		return 0
	}
	d, err := amountOf(v.price)
	if err != nil || d.IsNegative() {
		log.Warnf("Unreadable variant price %s for variant %s, using 0", v.price.Raw, v.id)
		return 0
	}
	return toMinor(d, rule.VariantPrice)
}

// adjustment maps the first raw pricing adjustment to its canonical form.
// kind is the source's type tag; anything other than "percentage" is a fixed
// amount in the shape's FixedAdjustment unit.
func adjustment(kind string, percent, amount gjson.Result, rule UnitRule) (plans.Adjustment, error) {
	if strings.EqualFold(kind, "percentage") {
		p, err := amountOf(percent)
		if err != nil {
			return plans.NoAdjustment(), fmt.Errorf("%w: percentage %s", ErrInvalidAdjustment, percent.Raw)
		}
		adj := plans.Percentage(p)
		if err := adj.Validate(); err != nil {
			return plans.NoAdjustment(), fmt.Errorf("%w: %v", ErrInvalidAdjustment, err)
		}
		return adj, nil
	}

	a, err := amountOf(amount)
	if err != nil {
		return plans.NoAdjustment(), fmt.Errorf("%w: amount %s", ErrInvalidAdjustment, amount.Raw)
	}
	adj := plans.FixedAmount(toMajor(a, rule.FixedAdjustment))
	if err := adj.Validate(); err != nil {
		return plans.NoAdjustment(), fmt.Errorf("%w: %v", ErrInvalidAdjustment, err)
	}
	return adj, nil
}

var leadingInt = regexp.MustCompile(`^\s*(\d+)`)

// intervalCount parses the leading integer of an option value; absent,
// unparsable or non-positive values mean 1.
func intervalCount(value string) int {
	m := leadingInt.FindStringSubmatch(value)
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

var unitWord = regexp.MustCompile(`(?i)\b(day|week|month|year)s?\b`)

// optionInterval resolves the billing unit from a plan's first option. The
// option name is authoritative; a value like "3 months" is the fallback.
func optionInterval(name, value string) (plans.Interval, error) {
	if strings.TrimSpace(name) == "" {
		if m := unitWord.FindString(value); m != "" {
			return plans.ParseInterval(m)
		}
		return plans.Month, nil
	}
	if iv, err := plans.ParseInterval(name); err == nil {
		return iv, nil
	}
	if m := unitWord.FindString(value); m != "" {
		return plans.ParseInterval(m)
	}
	if m := unitWord.FindString(name); m != "" {
		return plans.ParseInterval(m)
	}
	return "", fmt.Errorf("%w: unknown interval %q", ErrMalformedPlan, name)
}

func idOf(r gjson.Result) string {
	switch r.Type {
	case gjson.Number:
		return r.Raw
	case gjson.String:
		return strings.TrimSpace(r.Str)
	}
	return ""
}

func record(res *Result, log logging.Logger, shape Shape, err error) {
	res.Errors = append(res.Errors, err)
	if errors.Is(err, ErrInvalidAdjustment) {
		log.Warnf("[%s] %v; pricing plan at full price", shape, err)
		return
	}
	log.Warnf("[%s] skipping plan: %v", shape, err)
}
