package plans

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	for in, want := range map[string]Interval{
		"month":  Month,
		"MONTHS": Month,
		" Week ": Week,
		"day":    Day,
		"years":  Year,
	} {
		got, err := ParseInterval(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseInterval("Deliver every")
	assert.ErrorIs(t, err, ErrUnknownInterval)
	_, err = ParseInterval("")
	assert.ErrorIs(t, err, ErrUnknownInterval)
}

func TestAdjustmentValidate(t *testing.T) {
	assert.NoError(t, NoAdjustment().Validate())
	assert.NoError(t, Percentage(decimal.NewFromInt(100)).Validate())
	assert.Error(t, Percentage(decimal.NewFromInt(101)).Validate())
	assert.Error(t, Percentage(decimal.NewFromInt(-1)).Validate())
	assert.NoError(t, FixedAmount(decimal.Zero).Validate())
	assert.Error(t, FixedAmount(decimal.NewFromInt(-5)).Validate())
}

func TestPlanValidate(t *testing.T) {
	p := SubscriptionPlan{ID: "1", Interval: Month, IntervalCount: 1, BasePrice: 6500}
	assert.NoError(t, p.Validate())

	bad := p
	bad.IntervalCount = 0
	assert.Error(t, bad.Validate())

	bad = p
	bad.ID = ""
	assert.Error(t, bad.Validate())

	bad = p
	bad.BasePrice = -1
	assert.Error(t, bad.Validate())
}

func TestPlanEqualComparesDecimalsByValue(t *testing.T) {
	a := SubscriptionPlan{ID: "1", Interval: Month, IntervalCount: 1, Adjustment: FixedAmount(decimal.RequireFromString("10.00"))}
	b := a
	b.Adjustment = FixedAmount(decimal.NewFromInt(10))
	assert.True(t, a.Equal(b))

	b.Name = "other"
	assert.False(t, a.Equal(b))
}

func TestSortByIntervalIsStable(t *testing.T) {
	in := []SubscriptionPlan{
		{ID: "c", IntervalCount: 3},
		{ID: "a1", IntervalCount: 1},
		{ID: "b", IntervalCount: 2},
		{ID: "a2", IntervalCount: 1},
	}
	out := SortByInterval(in)

	var ids []string
	for _, p := range out {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"a1", "a2", "b", "c"}, ids)
	assert.Equal(t, "c", in[0].ID, "input must not be reordered")
}

func TestIDs(t *testing.T) {
	assert.Equal(t, "gid://shopify/SellingPlan/42", GlobalIDFor("42"))
	assert.Equal(t, "gid://shopify/Product/7", ProductGlobalID("7"))
	assert.Equal(t, "gid://shopify/Product/7", ProductGlobalID("gid://shopify/Product/7"))
	assert.Equal(t, "42", LocalID("gid://shopify/SellingPlan/42"))
	assert.Equal(t, "42", LocalID("42"))
}

func TestFrequencyAndBillingText(t *testing.T) {
	monthly := SubscriptionPlan{Interval: Month, IntervalCount: 1}
	quarterly := SubscriptionPlan{Interval: Month, IntervalCount: 3}
	biweekly := SubscriptionPlan{Interval: Week, IntervalCount: 2}

	assert.Equal(t, "Delivery Every 30 Days", FrequencyText(monthly, 1))
	assert.Equal(t, "Delivery Every 90 Days (3 units)", FrequencyText(quarterly, 3))
	assert.Equal(t, "Delivery Every 14 Days", FrequencyText(biweekly, 1))

	assert.Equal(t, "Billed monthly.", BillingText(monthly, "$55"))
	assert.Equal(t, "$55 billed every 90 days.", BillingText(quarterly, "$55"))
	assert.Equal(t, "$30 billed every 2 weeks.", BillingText(biweekly, "$30"))
}

func TestPrintRows(t *testing.T) {
	rows := []Row{{
		Plan:       SubscriptionPlan{ID: "1", Name: "Monthly", Interval: Month, IntervalCount: 1},
		Price:      "$55",
		Savings:    15,
		Quantity:   1,
		ProductURL: "https://shop.test/products/akk",
	}}

	var buf bytes.Buffer
	require.NoError(t, PrintRows(&buf, rows, "inps", ","))
	assert.Equal(t, "1,Monthly,$55,15%\n", buf.String())

	buf.Reset()
	assert.Error(t, PrintRows(&buf, rows, "x", ","))
}
