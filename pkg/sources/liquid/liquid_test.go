package liquid

import (
	"context"
	"strings"
	"testing"

	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/loopwidget/planscope/pkg/sources/static"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blob = `{"id": 456, "variants": [{"id": 789, "price": "65.00"}],
  "sellingPlanGroups": [{"sellingPlans": [
    {"id": "123", "name": "Monthly", "options": [{"name": "Month", "value": "1"}],
     "priceAdjustments": [{"valueType": "fixed_amount", "value": "10.00"}]}]}]}`

func TestFromPageScriptBlob(t *testing.T) {
	page := `<html><body><div class="x">
	  <script type="application/json" data-selling-plans-data>` + blob + `</script>
	</div></body></html>`

	list, err := (&Source{}).FromPage(context.Background(), strings.NewReader(page), sources.ProductRef{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "123", list[0].ID)
	assert.Equal(t, int64(6500), list[0].BasePrice)
	assert.Equal(t, plans.AdjustFixedAmount, list[0].Adjustment.Kind)
	assert.Equal(t, "10", list[0].Adjustment.Value.String())
}

func TestFromPageAttributeBlob(t *testing.T) {
	page := `<div data-selling-plans-data='` + blob + `'></div>`
	list, err := (&Source{}).FromPage(context.Background(), strings.NewReader(page), sources.ProductRef{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFromPageHandleOnlyDelegates(t *testing.T) {
	byHandle := static.New()
	byHandle.ByHandle["linked"] = []plans.SubscriptionPlan{{ID: "1"}, {ID: "2"}}

	page := `<div data-selling-plans-data data-product-handle="linked"></div>`
	s := &Source{ByHandle: byHandle}
	list, err := s.FromPage(context.Background(), strings.NewReader(page), sources.ProductRef{Handle: "page"})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 1, byHandle.InlineCalls())
}

func TestFromPageWithoutDataElement(t *testing.T) {
	list, err := (&Source{}).FromPage(context.Background(), strings.NewReader(`<p>nothing</p>`), sources.ProductRef{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFromPageBrokenBlob(t *testing.T) {
	page := `<script data-selling-plans-data>{"id": </script>`
	_, err := (&Source{}).FromPage(context.Background(), strings.NewReader(page), sources.ProductRef{})
	assert.ErrorIs(t, err, sources.ErrSourceUnavailable)
}
