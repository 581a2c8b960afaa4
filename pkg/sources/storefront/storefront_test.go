package storefront

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loopwidget/planscope/pkg/cache"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/loopwidget/planscope/pkg/whttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const response = `{"data": {"product": {"id": "gid://shopify/Product/456",
  "variants": {"edges": [{"node": {"id": "gid://shopify/ProductVariant/789", "price": {"amount": "65.0"}}}]},
  "sellingPlanGroups": {"edges": [{"node": {"sellingPlans": {"edges": [
    {"node": {"id": "gid://shopify/SellingPlan/124", "name": "Quarterly",
      "billingPolicy": {"interval": "MONTH", "intervalCount": 3},
      "pricingPolicies": [{"adjustmentType": "FIXED_AMOUNT", "adjustmentValue": {"fixedValue": {"amount": "10.0"}}}]}}]}}}]}}}}`

func fetcher(t *testing.T) *sources.Fetcher {
	t.Helper()
	client, err := whttp.NewClient(whttp.ClientConfig{Retries: 1, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond})
	require.NoError(t, err)
	return &sources.Fetcher{Client: client}
}

func TestQueryProductSellingPlans(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/2024-01/graphql.json", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get(tokenHeader))
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "gid://shopify/Product/456", gjson.GetBytes(b, "variables.id").String())
		assert.Contains(t, gjson.GetBytes(b, "query").String(), "sellingPlanGroups")
		_, _ = w.Write([]byte(response))
	}))
	defer srv.Close()

	s := New(fetcher(t), srv.URL, "secret", "", nil)
	list, err := s.QueryProductSellingPlans(context.Background(), "456", "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "124", list[0].ID)
	assert.Equal(t, "gid://shopify/SellingPlan/124", list[0].GlobalID)
	assert.Equal(t, 3, list[0].IntervalCount)
	assert.Equal(t, int64(6500), list[0].BasePrice)
}

func TestQueryProductSellingPlansFailures(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"unauthorized": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
		"graphql errors": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"errors": [{"message": "Access denied"}]}`))
		},
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := New(fetcher(t), srv.URL, "", "", nil).QueryProductSellingPlans(context.Background(), "gid://shopify/Product/1", "")
			assert.ErrorIs(t, err, sources.ErrSourceUnavailable)
		})
	}
}

func TestErrorDocumentIsNotCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			_, _ = w.Write([]byte(`{"errors": [{"message": "Throttled"}]}`))
			return
		}
		_, _ = w.Write([]byte(response))
	}))
	defer srv.Close()

	f := fetcher(t)
	f.Cache = cache.NewMemory()
	f.TTL = time.Minute
	s := New(f, srv.URL, "", "", nil)

	_, err := s.QueryProductSellingPlans(context.Background(), "456", "")
	require.ErrorIs(t, err, sources.ErrSourceUnavailable)

	list, err := s.QueryProductSellingPlans(context.Background(), "456", "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "124", list[0].ID)

	// The good body is cached and parsed again on a hit.
	list, err = s.QueryProductSellingPlans(context.Background(), "456", "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTokenHeaderOmittedWhenEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header[tokenHeader]
		assert.False(t, present)
		_, _ = w.Write([]byte(`{"data": {"product": null}}`))
	}))
	defer srv.Close()

	list, err := New(fetcher(t), srv.URL, "", "2025-01", nil).QueryProductSellingPlans(context.Background(), "1", "")
	require.NoError(t, err)
	assert.Empty(t, list)
}
