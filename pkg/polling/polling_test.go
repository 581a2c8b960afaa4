package polling

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/loopwidget/planscope/pkg/resolver"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/loopwidget/planscope/pkg/sources/static"
	"github.com/loopwidget/planscope/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const store = "https://shop.example.com"

func plan(id string, base int64) plans.SubscriptionPlan {
	return plans.SubscriptionPlan{ID: id, Name: id, Interval: plans.Month, IntervalCount: 1, BasePrice: base,
		Adjustment: plans.Percentage(decimal.NewFromInt(10))}
}

func refs(handles ...string) []sources.ProductRef {
	var out []sources.ProductRef
	for _, h := range handles {
		out = append(out, sources.ProductRef{Store: store, Handle: h, ProductID: h})
	}
	return out
}

func TestPollProductsWithoutDB(t *testing.T) {
	src := static.New()
	src.ByHandle["a"] = []plans.SubscriptionPlan{plan("1", 1000)}
	src.ByProduct["b"] = []plans.SubscriptionPlan{plan("2", 2000), plan("3", 3000)}
	src.Fail["c"] = true

	var done int32
	res, err := PollProducts(context.Background(), Config{
		Products:      refs("a", "b", "c", "d"),
		Inline:        src,
		Remote:        src,
		Concurrency:   2,
		OnProductDone: func(ProductResult) { atomic.AddInt32(&done, 1) },
	})
	require.NoError(t, err)
	assert.Equal(t, int32(4), done)
	require.Len(t, res.Products, 4)

	assert.Equal(t, resolver.Ready, res.Products[0].Snapshot.State)
	assert.Equal(t, int64(900), res.Products[0].Quotes[0].DiscountedPrice)
	assert.Len(t, res.Products[1].Quotes, 2)
	assert.Equal(t, resolver.Failed, res.Products[2].Snapshot.State)
	assert.Error(t, res.Products[2].Err)
	assert.Equal(t, resolver.Empty, res.Products[3].Snapshot.State)
	assert.Len(t, res.Errors, 1)
}

func TestPollProductsPersistsAndLogs(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "db.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	src := static.New()
	src.ByHandle["a"] = []plans.SubscriptionPlan{plan("1", 1000)}
	cfg := Config{Products: refs("a"), Inline: src, DB: db}

	res, err := PollProducts(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, res.Products[0].IsFirstRun)
	assert.Len(t, res.Changes, 1)
	logged, err := db.ListRecentChanges(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, logged, "first run is not logged")

	src.ByHandle["a"] = []plans.SubscriptionPlan{plan("1", 1200), plan("2", 500)}
	res, err = PollProducts(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, res.Products[0].IsFirstRun)
	assert.Len(t, res.Changes, 2)
	logged, err = db.ListRecentChanges(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, logged, 2)

	// A product that suddenly has no plans keeps its stored plans.
	src.ByHandle["a"] = nil
	res, err = PollProducts(ctx, cfg)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	n, err := db.ProductPlanCount(ctx, store, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPollProductsNeedsASource(t *testing.T) {
	_, err := PollProducts(context.Background(), Config{Products: refs("a")})
	assert.Error(t, err)
}
