package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/loopwidget/planscope/pkg/sources/static"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plan(id string, count int) plans.SubscriptionPlan {
	return plans.SubscriptionPlan{ID: id, Interval: plans.Month, IntervalCount: count, BasePrice: 6500}
}

var ref = sources.ProductRef{Handle: "akk", ProductID: "1", SecondaryProductID: "2", VariantID: "10"}

func TestInlinePlansSkipRemote(t *testing.T) {
	src := static.New()
	src.ByHandle["akk"] = []plans.SubscriptionPlan{plan("a", 3), plan("b", 1)}
	src.ByProduct["1"] = []plans.SubscriptionPlan{plan("r", 1)}

	snap, err := New(src, src, nil).Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, Ready, snap.State)
	assert.Len(t, snap.Plans, 2)
	assert.Equal(t, 0, src.RemoteCalls())

	def, ok := snap.Default()
	require.True(t, ok)
	assert.Equal(t, "b", def.ID)
}

func TestRemoteMergesPrimaryAndSecondary(t *testing.T) {
	src := static.New()
	src.ByProduct["1"] = []plans.SubscriptionPlan{plan("p1", 1), plan("p3", 3)}
	src.ByProduct["2"] = []plans.SubscriptionPlan{plan("s2", 2)}

	snap, err := New(src, src, nil).Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, Ready, snap.State)
	require.Len(t, snap.Plans, 3)
	assert.Equal(t, []string{"p1", "s2", "p3"}, ids(snap.Plans))
	assert.Equal(t, 1, src.InlineCalls())
	assert.Equal(t, 2, src.RemoteCalls())
}

func TestPlanSharedByBothProductsIsKeptOnce(t *testing.T) {
	shared := func(product string) plans.SubscriptionPlan {
		p := plan("555", 1)
		p.ProductID = product
		return p
	}
	src := static.New()
	src.ByProduct["1"] = []plans.SubscriptionPlan{shared("1"), plan("p3", 3)}
	src.ByProduct["2"] = []plans.SubscriptionPlan{shared("2")}

	snap, err := New(src, src, nil).Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, Ready, snap.State)
	assert.Equal(t, []string{"555", "p3"}, ids(snap.Plans))
	assert.Equal(t, "1", snap.Plans[0].ProductID)
}

func TestSortIsStableForEqualCounts(t *testing.T) {
	src := static.New()
	src.ByProduct["1"] = []plans.SubscriptionPlan{plan("x", 1), plan("y", 1)}
	src.ByProduct["2"] = []plans.SubscriptionPlan{plan("z", 1)}

	snap, err := New(src, src, nil).Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, ids(snap.Plans))
}

func TestOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*static.Source)
		state  State
		remote int
	}{
		{"all remote failed", func(s *static.Source) { s.Fail["1"], s.Fail["2"] = true, true }, Failed, 2},
		{"remote empty", func(s *static.Source) {}, Empty, 2},
		{"one remote failed", func(s *static.Source) {
			s.Fail["1"] = true
			s.ByProduct["2"] = []plans.SubscriptionPlan{plan("s", 1)}
		}, Ready, 2},
		{"inline failed, remote has plans", func(s *static.Source) {
			s.Fail["akk"] = true
			s.ByProduct["1"] = []plans.SubscriptionPlan{plan("p", 1)}
		}, Ready, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := static.New()
			tt.setup(src)
			snap, err := New(src, src, nil).Resolve(context.Background(), ref)
			require.NoError(t, err)
			assert.Equal(t, tt.state, snap.State)
			assert.Equal(t, tt.state == Ready, snap.Available())
			assert.Equal(t, tt.remote, src.RemoteCalls())
			if !snap.Available() {
				assert.Empty(t, snap.Plans)
			}
		})
	}
}

func TestInlineFailureWithoutRemoteIsFailed(t *testing.T) {
	src := static.New()
	src.Fail["akk"] = true
	snap, err := New(src, nil, nil).Resolve(context.Background(), sources.ProductRef{Handle: "akk"})
	require.NoError(t, err)
	assert.Equal(t, Failed, snap.State)
	assert.ErrorIs(t, snap.Err, sources.ErrSourceUnavailable)
}

func TestSecondaryEqualToPrimaryIsQueriedOnce(t *testing.T) {
	src := static.New()
	src.ByProduct["1"] = []plans.SubscriptionPlan{plan("p", 1)}
	snap, err := New(nil, src, nil).Resolve(context.Background(),
		sources.ProductRef{ProductID: "1", SecondaryProductID: "gid://shopify/Product/1"})
	require.NoError(t, err)
	assert.Len(t, snap.Plans, 1)
	assert.Equal(t, 1, src.RemoteCalls())
}

// blockingRemote holds calls for product "slow" until their context ends.
type blockingRemote struct {
	started chan struct{}
	fast    []plans.SubscriptionPlan
}

func (b *blockingRemote) QueryProductSellingPlans(ctx context.Context, gid, variantID string) ([]plans.SubscriptionPlan, error) {
	if plans.LocalID(gid) == "slow" {
		close(b.started)
		<-ctx.Done()
		return []plans.SubscriptionPlan{plan("old", 1)}, nil
	}
	return b.fast, nil
}

func TestNewerResolutionWins(t *testing.T) {
	remote := &blockingRemote{started: make(chan struct{}), fast: []plans.SubscriptionPlan{plan("new", 1)}}
	r := New(nil, remote, nil)

	var wg sync.WaitGroup
	var staleErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, staleErr = r.Resolve(context.Background(), sources.ProductRef{ProductID: "slow"})
	}()

	select {
	case <-remote.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first resolution never reached the remote source")
	}

	snap, err := r.Resolve(context.Background(), sources.ProductRef{ProductID: "fast"})
	require.NoError(t, err)
	wg.Wait()

	assert.True(t, errors.Is(staleErr, ErrStaleResolution))
	assert.Equal(t, []string{"new"}, ids(snap.Plans))
	assert.Equal(t, snap.Generation, r.Current().Generation)
	assert.Equal(t, []string{"new"}, ids(r.Current().Plans))
}

func TestCancelMakesInFlightResultStale(t *testing.T) {
	remote := &blockingRemote{started: make(chan struct{})}
	r := New(nil, remote, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Resolve(context.Background(), sources.ProductRef{ProductID: "slow"})
		done <- err
	}()
	<-remote.started
	r.Cancel()
	assert.ErrorIs(t, <-done, ErrStaleResolution)
	assert.Equal(t, Loading, r.Current().State)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "IDLE", Idle.String())
	assert.Equal(t, "FAILED", Failed.String())
	assert.Equal(t, Idle, New(nil, nil, nil).Current().State)
}

func ids(list []plans.SubscriptionPlan) []string {
	out := make([]string, 0, len(list))
	for _, p := range list {
		out = append(out, p.ID)
	}
	return out
}
