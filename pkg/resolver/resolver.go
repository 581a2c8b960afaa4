// Package resolver loads the plan list for a product: inline data first, then
// the remote query API for the primary and an optional secondary product.
//
// Each Resolve call takes a new generation and cancels the one in flight. A
// result that arrives after a newer call started is discarded, so the last
// request always wins.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/loopwidget/planscope/pkg/logging"
	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/loopwidget/planscope/pkg/sources"
)

var ErrStaleResolution = errors.New("resolution superseded by a newer one")

type State int

const (
	Idle State = iota
	Loading
	Ready
	Empty
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Loading:
		return "LOADING"
	case Ready:
		return "READY"
	case Empty:
		return "EMPTY"
	case Failed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Snapshot is the published outcome of one resolution. Plans is non-empty only
// in Ready and is sorted by interval count.
type Snapshot struct {
	State      State
	Plans      []plans.SubscriptionPlan
	Generation uint64
	// Err joins the source failures seen, for diagnostics only.
	Err error
}

// Available reports whether plans can be offered. Empty and Failed look the
// same from outside.
func (s Snapshot) Available() bool {
	return s.State == Ready && len(s.Plans) > 0
}

// Default returns the first plan after sorting.
func (s Snapshot) Default() (plans.SubscriptionPlan, bool) {
	if !s.Available() {
		return plans.SubscriptionPlan{}, false
	}
	return s.Plans[0], true
}

type Resolver struct {
	inline sources.InlineSource
	remote sources.RemoteSource
	log    logging.Logger

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	current Snapshot
}

// New builds a resolver. Either source may be nil.
func New(inline sources.InlineSource, remote sources.RemoteSource, log logging.Logger) *Resolver {
	return &Resolver{inline: inline, remote: remote, log: logging.OrNop(log)}
}

// Current returns the last published snapshot.
func (r *Resolver) Current() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Cancel aborts the resolution in flight, if any; its result will be stale.
func (r *Resolver) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// Resolve runs one resolution cycle for ref and publishes its snapshot. It
// returns ErrStaleResolution if another Resolve or Cancel happened meanwhile.
func (r *Resolver) Resolve(ctx context.Context, ref sources.ProductRef) (Snapshot, error) {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	if r.cancel != nil {
		r.cancel()
	}
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.current = Snapshot{State: Loading, Generation: gen}
	r.mu.Unlock()
	defer cancel()

	snap := r.fetch(cctx, ref)
	snap.Generation = gen

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		r.log.Debugf("dropping stale resolution %d (current %d)", gen, r.gen)
		return Snapshot{}, ErrStaleResolution
	}
	r.cancel = nil
	r.current = snap
	return snap, nil
}

type remoteResult struct {
	plans []plans.SubscriptionPlan
	err   error
}

func (r *Resolver) fetch(ctx context.Context, ref sources.ProductRef) Snapshot {
	var errs []error

	if r.inline != nil {
		list, err := r.inline.FetchProductByHandle(ctx, ref)
		if err != nil {
			r.log.Warnf("inline source for %q: %v", ref.Handle, err)
			errs = append(errs, err)
		} else if len(list) > 0 {
			r.log.Debugf("inline source for %q gave %d plans", ref.Handle, len(list))
			return Snapshot{State: Ready, Plans: plans.SortByInterval(r.dedupe(list))}
		}
	}

	ids := productIDs(ref)
	if r.remote == nil || len(ids) == 0 {
		if len(errs) > 0 {
			return Snapshot{State: Failed, Err: errors.Join(errs...)}
		}
		return Snapshot{State: Empty}
	}

	results := make([]remoteResult, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			list, err := r.remote.QueryProductSellingPlans(ctx, plans.ProductGlobalID(id), ref.VariantID)
			results[i] = remoteResult{plans: list, err: err}
		}(i, id)
	}
	wg.Wait()

	var merged []plans.SubscriptionPlan
	failed := 0
	for i, res := range results {
		if res.err != nil {
			r.log.Warnf("remote source for product %s: %v", ids[i], res.err)
			errs = append(errs, res.err)
			failed++
			continue
		}
		merged = append(merged, res.plans...)
	}

	switch {
	case len(merged) > 0:
		return Snapshot{State: Ready, Plans: plans.SortByInterval(r.dedupe(merged)), Err: errors.Join(errs...)}
	case failed == len(results):
		return Snapshot{State: Failed, Err: errors.Join(errs...)}
	default:
		return Snapshot{State: Empty, Err: errors.Join(errs...)}
	}
}

// productIDs lists the primary id and, when set and distinct, the secondary.
func productIDs(ref sources.ProductRef) []string {
	var ids []string
	if ref.ProductID != "" {
		ids = append(ids, ref.ProductID)
	}
	if ref.SecondaryProductID != "" && plans.LocalID(ref.SecondaryProductID) != plans.LocalID(ref.ProductID) {
		ids = append(ids, ref.SecondaryProductID)
	}
	return ids
}

// dedupe keeps the first plan for each id. Primary results come first, so a
// plan shared with the secondary product keeps the primary's product id.
func (r *Resolver) dedupe(list []plans.SubscriptionPlan) []plans.SubscriptionPlan {
	seen := make(map[string]struct{}, len(list))
	out := list[:0:0]
	for _, p := range list {
		if _, dup := seen[p.ID]; dup {
			r.log.Warnf("dropping duplicate selling plan %s from product %s", p.ID, p.ProductID)
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
