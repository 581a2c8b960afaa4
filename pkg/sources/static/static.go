// Package static serves fixed plan lists. It backs tests and the --dev mode
// of the CLI, and counts calls so callers can assert which sources were used.
package static

import (
	"context"
	"errors"
	"sync"

	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/loopwidget/planscope/pkg/sources"
)

var errNoSuchProduct = errors.New("no such product")

type Source struct {
	mu sync.Mutex
	// ByHandle answers FetchProductByHandle.
	ByHandle map[string][]plans.SubscriptionPlan
	// ByProduct answers QueryProductSellingPlans, keyed by local product id.
	ByProduct map[string][]plans.SubscriptionPlan
	// Fail lists handles or product ids that return ErrSourceUnavailable.
	Fail map[string]bool

	inlineCalls int
	remoteCalls int
}

func New() *Source {
	return &Source{
		ByHandle:  make(map[string][]plans.SubscriptionPlan),
		ByProduct: make(map[string][]plans.SubscriptionPlan),
		Fail:      make(map[string]bool),
	}
}

func (s *Source) FetchProductByHandle(ctx context.Context, ref sources.ProductRef) ([]plans.SubscriptionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inlineCalls++
	if err := ctx.Err(); err != nil {
		return nil, sources.Unavailable("static", err)
	}
	if s.Fail[ref.Handle] {
		return nil, sources.Unavailable("static", errNoSuchProduct)
	}
	return append([]plans.SubscriptionPlan(nil), s.ByHandle[ref.Handle]...), nil
}

func (s *Source) QueryProductSellingPlans(ctx context.Context, productGlobalID, variantID string) ([]plans.SubscriptionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteCalls++
	if err := ctx.Err(); err != nil {
		return nil, sources.Unavailable("static", err)
	}
	id := plans.LocalID(productGlobalID)
	if s.Fail[id] {
		return nil, sources.Unavailable("static", errNoSuchProduct)
	}
	list, ok := s.ByProduct[id]
	if !ok {
		return nil, nil
	}
	return append([]plans.SubscriptionPlan(nil), list...), nil
}

func (s *Source) InlineCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inlineCalls
}

func (s *Source) RemoteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteCalls
}
