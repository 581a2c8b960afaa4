// Package polling resolves many products concurrently and, when a database is
// configured, persists their plan snapshots and change log.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/loopwidget/planscope/pkg/logging"
	"github.com/loopwidget/planscope/pkg/pricing"
	"github.com/loopwidget/planscope/pkg/resolver"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/loopwidget/planscope/pkg/storage"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger = logging.Logger

// Config holds everything PollProducts needs.
type Config struct {
	Products []sources.ProductRef
	Inline   sources.InlineSource
	Remote   sources.RemoteSource
	Engine   *pricing.Engine
	// DB is optional; without it products are only resolved and priced.
	DB          *storage.DB
	Concurrency int // defaults to 5 if <= 0
	// AllowWipe lets a product that resolved to zero plans remove all its
	// stored plans.
	AllowWipe bool
	Log       Logger // optional; nil = no logging

	// OnProductDone is called per product after upsert+log (from worker goroutines).
	// Enables CLI to stream-print results as they happen. Nil = no callback.
	OnProductDone func(res ProductResult)
}

// ProductResult is the outcome of one product.
type ProductResult struct {
	Ref        sources.ProductRef
	Snapshot   resolver.Snapshot
	Quotes     []pricing.Quote
	Changes    []storage.Change
	IsFirstRun bool
	Err        error
}

// Result holds the outcome of one polling run, products in input order.
type Result struct {
	Products []ProductResult
	Changes  []storage.Change
	Errors   []error // non-fatal errors
}

// PollProducts resolves every configured product with a worker pool.
func PollProducts(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Inline == nil && cfg.Remote == nil {
		return nil, errors.New("no plan source configured")
	}
	log := logging.OrNop(cfg.Log)
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	engine := cfg.Engine
	if engine == nil {
		engine = pricing.NewEngine(pricing.DefaultBundlePolicy(), log)
	}

	result := &Result{Products: make([]ProductResult, len(cfg.Products))}
	if len(cfg.Products) == 0 {
		return result, nil
	}

	jobs := make(chan int, len(cfg.Products))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				res := processOneProduct(ctx, cfg, engine, cfg.Products[idx], log)

				mu.Lock()
				result.Products[idx] = res
				if res.Err != nil {
					result.Errors = append(result.Errors, res.Err)
				}
				result.Changes = append(result.Changes, res.Changes...)
				mu.Unlock()

				if cfg.OnProductDone != nil {
					cfg.OnProductDone(res)
				}
			}
		}()
	}

	for i := range cfg.Products {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return result, nil
}

// processOneProduct resolves, prices and stores one product. Each product
// gets its own resolver so generations never cross products.
func processOneProduct(ctx context.Context, cfg Config, engine *pricing.Engine, ref sources.ProductRef, log Logger) ProductResult {
	res := ProductResult{Ref: ref}
	name := ref.Handle
	if name == "" {
		name = ref.ProductID
	}

	snap, err := resolver.New(cfg.Inline, cfg.Remote, log).Resolve(ctx, ref)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", name, err)
		return res
	}
	res.Snapshot = snap
	res.Quotes = engine.QuoteAll(snap.Plans)

	if snap.State == resolver.Failed {
		log.Warnf("Failed to resolve plans for %s: %v", name, snap.Err)
		res.Err = fmt.Errorf("%s: %w", name, snap.Err)
		return res
	}

	if cfg.DB == nil {
		return res
	}

	count, err := cfg.DB.ProductPlanCount(ctx, ref.Store, name)
	if err != nil {
		log.Warnf("Could not get plan count for %s: %v", name, err)
	}
	res.IsFirstRun = err == nil && count == 0

	entries, err := storage.BuildEntries(ref.Store, name, snap.Plans, engine)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", name, err)
		return res
	}

	changes, err := cfg.DB.UpsertProductPlans(ctx, ref.Store, name, entries, cfg.AllowWipe)
	if err != nil {
		if errors.Is(err, storage.ErrAbortingPlanWipe) {
			log.Warnf("Potential plan wipe detected for %s. Skipping update.", name)
			return res
		}
		log.Warnf("Database error for %s: %v", name, err)
		res.Err = fmt.Errorf("%s: %w", name, err)
		return res
	}
	res.Changes = changes

	if !res.IsFirstRun {
		if err := cfg.DB.LogChanges(ctx, changes); err != nil {
			log.Warnf("Could not log changes for %s: %v", name, err)
		}
	}
	return res
}
