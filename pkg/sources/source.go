package sources

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/loopwidget/planscope/pkg/cache"
	"github.com/loopwidget/planscope/pkg/logging"
	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/loopwidget/planscope/pkg/whttp"
)

// ErrSourceUnavailable marks a fetch that failed at the network, HTTP or
// document level. Resolvers treat it as "zero plans from this source".
var ErrSourceUnavailable = errors.New("selling plan source unavailable")

// ProductRef identifies the product a widget is bound to.
type ProductRef struct {
	// Store is the storefront base URL, e.g. https://shop.example.com.
	Store  string
	Handle string
	// ProductID is the numeric or gid product id used for the remote query.
	ProductID string
	// SecondaryProductID is an optional linked product (e.g. a multi-month
	// bundle SKU) whose plans are merged with the primary's.
	SecondaryProductID string
	VariantID          string
}

// InlineSource yields plans from data the product page already carries, either
// the product JSON document behind a handle or a blob embedded in the page.
type InlineSource interface {
	FetchProductByHandle(ctx context.Context, ref ProductRef) ([]plans.SubscriptionPlan, error)
}

// RemoteSource yields plans from the remote query API for one product global id.
type RemoteSource interface {
	QueryProductSellingPlans(ctx context.Context, productGlobalID, variantID string) ([]plans.SubscriptionPlan, error)
}

// Unavailable wraps err as ErrSourceUnavailable.
func Unavailable(source string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, source, err)
}

// Fetcher performs source requests through a shared retrying client and an
// optional response cache. Only 2xx bodies that pass the caller's check are
// cached.
type Fetcher struct {
	Client *retryablehttp.Client
	Cache  cache.Cache
	TTL    time.Duration
	Log    logging.Logger
}

// Fetch returns the body of a 2xx response. Anything else is an error.
func (f *Fetcher) Fetch(ctx context.Context, req *whttp.WHTTPReq) (string, error) {
	return f.FetchValid(ctx, req, nil)
}

// FetchValid is Fetch with a body check run before the response is cached. A
// body rejected by valid is neither cached nor returned, so a 200 carrying an
// error document is refetched on the next call. A cached body was already
// accepted and is returned without re-running valid.
func (f *Fetcher) FetchValid(ctx context.Context, req *whttp.WHTTPReq, valid func(body string) error) (string, error) {
	log := logging.OrNop(f.Log)
	key := cacheKey(req)

	if f.Cache != nil {
		body, ok, err := f.Cache.Get(ctx, key)
		if err != nil {
			log.Warnf("cache get %s: %v", req.URL, err)
		} else if ok {
			log.Debugf("cache hit %s", req.URL)
			return body, nil
		}
	}

	res, err := whttp.SendHTTPRequest(ctx, req, f.Client)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", fmt.Errorf("%s %s: HTTP %d", methodOf(req), req.URL, res.StatusCode)
	}
	if valid != nil {
		if err := valid(res.BodyString); err != nil {
			return "", err
		}
	}

	if f.Cache != nil {
		if err := f.Cache.Set(ctx, key, res.BodyString, f.TTL); err != nil {
			log.Warnf("cache set %s: %v", req.URL, err)
		}
	}
	return res.BodyString, nil
}

func methodOf(req *whttp.WHTTPReq) string {
	if req.Method == "" {
		return "GET"
	}
	return req.Method
}

func cacheKey(req *whttp.WHTTPReq) string {
	var b strings.Builder
	b.WriteString(methodOf(req))
	b.WriteByte(' ')
	b.WriteString(req.URL)
	for _, h := range req.Headers {
		b.WriteByte('\n')
		b.WriteString(h.Name)
		b.WriteByte(':')
		b.WriteString(h.Value)
	}
	b.WriteByte('\n')
	b.WriteString(req.Body)
	return "src:" + strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

// StoreURL joins the store base and a path.
func StoreURL(store, path string) string {
	return strings.TrimRight(store, "/") + "/" + strings.TrimLeft(path, "/")
}
