// Package productjson reads selling plans from the storefront's
// /products/<handle>.js document.
package productjson

import (
	"context"
	"errors"
	"net/url"

	"github.com/loopwidget/planscope/pkg/logging"
	"github.com/loopwidget/planscope/pkg/normalize"
	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/loopwidget/planscope/pkg/whttp"
)

const name = "product_json"

type Source struct {
	Fetcher *sources.Fetcher
	Log     logging.Logger
}

func New(f *sources.Fetcher, log logging.Logger) *Source {
	return &Source{Fetcher: f, Log: log}
}

func (s *Source) FetchProductByHandle(ctx context.Context, ref sources.ProductRef) ([]plans.SubscriptionPlan, error) {
	if ref.Handle == "" {
		return nil, sources.Unavailable(name, errors.New("no product handle"))
	}

	var (
		found  []plans.SubscriptionPlan
		parsed bool
	)
	body, err := s.Fetcher.FetchValid(ctx, &whttp.WHTTPReq{
		Method:  "GET",
		URL:     sources.StoreURL(ref.Store, "/products/"+url.PathEscape(ref.Handle)+".js"),
		Headers: []whttp.WHTTPHeader{{Name: "Accept", Value: "application/json"}},
	}, func(body string) (err error) {
		found, err = Parse(body, ref.VariantID, s.Log)
		parsed = err == nil
		return err
	})
	if err != nil {
		if errors.Is(err, sources.ErrSourceUnavailable) {
			return nil, err
		}
		return nil, sources.Unavailable(name, err)
	}
	if parsed {
		return found, nil
	}
	return Parse(body, ref.VariantID, s.Log)
}

// Parse normalizes an already fetched product JSON document.
func Parse(body, variantID string, log logging.Logger) ([]plans.SubscriptionPlan, error) {
	res, err := normalize.ProductJSON(body, normalize.Options{VariantID: variantID, Log: log})
	if err != nil {
		return nil, sources.Unavailable(name, err)
	}
	return res.Plans, nil
}
