// Package storefront queries selling plans through the storefront GraphQL API.
package storefront

import (
	"context"
	"net/http"

	"github.com/loopwidget/planscope/pkg/logging"
	"github.com/loopwidget/planscope/pkg/normalize"
	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/loopwidget/planscope/pkg/whttp"
	"github.com/tidwall/sjson"
)

const (
	name              = "storefront"
	DefaultAPIVersion = "2024-01"
	tokenHeader       = "X-Shopify-Storefront-Access-Token"
)

type Source struct {
	Fetcher *sources.Fetcher
	Store   string
	// Token is optional; pages on the store's own domain are authorized implicitly.
	Token      string
	APIVersion string
	Log        logging.Logger
}

func New(f *sources.Fetcher, store, token, apiVersion string, log logging.Logger) *Source {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	return &Source{Fetcher: f, Store: store, Token: token, APIVersion: apiVersion, Log: log}
}

func (s *Source) endpoint() string {
	return sources.StoreURL(s.Store, "/api/"+s.APIVersion+"/graphql.json")
}

// QueryProductSellingPlans accepts a numeric id or a gid.
func (s *Source) QueryProductSellingPlans(ctx context.Context, productGlobalID, variantID string) ([]plans.SubscriptionPlan, error) {
	payload, err := sjson.Set(`{}`, "query", productSellingPlansQuery)
	if err == nil {
		payload, err = sjson.Set(payload, "variables.id", plans.ProductGlobalID(productGlobalID))
	}
	if err != nil {
		return nil, sources.Unavailable(name, err)
	}

	headers := []whttp.WHTTPHeader{
		{Name: "Content-Type", Value: "application/json"},
		{Name: "Accept", Value: "application/json"},
	}
	if s.Token != "" {
		headers = append(headers, whttp.WHTTPHeader{Name: tokenHeader, Value: s.Token})
	}

	opts := normalize.Options{VariantID: variantID, Log: s.Log}
	var (
		res    normalize.Result
		parsed bool
	)
	// A 200 with top-level errors fails normalization and stays out of the cache.
	body, err := s.Fetcher.FetchValid(ctx, &whttp.WHTTPReq{
		Method:  http.MethodPost,
		URL:     s.endpoint(),
		Headers: headers,
		Body:    payload,
	}, func(body string) (err error) {
		res, err = normalize.Remote(body, opts)
		parsed = err == nil
		return err
	})
	if err != nil {
		return nil, sources.Unavailable(name, err)
	}

	if !parsed {
		if res, err = normalize.Remote(body, opts); err != nil {
			return nil, sources.Unavailable(name, err)
		}
	}
	return res.Plans, nil
}
