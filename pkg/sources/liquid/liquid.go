// Package liquid reads selling plans embedded in a rendered product page.
//
// The page carries an element marked with data-selling-plans-data. Its
// content (or the attribute value itself) is the camelCase plan blob. When the
// element holds no blob but names a product through data-product-handle, the
// plans come from the product JSON source instead.
package liquid

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/loopwidget/planscope/pkg/logging"
	"github.com/loopwidget/planscope/pkg/normalize"
	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/loopwidget/planscope/pkg/whttp"
)

const (
	name         = "liquid"
	dataSelector = "[data-selling-plans-data]"
	dataAttr     = "data-selling-plans-data"
	handleAttr   = "data-product-handle"
)

type Source struct {
	Fetcher *sources.Fetcher
	// ByHandle resolves a handle-only reference; usually the product JSON source.
	ByHandle sources.InlineSource
	Log      logging.Logger
}

func New(f *sources.Fetcher, byHandle sources.InlineSource, log logging.Logger) *Source {
	return &Source{Fetcher: f, ByHandle: byHandle, Log: log}
}

// FetchProductByHandle fetches the product page and reads its embedded plans.
func (s *Source) FetchProductByHandle(ctx context.Context, ref sources.ProductRef) ([]plans.SubscriptionPlan, error) {
	body, err := s.Fetcher.Fetch(ctx, &whttp.WHTTPReq{
		Method:  "GET",
		URL:     sources.StoreURL(ref.Store, "/products/"+url.PathEscape(ref.Handle)),
		Headers: []whttp.WHTTPHeader{{Name: "Accept", Value: "text/html"}},
	})
	if err != nil {
		return nil, sources.Unavailable(name, err)
	}
	return s.FromPage(ctx, strings.NewReader(body), ref)
}

// FromPage reads plans from page markup the caller already has. A page without
// the data element yields zero plans and no error.
func (s *Source) FromPage(ctx context.Context, page io.Reader, ref sources.ProductRef) ([]plans.SubscriptionPlan, error) {
	log := logging.OrNop(s.Log)

	doc, err := goquery.NewDocumentFromReader(page)
	if err != nil {
		return nil, sources.Unavailable(name, err)
	}

	sel := doc.Find(dataSelector).First()
	if sel.Length() == 0 {
		log.Debugf("[%s] no %s element on page", name, dataSelector)
		return nil, nil
	}

	if blob := embeddedBlob(sel); blob != "" {
		res, err := normalize.Liquid(blob, normalize.Options{VariantID: ref.VariantID, Log: s.Log})
		if err != nil {
			return nil, sources.Unavailable(name, err)
		}
		return res.Plans, nil
	}

	handle, ok := sel.Attr(handleAttr)
	if !ok || handle == "" || s.ByHandle == nil {
		log.Debugf("[%s] data element carries neither plans nor a usable handle", name)
		return nil, nil
	}
	next := ref
	next.Handle = handle
	return s.ByHandle.FetchProductByHandle(ctx, next)
}

// embeddedBlob returns the JSON carried by the data element: the attribute
// value when it looks like JSON, otherwise the element text.
func embeddedBlob(sel *goquery.Selection) string {
	if v, ok := sel.Attr(dataAttr); ok {
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "{") {
			return v
		}
	}
	text := strings.TrimSpace(sel.Text())
	if strings.HasPrefix(text, "{") {
		return text
	}
	return ""
}
