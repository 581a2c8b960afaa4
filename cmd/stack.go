package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loopwidget/planscope/internal/utils"
	"github.com/loopwidget/planscope/pkg/cache"
	"github.com/loopwidget/planscope/pkg/intent"
	"github.com/loopwidget/planscope/pkg/money"
	"github.com/loopwidget/planscope/pkg/pricing"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/loopwidget/planscope/pkg/sources/liquid"
	"github.com/loopwidget/planscope/pkg/sources/productjson"
	"github.com/loopwidget/planscope/pkg/sources/storefront"
	"github.com/loopwidget/planscope/pkg/whttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newFetcher builds the shared retrying client and response cache. The
// returned func releases the cache.
func newFetcher(cmd *cobra.Command) (*sources.Fetcher, func(), error) {
	proxy, _ := cmd.Flags().GetString("proxy")
	client, err := whttp.NewClient(whttp.ClientConfig{
		Retries: viper.GetInt("http.retries"),
		Timeout: viper.GetDuration("http.timeout"),
		Proxy:   proxy,
		Logger:  utils.LeveledLogger{},
	})
	if err != nil {
		return nil, nil, err
	}

	var c cache.Cache = cache.NewMemory()
	closer := func() {}
	if addr := viper.GetString("cache.redis_addr"); addr != "" {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		r, err := cache.DialRedis(ctx, addr, viper.GetString("cache.redis_password"), viper.GetInt("cache.redis_db"))
		if err != nil {
			utils.Log.Warnf("Redis cache unavailable, using in-memory cache: %v", err)
		} else {
			c = r
			closer = func() { _ = r.Close() }
		}
	}

	return &sources.Fetcher{
		Client: client,
		Cache:  c,
		TTL:    viper.GetDuration("cache.ttl"),
		Log:    utils.Log,
	}, closer, nil
}

// newSources wires the inline and remote sources for one store. The remote
// source needs a storefront token and is nil without one.
func newSources(f *sources.Fetcher, store string, fromPage bool) (sources.InlineSource, sources.RemoteSource) {
	byHandle := productjson.New(f, utils.Log)
	var inline sources.InlineSource = byHandle
	if fromPage {
		inline = liquid.New(f, byHandle, utils.Log)
	}

	var remote sources.RemoteSource
	if token := viper.GetString("store.storefront_token"); token != "" {
		remote = storefront.New(f, store, token, viper.GetString("store.api_version"), utils.Log)
	}
	return inline, remote
}

func newEngine() *pricing.Engine {
	policy := pricing.BundlePolicy{
		Heuristic:  viper.GetBool("bundles.heuristic"),
		Quantities: map[string]int{},
	}
	for id := range viper.GetStringMap("bundles.quantities") {
		if q := viper.GetInt("bundles.quantities." + id); q > 0 {
			policy.Quantities[id] = q
		}
	}
	return pricing.NewEngine(policy, utils.Log)
}

func newFormatter() money.Formatter {
	return money.Formatter{
		MinFractionDigits: viper.GetInt("display.min_fraction_digits"),
		MaxFractionDigits: viper.GetInt("display.max_fraction_digits"),
	}
}

func defaultMode() intent.Mode {
	m, err := intent.ParseMode(viper.GetString("widget.default_mode"))
	if err != nil {
		utils.Log.Warnf("Invalid widget.default_mode, using ONE_TIME: %v", err)
		return intent.OneTime
	}
	return m
}

// storeURL returns the --store flag, falling back to store.url.
func storeURL(cmd *cobra.Command) string {
	if s, _ := cmd.Flags().GetString("store"); s != "" {
		return s
	}
	return viper.GetString("store.url")
}

// parseProductArg accepts a product page URL (https://shop/products/handle)
// or handle[:productID[:secondaryProductID]] relative to store.
func parseProductArg(store, arg string) (sources.ProductRef, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		u, err := url.Parse(arg)
		if err != nil {
			return sources.ProductRef{}, fmt.Errorf("invalid product URL %q: %w", arg, err)
		}
		_, handle, ok := strings.Cut(strings.Trim(u.Path, "/"), "products/")
		if !ok || handle == "" {
			return sources.ProductRef{}, fmt.Errorf("not a product URL: %s", arg)
		}
		handle, _, _ = strings.Cut(handle, "/")
		return sources.ProductRef{Store: u.Scheme + "://" + u.Host, Handle: handle, VariantID: u.Query().Get("variant")}, nil
	}

	if store == "" {
		return sources.ProductRef{}, fmt.Errorf("no store configured for %q: use --store or set store.url", arg)
	}
	parts := strings.Split(arg, ":")
	if parts[0] == "" {
		return sources.ProductRef{}, fmt.Errorf("empty product handle in %q", arg)
	}
	ref := sources.ProductRef{Store: store, Handle: parts[0]}
	if len(parts) > 1 {
		ref.ProductID = parts[1]
	}
	if len(parts) > 2 {
		ref.SecondaryProductID = parts[2]
	}
	if len(parts) > 3 {
		return sources.ProductRef{}, fmt.Errorf("too many fields in %q", arg)
	}
	return ref, nil
}

// resolveDBPath returns an absolute database path and makes sure its
// directory exists.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	p, _ := cmd.Flags().GetString("dbpath")
	abs, err := utils.GetAbsDBPath(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
