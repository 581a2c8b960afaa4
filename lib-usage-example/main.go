package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/loopwidget/planscope/pkg/money"
	"github.com/loopwidget/planscope/pkg/pricing"
	"github.com/loopwidget/planscope/pkg/resolver"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/loopwidget/planscope/pkg/sources/productjson"
	"github.com/loopwidget/planscope/pkg/sources/storefront"
	"github.com/loopwidget/planscope/pkg/whttp"
)

func main() {
	// Usage: go run *.go -store "https://shop.example.com" -handle "coffee" [-product 123 -token "storefront_token"]

	storeFlag := flag.String("store", "", "Storefront base URL")
	handleFlag := flag.String("handle", "", "Product handle")
	productFlag := flag.String("product", "", "Product id for the storefront API query")
	tokenFlag := flag.String("token", "", "Storefront API access token")

	// Parse the command-line flags
	flag.Parse()

	if *storeFlag == "" || *handleFlag == "" {
		fmt.Println("Store and handle are required. Please provide them using the -store and -handle flags.")
		return
	}

	client, err := whttp.NewClient(whttp.ClientConfig{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fetcher := &sources.Fetcher{Client: client}

	var remote sources.RemoteSource
	if *tokenFlag != "" {
		remote = storefront.New(fetcher, *storeFlag, *tokenFlag, "", nil)
	}
	res := resolver.New(productjson.New(fetcher, nil), remote, nil)

	snap, err := res.Resolve(context.Background(), sources.ProductRef{Store: *storeFlag, Handle: *handleFlag, ProductID: *productFlag})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	engine := pricing.NewEngine(pricing.DefaultBundlePolicy(), nil)
	for _, p := range snap.Plans {
		q := engine.Quote(p)
		fmt.Println(p.Name, money.DefaultFormatter.Format(q.UnitDisplayPrice), q.SavingsPercent)
	}
	fmt.Println(snap.State)
}
