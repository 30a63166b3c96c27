package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/sw33tLie/stockfinder/pkg/reconcile"
	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/sources/generic"
	"github.com/sw33tLie/stockfinder/pkg/stockcheck"
	"github.com/sw33tLie/stockfinder/pkg/storage"
	"github.com/sw33tLie/stockfinder/pkg/upsert"
)

func main() {
	// Usage: go run . -listing "https://shop.example/gpus" -domain shop.example

	listingFlag := flag.String("listing", "", "GPU listing page URL")
	domainFlag := flag.String("domain", "", "Shop domain")
	dbFlag := flag.String("db", "example.sqlite", "SQLite file")

	// Parse the command-line flags
	flag.Parse()

	if *listingFlag == "" || *domainFlag == "" {
		fmt.Println("Listing and domain are required. Please provide them using -listing and -domain.")
		return
	}

	ctx := context.Background()
	db, err := storage.Open(*dbFlag)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer db.Close()

	// Any source is described the same way; selectors depend on the shop.
	shop, err := generic.New(generic.Config{
		ID:       1,
		Name:     "example",
		Domains:  []string{*domainFlag},
		Listings: map[string][]string{"GPU": {*listingFlag}},
		Selectors: generic.Selectors{
			Item:     ".product",
			CodeAttr: "data-id",
			Name:     ".title",
			Link:     "a",
			Price:    ".price",
			InStock:  ".in-stock",
		},
		PageDelay: time.Second,
	}, nil, nil)
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := db.EnsureSource(ctx, 1, "example"); err != nil {
		fmt.Println(err)
		return
	}

	engine := upsert.NewEngine(db, nil)
	res, err := stockcheck.Run(ctx, stockcheck.Config{Store: db, Engine: engine, Adapter: shop})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("%d records: %d updated, %d registered, %d queued\n", res.Records, res.Updated, res.Registered, res.Queued)

	reg, _ := sources.NewRegistry(shop)
	tick, err := reconcile.New(db, reg, engine, reconcile.Config{}, nil).Tick(ctx)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("confirmed %d, invalid %d, retried %d\n", tick.Channel.Processed, tick.Channel.Invalid, tick.Channel.Retried)
}
