package dev

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sw33tLie/stockfinder/pkg/sources"
)

// Adapter is a scripted source used by tests and the dev command. Listings
// and product pages are served from memory, nothing touches the network.
type Adapter struct {
	mu sync.Mutex

	src      sources.Source
	domains  []string
	listings map[string][]sources.Record
	products map[string]sources.Record
	failures map[string]sources.Reason
	omitted  map[string]bool
	batchErr error
	block    bool

	calls     int
	requested []string
}

func New(src sources.Source, domains ...string) *Adapter {
	return &Adapter{
		src:      src,
		domains:  domains,
		listings: map[string][]sources.Record{},
		products: map[string]sources.Record{},
		failures: map[string]sources.Reason{},
		omitted:  map[string]bool{},
	}
}

func key(u string) string { return strings.TrimRight(strings.ToLower(u), "/") }

// SetListing makes ScrapeListing return recs for category.
func (a *Adapter) SetListing(category string, recs ...sources.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listings[category] = recs
}

// SetProduct makes ScrapeProducts succeed for url with rec.
func (a *Adapter) SetProduct(url string, rec sources.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rec.URL == "" {
		rec.URL = url
	}
	a.products[key(url)] = rec
	delete(a.failures, key(url))
}

// Omit leaves url out of the ScrapeProducts results.
func (a *Adapter) Omit(url string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.omitted[key(url)] = true
}

// Block makes ScrapeProducts wait until its context is done.
func (a *Adapter) Block() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.block = true
}

// SetFailure makes ScrapeProducts fail for url with reason.
func (a *Adapter) SetFailure(url string, reason sources.Reason) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[key(url)] = reason
	delete(a.products, key(url))
}

// FailBatches makes every call return err as a whole-call failure. A nil
// err restores normal behaviour.
func (a *Adapter) FailBatches(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batchErr = err
}

// Calls returns how many times ScrapeProducts was invoked.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Requested returns every URL passed to ScrapeProducts, in call order.
func (a *Adapter) Requested() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.requested...)
}

func (a *Adapter) Source() sources.Source { return a.src }

func (a *Adapter) Domains() []string { return a.domains }

func (a *Adapter) Categories() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	cats := make([]string, 0, len(a.listings))
	for c := range a.listings {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

func (a *Adapter) ScrapeListing(ctx context.Context, category string) ([]sources.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.batchErr != nil {
		return nil, a.batchErr
	}
	return append([]sources.Record(nil), a.listings[category]...), nil
}

func (a *Adapter) ScrapeProducts(ctx context.Context, reqs []sources.Request) ([]sources.Result, error) {
	a.mu.Lock()
	a.calls++
	block := a.block
	a.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.batchErr != nil {
		return nil, a.batchErr
	}

	out := make([]sources.Result, 0, len(reqs))
	for _, r := range reqs {
		a.requested = append(a.requested, r.URL)
		k := key(r.URL)
		if a.omitted[k] {
			continue
		}
		if reason, ok := a.failures[k]; ok {
			out = append(out, sources.Result{Request: r, Reason: reason})
			continue
		}
		rec, ok := a.products[k]
		if !ok {
			out = append(out, sources.Result{Request: r, Reason: sources.ReasonGetNotCompleted})
			continue
		}
		rec.AddProduct = true
		out = append(out, sources.Result{Request: r, Record: &rec})
	}
	return out, nil
}
