package sources

import (
	"context"
)

// UnknownPrice is the price sentinel stored when a source does not publish one.
const UnknownPrice = -1.0

// Source identifies a catalogued e-commerce origin.
type Source struct {
	ID   int64
	Name string
}

// Record is one normalized scrape record, either from a listing page or
// from a product page.
type Record struct {
	Code         string
	Name         string
	URL          string
	Category     string
	PartNumber   string
	Manufacturer string
	Price        float64
	Stock        bool
	Refurbished  bool

	// AddProduct marks the authoritative per-product scrape, allowed to
	// register the product in the catalog directly.
	AddProduct bool
}

// Request is a single URL handed to an adapter for verification.
// EntryID is echoed back unchanged.
type Request struct {
	EntryID int64
	URL     string
}

// Result is the adapter outcome for one Request.
type Result struct {
	Request Request
	Record  *Record
	Reason  Reason
}

// OK reports whether the adapter produced a usable product record.
func (r Result) OK() bool {
	return r.Reason == ReasonNone && r.Record != nil
}

// Adapter defines the scrape contract every source implements. Extraction
// failures are reported per request through Result.Reason; a non-nil error
// from ScrapeProducts or ScrapeListing is a transport-level failure for the
// whole call (timeouts, cancelled context).
type Adapter interface {
	Source() Source
	Domains() []string
	Categories() []string
	ScrapeListing(ctx context.Context, category string) ([]Record, error)
	ScrapeProducts(ctx context.Context, reqs []Request) ([]Result, error)
}
