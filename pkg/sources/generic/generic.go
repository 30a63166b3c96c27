// Package generic implements a config-driven source adapter: listing pages
// are read with CSS selectors and product pages from their schema.org
// Product ld+json block.
package generic

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sw33tLie/stockfinder/internal/utils"
	"github.com/sw33tLie/stockfinder/pkg/catalog"
	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/whttp"
)

const defaultMaxPages = 1

type Adapter struct {
	cfg    Config
	client *retryablehttp.Client
	log    sources.Logger
	// sleep waits between page fetches; swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, client *retryablehttp.Client, log sources.Logger) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if client == nil {
		var err error
		if client, err = whttp.NewClient("", 2, 30*time.Second); err != nil {
			return nil, err
		}
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	return &Adapter{cfg: cfg, client: client, log: sources.OrNop(log), sleep: utils.Sleep}, nil
}

func (a *Adapter) Source() sources.Source {
	return sources.Source{ID: a.cfg.ID, Name: a.cfg.Name}
}

func (a *Adapter) Domains() []string { return a.cfg.Domains }

// Categories returns the canonical categories that have listing pages.
func (a *Adapter) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for raw := range a.cfg.Listings {
		c, ok := catalog.ResolveCategory(raw)
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (a *Adapter) listingURLs(category string) []string {
	want, ok := catalog.ResolveCategory(category)
	if !ok {
		return nil
	}
	var urls []string
	keys := make([]string, 0, len(a.cfg.Listings))
	for raw := range a.cfg.Listings {
		keys = append(keys, raw)
	}
	sort.Strings(keys)
	for _, raw := range keys {
		if c, ok := catalog.ResolveCategory(raw); ok && c == want {
			urls = append(urls, a.cfg.Listings[raw]...)
		}
	}
	return urls
}

// request builds a fresh request so configured headers are never shared
// between calls.
func (a *Adapter) request(u string) *whttp.WHTTPReq {
	req := &whttp.WHTTPReq{URL: u, Method: http.MethodGet}
	names := make([]string, 0, len(a.cfg.Headers))
	for name := range a.cfg.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		req.Headers = append(req.Headers, whttp.WHTTPHeader{Name: name, Value: a.cfg.Headers[name]})
	}
	return req
}

// fatal reports whether a fetch error must abort the whole call.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || whttp.IsTimeout(err)
}

// ScrapeListing walks every listing page configured for category and
// returns one record per product card. Pages that cannot be fetched are
// logged and skipped; timeouts abort the call.
func (a *Adapter) ScrapeListing(ctx context.Context, category string) ([]sources.Record, error) {
	canonical, ok := catalog.ResolveCategory(category)
	if !ok {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	var out []sources.Record
	for _, start := range a.listingURLs(canonical) {
		next := start
		for page := 0; page < a.cfg.MaxPages && next != ""; page++ {
			if page > 0 {
				if err := a.sleep(ctx, a.cfg.PageDelay); err != nil {
					return out, err
				}
			}
			res, err := whttp.SendHTTPRequest(ctx, a.request(next), a.client)
			if err != nil {
				if fatal(ctx, err) {
					return out, fmt.Errorf("fetching listing %s: %w", next, err)
				}
				a.log.Warnf("[%s] listing %s not fetched: %v", a.cfg.Name, next, err)
				break
			}
			if res.StatusCode != http.StatusOK {
				a.log.Warnf("[%s] listing %s returned status %d", a.cfg.Name, next, res.StatusCode)
				break
			}
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.BodyString))
			if err != nil {
				a.log.Warnf("[%s] listing %s: %v", a.cfg.Name, next, err)
				break
			}
			recs := a.parseListing(doc, next, canonical)
			a.log.Debugf("[%s] %s page %d: %d items", a.cfg.Name, canonical, page+1, len(recs))
			out = append(out, recs...)
			next = a.nextPage(doc, next)
		}
	}
	return out, nil
}

func (a *Adapter) parseListing(doc *goquery.Document, pageURL, category string) []sources.Record {
	sel := a.cfg.Selectors
	var out []sources.Record
	doc.Find(sel.Item).Each(func(_ int, s *goquery.Selection) {
		code := extract(s, sel.Code, sel.CodeAttr)
		href, _ := s.Find(sel.Link).First().Attr("href")
		link := resolveURL(pageURL, href)
		if code == "" || link == "" {
			a.log.Debugf("[%s] skipping item without code or link on %s", a.cfg.Name, pageURL)
			return
		}
		rec := sources.Record{
			Code:       code,
			URL:        link,
			Category:   category,
			Price:      sources.UnknownPrice,
			AddProduct: a.cfg.AddProducts,
		}
		if sel.Name != "" {
			rec.Name = strings.TrimSpace(s.Find(sel.Name).First().Text())
		}
		if sel.Price != "" {
			rec.Price = parsePrice(extract(s, sel.Price, sel.PriceAttr))
		}
		if sel.InStock != "" {
			rec.Stock = s.Find(sel.InStock).Length() > 0
		}
		out = append(out, rec)
	})
	return out
}

func (a *Adapter) nextPage(doc *goquery.Document, pageURL string) string {
	if a.cfg.Selectors.NextPage == "" {
		return ""
	}
	href, ok := doc.Find(a.cfg.Selectors.NextPage).First().Attr("href")
	if !ok {
		return ""
	}
	next := resolveURL(pageURL, href)
	if next == pageURL {
		return ""
	}
	return next
}

// extract returns the trimmed text of the first match, or one of its
// attributes when attr is set. An empty selector targets s itself.
func extract(s *goquery.Selection, selector, attr string) string {
	t := s
	if selector != "" {
		t = s.Find(selector).First()
	}
	if attr != "" {
		v, _ := t.Attr(attr)
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(t.Text())
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	r, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}

// ScrapeProducts fetches each product page and extracts its Product data.
// Results keep the order of reqs.
func (a *Adapter) ScrapeProducts(ctx context.Context, reqs []sources.Request) ([]sources.Result, error) {
	out := make([]sources.Result, 0, len(reqs))
	for i, r := range reqs {
		if i > 0 {
			if err := a.sleep(ctx, a.cfg.PageDelay); err != nil {
				return nil, err
			}
		}
		res, err := whttp.SendHTTPRequest(ctx, a.request(r.URL), a.client)
		if err != nil {
			if fatal(ctx, err) {
				return nil, fmt.Errorf("fetching product %s: %w", r.URL, err)
			}
			a.log.Warnf("[%s] product %s not fetched: %v", a.cfg.Name, r.URL, err)
			out = append(out, sources.Result{Request: r, Reason: sources.ReasonGetNotCompleted})
			continue
		}
		if res.StatusCode != http.StatusOK {
			a.log.Warnf("[%s] product %s returned status %d", a.cfg.Name, r.URL, res.StatusCode)
			out = append(out, sources.Result{Request: r, Reason: sources.ReasonGetNotCompleted})
			continue
		}
		rec, reason := a.parseProduct(res, r.URL)
		out = append(out, sources.Result{Request: r, Record: rec, Reason: reason})
	}
	return out, nil
}
