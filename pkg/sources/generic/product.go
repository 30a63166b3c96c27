package generic

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sw33tLie/stockfinder/pkg/catalog"
	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/whttp"
	"github.com/tidwall/gjson"
)

func (a *Adapter) parseProduct(res *whttp.WHTTPRes, pageURL string) (*sources.Record, sources.Reason) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.BodyString))
	if err != nil {
		return nil, sources.ReasonHTMLParse
	}

	if a.cfg.Selectors.Specs != "" && doc.Find(a.cfg.Selectors.Specs).Length() == 0 {
		return nil, sources.ReasonSpecsNotFound
	}

	blocks := doc.Find(`script[type="application/ld+json"]`)
	if blocks.Length() == 0 {
		return nil, sources.ReasonProductDataNotFound
	}

	var product gjson.Result
	sawValid := false
	blocks.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if !gjson.Valid(raw) {
			return true
		}
		sawValid = true
		if p, ok := findProduct(gjson.Parse(raw)); ok {
			product = p
			return false
		}
		return true
	})
	if !sawValid {
		return nil, sources.ReasonJSON
	}
	if !product.Exists() {
		return nil, sources.ReasonProductDataNotFound
	}

	rec := &sources.Record{
		Code:       strings.TrimSpace(product.Get("sku").String()),
		Name:       strings.TrimSpace(product.Get("name").String()),
		URL:        pageURL,
		Price:      sources.UnknownPrice,
		AddProduct: true,
	}
	if rec.Code == "" {
		return nil, sources.ReasonCodeNotFound
	}
	if rec.Name == "" {
		rec.Name = res.HTTPTitle
	}

	category, ok := resolveProductCategory(product.Get("category").String())
	if !ok {
		return nil, sources.ReasonCategoryNotFound
	}
	rec.Category = category

	rec.PartNumber = strings.TrimSpace(product.Get("mpn").String())
	if rec.PartNumber == "" {
		rec.PartNumber = strings.TrimSpace(product.Get("productID").String())
	}

	brand := product.Get("brand")
	if brand.IsObject() {
		rec.Manufacturer = strings.TrimSpace(brand.Get("name").String())
	} else {
		rec.Manufacturer = strings.TrimSpace(brand.String())
	}

	offers := product.Get("offers")
	if offers.IsArray() {
		offers = offers.Get("0")
	}
	price := offers.Get("price")
	if !price.Exists() {
		price = offers.Get("lowPrice")
	}
	if p := price.Float(); p > 0 {
		rec.Price = p
	}
	rec.Stock = strings.Contains(offers.Get("availability").String(), "InStock")
	rec.Refurbished = strings.Contains(offers.Get("itemCondition").String(), "Refurbished")

	return rec, sources.ReasonNone
}

// findProduct locates the schema.org Product node in an ld+json document,
// which may be a single object, an array of objects or an @graph.
func findProduct(doc gjson.Result) (gjson.Result, bool) {
	if doc.IsArray() {
		for _, item := range doc.Array() {
			if p, ok := findProduct(item); ok {
				return p, true
			}
		}
		return gjson.Result{}, false
	}
	if !doc.IsObject() {
		return gjson.Result{}, false
	}
	if isProduct(key(doc, "@type")) {
		return doc, true
	}
	if graph := key(doc, "@graph"); graph.Exists() {
		return findProduct(graph)
	}
	return gjson.Result{}, false
}

func isProduct(t gjson.Result) bool {
	if t.IsArray() {
		for _, v := range t.Array() {
			if v.String() == "Product" {
				return true
			}
		}
		return false
	}
	return t.String() == "Product"
}

// key reads an object member by exact name. Names beginning with @ would
// otherwise be taken as gjson modifiers.
func key(obj gjson.Result, name string) gjson.Result {
	var out gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.String() == name {
			out = v
			return false
		}
		return true
	})
	return out
}

// resolveProductCategory accepts plain categories and breadcrumb trails
// such as "Componentes > Tarjetas Gráficas", trying the deepest level first.
func resolveProductCategory(raw string) (string, bool) {
	if c, ok := catalog.ResolveCategory(raw); ok {
		return c, true
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == '>' || r == '/' || r == '|' })
	for i := len(parts) - 1; i >= 0; i-- {
		if c, ok := catalog.ResolveCategory(parts[i]); ok {
			return c, true
		}
	}
	return "", false
}
