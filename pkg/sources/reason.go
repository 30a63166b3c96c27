package sources

// Reason is the adapter-reported extraction outcome. The empty Reason means
// success.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonGetNotCompleted     Reason = "get not completed"
	ReasonHTMLParse           Reason = "html parse error"
	ReasonProductDataNotFound Reason = "product data not found"
	ReasonJSON                Reason = "json error"
	ReasonCodeNotFound        Reason = "code not found"
	ReasonCategoryNotFound    Reason = "category not found"
	ReasonSpecsNotFound       Reason = "specifications not found"
	ReasonProductNotAdded     Reason = "product not added"
)

// Hard reports whether the reason invalidates a discovery entry immediately,
// regardless of its retry counter.
func (r Reason) Hard() bool {
	return r == ReasonSpecsNotFound
}

func (r Reason) String() string {
	if r == ReasonNone {
		return "ok"
	}
	return string(r)
}
