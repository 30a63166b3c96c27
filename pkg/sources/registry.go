package sources

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// ErrUnknownSource is returned when a name or URL maps to no registered adapter.
var ErrUnknownSource = errors.New("unknown source")

// Registry resolves adapters by source name and by URL host. It is built
// once at startup and read-only afterwards.
type Registry struct {
	byName   map[string]Adapter
	byDomain map[string]Adapter
	names    []string
}

// NewRegistry registers the given adapters. Source names, ids and domains
// must be unique.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{
		byName:   make(map[string]Adapter),
		byDomain: make(map[string]Adapter),
	}
	ids := make(map[int64]string)
	for _, a := range adapters {
		src := a.Source()
		name := strings.ToLower(strings.TrimSpace(src.Name))
		if name == "" {
			return nil, errors.New("adapter with empty source name")
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("duplicate source name %q", name)
		}
		if other, dup := ids[src.ID]; dup {
			return nil, fmt.Errorf("source id %d used by both %q and %q", src.ID, other, name)
		}
		ids[src.ID] = name
		r.byName[name] = a
		r.names = append(r.names, name)

		for _, d := range a.Domains() {
			domain := RegistrableDomain(d)
			if domain == "" {
				continue
			}
			if other, dup := r.byDomain[domain]; dup {
				return nil, fmt.Errorf("domain %q claimed by both %q and %q", domain, other.Source().Name, name)
			}
			r.byDomain[domain] = a
		}
	}
	sort.Strings(r.names)
	return r, nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return a, nil
}

// Resolve infers the source of a product URL from its host.
func (r *Registry) Resolve(rawURL string) (Adapter, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return nil, false
	}
	a, ok := r.byDomain[RegistrableDomain(u.Hostname())]
	return a, ok
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Adapters returns the registered adapters ordered by source name.
func (r *Registry) Adapters() []Adapter {
	out := make([]Adapter, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.byName[n])
	}
	return out
}

// RegistrableDomain reduces a host (or URL) to its registrable domain,
// e.g. "www.shop.example.co.uk" -> "example.co.uk". Hosts the public suffix
// list cannot handle (IPs, localhost) are returned lowercased as-is.
func RegistrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if strings.Contains(host, "://") {
		if u, err := url.Parse(host); err == nil {
			host = u.Hostname()
		}
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return ""
	}
	if !strings.Contains(host, ".") || net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.Domain(host)
	if err != nil {
		return host
	}
	return domain
}
