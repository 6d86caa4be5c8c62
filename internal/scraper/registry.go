package scraper

import (
	"strings"
	"sync"
)

// Registry maps source hosts to scrapers. Lookups fall back to the generic
// scraper when one is configured.
type Registry struct {
	mu       sync.RWMutex
	scrapers map[string]Scraper
	fallback Scraper
}

func NewRegistry(fallback Scraper) *Registry {
	return &Registry{
		scrapers: make(map[string]Scraper),
		fallback: fallback,
	}
}

// DefaultRegistry registers every dedicated scraper plus the generic fallback.
func DefaultRegistry(opts Options) *Registry {
	opts = opts.withDefaults()
	r := NewRegistry(NewGeneric(opts))
	r.Register("fabrichouse.com", NewFabricHouse(opts))
	return r
}

// Register binds host, and every subdomain of it, to s.
func (r *Registry) Register(host string, s Scraper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrapers[NormalizeHost(host)] = s
}

// Select returns the scraper for rawURL. The most specific registered host
// suffix wins.
func (r *Registry) Select(rawURL string) (Scraper, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	host := NormalizeHost(u.Hostname())
	for h := host; h != ""; {
		if s, ok := r.scrapers[h]; ok {
			return s, nil
		}
		idx := strings.IndexByte(h, '.')
		if idx < 0 {
			break
		}
		h = h[idx+1:]
	}

	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, ErrNoScraper
}

// NormalizeHost lower-cases host and strips a leading "www.".
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
