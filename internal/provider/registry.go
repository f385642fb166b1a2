package provider

import (
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/cache"
)

// Registry resolves engine identifiers to providers. Engines without a
// dedicated adapter are served through SearxNG.
type Registry struct {
	searxngURL string
	client     *http.Client
	cache      cache.SearchCache
	logger     *zerolog.Logger

	mu        sync.Mutex
	providers map[string]Provider
}

func NewRegistry(searxngURL string, client *http.Client, c cache.SearchCache, logger *zerolog.Logger) *Registry {
	return &Registry{
		searxngURL: searxngURL,
		client:     client,
		cache:      c,
		logger:     logger,
		providers:  make(map[string]Provider),
	}
}

// Register installs a dedicated adapter for its engine name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = r.wrap(p)
}

// Resolve maps engine identifiers to providers. An empty list resolves to the
// SearxNG default engine set.
func (r *Registry) Resolve(engines []string) []Provider {
	if len(engines) == 0 {
		engines = []string{AllEngines}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Provider, 0, len(engines))
	for _, engine := range engines {
		key := engine
		if key == AllEngines {
			key = "searxng"
		}

		p, ok := r.providers[key]
		if !ok {
			p = r.wrap(NewSearxng(r.searxngURL, engine, r.client))
			r.providers[key] = p
		}
		out = append(out, p)
	}
	return out
}

func (r *Registry) wrap(p Provider) Provider {
	if r.cache == nil {
		return p
	}
	return NewCached(p, r.cache, r.logger)
}
