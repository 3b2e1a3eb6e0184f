package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/arcfront/shellbus/internal/domain/model"
)

const (
	defaultCacheSize = 128
	defaultCacheTTL  = 30 * time.Second

	// maxManifestBytes bounds how much of a manifest response we read.
	maxManifestBytes = 1 << 20
)

// Fetcher resolves federation manifests over HTTP. Responses are cached in
// an expirable LRU keyed by manifest URL, so a burst of loads against the
// same remote hits the network once.
type Fetcher struct {
	client *http.Client
	cache  *expirable.LRU[string, *model.RemoteModule]
	log    *slog.Logger
}

// FetchOption configures a Fetcher.
type FetchOption func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) FetchOption {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithCacheTTL rebuilds the manifest cache with the given entry lifetime.
func WithCacheTTL(ttl time.Duration) FetchOption {
	return func(f *Fetcher) {
		f.cache = expirable.NewLRU[string, *model.RemoteModule](defaultCacheSize, nil, ttl)
	}
}

// WithFetchLogger replaces the default slog logger.
func WithFetchLogger(log *slog.Logger) FetchOption {
	return func(f *Fetcher) {
		if log != nil {
			f.log = log
		}
	}
}

func NewFetcher(opts ...FetchOption) *Fetcher {
	f := &Fetcher{
		// Attempt deadlines come from the loader's context; the client
		// itself stays unbounded.
		client: &http.Client{},
		cache:  expirable.NewLRU[string, *model.RemoteModule](defaultCacheSize, nil, defaultCacheTTL),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// LoadFunc returns a load function fetching and decoding the federation
// manifest at the given URL. The result plugs straight into NewLoader.
func (f *Fetcher) LoadFunc(url string) LoadFunc[*model.RemoteModule] {
	return func(ctx context.Context) (*model.RemoteModule, error) {
		if module, ok := f.cache.Get(url); ok {
			f.log.Debug("MANIFEST_CACHE_HIT", "url", url)
			return module, nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", url, err)
		}
		req.Header.Set("Accept", "application/json")

		res, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", url, err)
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxManifestBytes))
			return nil, fmt.Errorf("manifest %s: unexpected status %s", url, res.Status)
		}

		var module model.RemoteModule
		if err := json.NewDecoder(io.LimitReader(res.Body, maxManifestBytes)).Decode(&module); err != nil {
			return nil, fmt.Errorf("manifest %s: decode: %w", url, err)
		}
		if module.Name == "" || module.Entry == "" {
			return nil, fmt.Errorf("manifest %s: missing name or entry", url)
		}

		f.cache.Add(url, &module)
		return &module, nil
	}
}

// Invalidate drops one manifest from the cache, forcing the next load to
// hit the network.
func (f *Fetcher) Invalidate(url string) {
	f.cache.Remove(url)
}
