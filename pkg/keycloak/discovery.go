package keycloak

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-auth/pkg/errors"
)

// DiscoveryDocument is the subset of the OIDC discovery document the
// validation paths need. Unknown fields from the provider are ignored.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string `json:"token_endpoint,omitempty"`
	JWKSURI               string `json:"jwks_uri,omitempty"`
	IntrospectionEndpoint string `json:"introspection_endpoint,omitempty"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
	UserinfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
}

// validateDiscoveryDocument rejects documents that could not have come
// from a healthy provider: a missing issuer, or any endpoint field that
// is present but not an absolute URL. Rejected documents are never
// cached.
func validateDiscoveryDocument(doc *DiscoveryDocument) error {
	if doc == nil {
		return sserr.New(sserr.CodeValidationDiscovery,
			"keycloak: discovery document is empty")
	}
	if doc.Issuer == "" {
		return sserr.New(sserr.CodeValidationDiscovery,
			"keycloak: discovery document has no issuer")
	}

	endpoints := map[string]string{
		"authorization_endpoint": doc.AuthorizationEndpoint,
		"token_endpoint":         doc.TokenEndpoint,
		"jwks_uri":               doc.JWKSURI,
		"introspection_endpoint": doc.IntrospectionEndpoint,
		"end_session_endpoint":   doc.EndSessionEndpoint,
		"userinfo_endpoint":      doc.UserinfoEndpoint,
	}
	for field, value := range endpoints {
		if value == "" {
			continue
		}
		u, err := url.Parse(value)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return sserr.Newf(sserr.CodeValidationDiscovery,
				"keycloak: discovery document field %s is not an absolute URL", field)
		}
	}
	return nil
}

// discoveryEntry is a cached discovery document with the bookkeeping the
// eviction policy needs.
type discoveryEntry struct {
	doc         *DiscoveryDocument
	fetchedAt   time.Time
	accessCount uint64
}

// DiscoveryCache fetches and caches per-realm OIDC discovery documents.
// Entries are valid while younger than min(cacheTimeout, maxAge), the
// cache never exceeds maxSize realms (least-accessed entries evicted
// first, oldest breaking ties), and a background sweep removes expired
// entries so abandoned realms do not linger until their next access.
//
// A DiscoveryCache is safe for concurrent use. Callers that construct one
// must call [DiscoveryCache.Shutdown].
type DiscoveryCache struct {
	cfg     *Config
	gateway *gateway

	mu      sync.Mutex
	entries map[string]*discoveryEntry

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// newDiscoveryCache creates the cache and starts the background sweep
// when the configured sweep interval is positive.
func newDiscoveryCache(cfg *Config, gw *gateway) *DiscoveryCache {
	c := &DiscoveryCache{
		cfg:     cfg,
		gateway: gw,
		entries: make(map[string]*discoveryEntry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if cfg.DiscoverySweepInterval > 0 {
		go c.sweepLoop()
	} else {
		close(c.done)
	}
	return c
}

// Get returns the discovery document for the realm, fetching it from the
// provider's well-known endpoint on a miss or after expiry. Fetched
// documents are validated before caching; an invalid document is a
// [sserr.CodeValidationDiscovery] error and nothing is cached.
func (c *DiscoveryCache) Get(ctx context.Context, realm string) (*DiscoveryDocument, error) {
	if realm == "" {
		return nil, sserr.New(sserr.CodeNotFoundRealm,
			"keycloak: realm name is empty")
	}

	if doc, ok := c.lookup(realm); ok {
		return doc, nil
	}

	var doc DiscoveryDocument
	err := c.gateway.getJSON(ctx, "discovery_fetch", c.cfg.discoveryURL(realm), &doc)
	if err != nil {
		return nil, err
	}
	if err := validateDiscoveryDocument(&doc); err != nil {
		return nil, err
	}

	c.insert(realm, &doc)
	return &doc, nil
}

// lookup returns a cached document if present and fresh, bumping its
// access count.
func (c *DiscoveryCache) lookup(realm string) (*DiscoveryDocument, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[realm]
	if !ok {
		return nil, false
	}
	if time.Since(entry.fetchedAt) >= c.validity() {
		delete(c.entries, realm)
		return nil, false
	}
	entry.accessCount++
	return entry.doc, true
}

// insert stores a validated document, evicting least-accessed entries
// first when the cache is full.
func (c *DiscoveryCache) insert(realm string, doc *DiscoveryDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[realm]; !exists && len(c.entries) >= c.cfg.DiscoveryCacheSize {
		c.evictLocked(len(c.entries) - c.cfg.DiscoveryCacheSize + 1)
	}
	c.entries[realm] = &discoveryEntry{doc: doc, fetchedAt: time.Now()}
}

// evictLocked removes n entries, least-accessed first, oldest breaking
// ties. Callers hold c.mu.
func (c *DiscoveryCache) evictLocked(n int) {
	type candidate struct {
		realm string
		entry *discoveryEntry
	}
	candidates := make([]candidate, 0, len(c.entries))
	for realm, entry := range c.entries {
		candidates = append(candidates, candidate{realm, entry})
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].entry, candidates[j].entry
		if a.accessCount != b.accessCount {
			return a.accessCount < b.accessCount
		}
		return a.fetchedAt.Before(b.fetchedAt)
	})
	for i := 0; i < n && i < len(candidates); i++ {
		delete(c.entries, candidates[i].realm)
	}
}

// validity is the effective freshness window: the advisory config timeout
// capped by the hard max age.
func (c *DiscoveryCache) validity() time.Duration {
	if c.cfg.DiscoveryCacheTimeout < c.cfg.DiscoveryMaxAge {
		return c.cfg.DiscoveryCacheTimeout
	}
	return c.cfg.DiscoveryMaxAge
}

// Size returns the number of cached realms.
func (c *DiscoveryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear empties the cache. The next Get per realm fetches live.
func (c *DiscoveryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*discoveryEntry)
}

// Shutdown stops the background sweep and clears the cache. Idempotent.
func (c *DiscoveryCache) Shutdown() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
	c.Clear()
}

// sweepLoop periodically drops expired entries until Shutdown.
func (c *DiscoveryCache) sweepLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.DiscoverySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *DiscoveryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	validity := c.validity()
	for realm, entry := range c.entries {
		if time.Since(entry.fetchedAt) >= validity {
			delete(c.entries, realm)
		}
	}
}
