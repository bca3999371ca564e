package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// HTTPClient abstracts the HTTP client used for fetching the provider's
// public key document. This allows callers to provide custom HTTP clients
// with specific timeouts, transport settings, or middleware.
//
// The standard [http.Client] satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// KeySet maps a key identifier (kid) to the provider public key that kid
// names. A KeySet is an immutable snapshot: the cache replaces the whole
// map on refresh and never mutates entries in place, so holders may read
// it without synchronization.
type KeySet map[string]*rsa.PublicKey

// DefaultKeyMaxAge is the freshness window applied when the provider's
// response carries no parseable Cache-Control max-age directive.
const DefaultKeyMaxAge = time.Hour

// maxKeyResponseSize limits the provider response body (1 MB) to prevent
// resource exhaustion from a misbehaving endpoint.
const maxKeyResponseSize = 1 << 20

// keySnapshot pairs a KeySet with its freshness deadline. Snapshots are
// immutable; the cache swaps the whole snapshot pointer under lock so a
// reader never observes a KeySet paired with a mismatched expiry.
type keySnapshot struct {
	keys      KeySet
	expiresAt time.Time
}

// KeyCache serves the identity provider's current public signing keys with
// minimal remote calls while tolerating provider unavailability.
//
// The provider publishes its keys as a JSON object mapping kid to a
// PEM-encoded X.509 certificate, with a Cache-Control max-age response
// header defining the freshness window. The cache is demand-driven and
// lazy: there are no background timers, and at most one remote fetch is in
// flight at a time (concurrent expiries collapse onto a single fetch).
//
// Failure policy is "fail open on cache, fail safe on trust": when a fetch
// fails and a previous snapshot exists (even an expired one), the stale
// snapshot is served, because an expired-but-previously-valid key is still
// cryptographically valid for already-issued, unexpired tokens. When a
// fetch fails and no snapshot exists, an empty KeySet is returned and every
// token verification fails closed for that request.
//
// KeyCache is safe for concurrent use by multiple goroutines.
type KeyCache struct {
	certsURL      string
	defaultMaxAge time.Duration
	client        HTTPClient

	mu      sync.RWMutex
	current *keySnapshot // nil until the first successful fetch

	// fetchSeq increments when a fetch begins. ForceRefresh uses it to
	// detect that it joined a fetch already in flight when it was called.
	fetchSeq atomic.Uint64

	sf singleflight.Group
}

// NewKeyCache creates a KeyCache that fetches keys from certsURL.
//
// If client is nil, a default [http.Client] with a 10-second timeout is
// used. If defaultMaxAge is zero or negative, [DefaultKeyMaxAge] applies.
func NewKeyCache(certsURL string, defaultMaxAge time.Duration, client HTTPClient) *KeyCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if defaultMaxAge <= 0 {
		defaultMaxAge = DefaultKeyMaxAge
	}
	return &KeyCache{
		certsURL:      certsURL,
		defaultMaxAge: defaultMaxAge,
		client:        client,
	}
}

// Keys returns the current KeySet. The cached snapshot is returned as long
// as it is fresh; otherwise the provider endpoint is fetched. See the
// KeyCache type documentation for the failure policy.
func (c *KeyCache) Keys(ctx context.Context) KeySet {
	c.mu.RLock()
	snap := c.current
	c.mu.RUnlock()

	if snap != nil && time.Now().Before(snap.expiresAt) {
		return snap.keys
	}
	return c.refresh(ctx)
}

// ForceRefresh unconditionally treats the cache as expired and fetches the
// provider endpoint. It is called when a presented token references a kid
// absent from the current KeySet, which covers provider key rotation
// between cache refreshes.
//
// A fetch that was already in flight when ForceRefresh was called may have
// read the provider endpoint before the rotation that made the kid appear,
// so its result does not count as a refresh: when ForceRefresh joins such a
// fetch it performs one more.
func (c *KeyCache) ForceRefresh(ctx context.Context) KeySet {
	seq := c.fetchSeq.Load()
	keys := c.refresh(ctx)
	if c.fetchSeq.Load() == seq {
		keys = c.refresh(ctx)
	}
	return keys
}

// refresh fetches the provider endpoint, installing a new snapshot on
// success. Concurrent callers share a single in-flight fetch. On failure
// the prior snapshot (stale or not) is returned unchanged, or an empty
// KeySet when none exists; a failed or cancelled fetch never installs a
// partial snapshot.
func (c *KeyCache) refresh(ctx context.Context) KeySet {
	result, err, _ := c.sf.Do("certs", func() (any, error) {
		c.fetchSeq.Add(1)
		keys, maxAge, err := c.fetchKeys(ctx)
		if err != nil {
			return nil, err
		}
		snap := &keySnapshot{
			keys:      keys,
			expiresAt: time.Now().Add(maxAge),
		}
		c.mu.Lock()
		c.current = snap
		c.mu.Unlock()
		return keys, nil
	})
	if err != nil {
		slog.WarnContext(ctx, "auth: signing key refresh failed, serving previous key set",
			"error", err,
			"certs_url", c.certsURL,
		)
		c.mu.RLock()
		snap := c.current
		c.mu.RUnlock()
		if snap != nil {
			return snap.keys
		}
		return KeySet{}
	}
	return result.(KeySet)
}

// fetchKeys performs the HTTP GET against the provider endpoint, parses
// the kid-to-certificate document, and derives the freshness window from
// the Cache-Control header.
func (c *KeyCache) fetchKeys(ctx context.Context) (KeySet, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.certsURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("auth: failed to create key request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("auth: key request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("auth: key endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeyResponseSize))
	if err != nil {
		return nil, 0, fmt.Errorf("auth: failed to read key response: %w", err)
	}

	var certs map[string]string
	if err := json.Unmarshal(body, &certs); err != nil {
		return nil, 0, fmt.Errorf("auth: failed to parse key JSON: %w", err)
	}

	keys := make(KeySet, len(certs))
	for kid, certPEM := range certs {
		pub, err := parseCertificatePublicKey(certPEM)
		if err != nil {
			// A single malformed entry must not poison the whole set.
			slog.WarnContext(ctx, "auth: skipping unparseable provider certificate",
				"error", err,
				"kid", kid,
			)
			continue
		}
		keys[kid] = pub
	}

	maxAge := c.defaultMaxAge
	if age, ok := parseMaxAge(resp.Header.Get("Cache-Control")); ok {
		maxAge = age
	}

	return keys, maxAge, nil
}

// parseCertificatePublicKey extracts the RSA public key from a PEM-encoded
// X.509 certificate, the encoding the provider uses for its published
// signing keys.
func parseCertificatePublicKey(certPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, fmt.Errorf("auth: no PEM block in certificate data")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to parse certificate: %w", err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("auth: certificate public key is %T, not RSA", cert.PublicKey)
	}
	return pub, nil
}

// parseMaxAge extracts the max-age directive from a Cache-Control header
// value. Returns the duration and true when a non-negative max-age is
// present, or zero and false otherwise.
func parseMaxAge(cacheControl string) (time.Duration, bool) {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		value, found := strings.CutPrefix(directive, "max-age=")
		if !found {
			value, found = strings.CutPrefix(directive, "s-maxage=")
			if !found {
				continue
			}
		}
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds < 0 {
			continue
		}
		return time.Duration(seconds) * time.Second, true
	}
	return 0, false
}
