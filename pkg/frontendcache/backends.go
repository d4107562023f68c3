// Package frontendcache invalidates document URLs in frontend HTTP caches.
//
// Backends are named in configuration; each knows how to purge a single URL.
// The purge protocol itself belongs to the cache (Varnish, Cloudflare); this
// package only issues the requests their clients expect.
package frontendcache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// BackendConfig describes one named cache-invalidator backend.
type BackendConfig struct {
	Backend  string `yaml:"backend"`            // "http" or "cloudflare"
	Location string `yaml:"location,omitempty"` // cache host, e.g. http://localhost:8000
	ZoneID   string `yaml:"zone_id,omitempty"`  // cloudflare only
	Token    string `yaml:"token,omitempty"`    // cloudflare only
}

// Backend purges a single URL from one frontend cache.
type Backend interface {
	Name() string
	PurgeURL(ctx context.Context, rawURL string) error
}

// NewBackends builds the configured backend set. An empty map yields an
// empty slice, which the purge gate treats as "not configured".
func NewBackends(configs map[string]BackendConfig) ([]Backend, error) {
	backends := make([]Backend, 0, len(configs))
	for name, cfg := range configs {
		switch cfg.Backend {
		case "http":
			if cfg.Location == "" {
				return nil, fmt.Errorf("http backend %q requires a location", name)
			}
			backends = append(backends, NewHTTPBackend(name, cfg.Location))
		case "cloudflare":
			if cfg.ZoneID == "" || cfg.Token == "" {
				return nil, fmt.Errorf("cloudflare backend %q requires zone_id and token", name)
			}
			backends = append(backends, NewCloudflareBackend(name, cfg.ZoneID, cfg.Token))
		default:
			return nil, fmt.Errorf("unknown frontend cache backend type %q for %q", cfg.Backend, name)
		}
	}
	return backends, nil
}

// HTTPBackend purges by sending a Varnish-style PURGE request to the cache
// host, keeping the original URL's Host header so the cache can match the
// cached entry.
type HTTPBackend struct {
	name     string
	location string
	client   *http.Client
}

// NewHTTPBackend creates an HTTP purge backend pointed at location.
func NewHTTPBackend(name, location string) *HTTPBackend {
	return &HTTPBackend{
		name:     name,
		location: location,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (b *HTTPBackend) Name() string {
	return b.name
}

// PurgeURL issues PURGE <location><path> with Host set to the original host.
func (b *HTTPBackend) PurgeURL(ctx context.Context, rawURL string) error {
	target, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid purge URL %q: %w", rawURL, err)
	}

	cacheURL, err := url.Parse(b.location)
	if err != nil {
		return fmt.Errorf("invalid cache location %q: %w", b.location, err)
	}
	cacheURL.Path = target.Path
	cacheURL.RawQuery = target.RawQuery

	req, err := http.NewRequestWithContext(ctx, "PURGE", cacheURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create purge request: %w", err)
	}
	req.Host = target.Host

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("purge request to %q failed: %w", b.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cache %q returned non-2xx status for purge: %d", b.name, resp.StatusCode)
	}
	return nil
}

const cloudflareAPIBase = "https://api.cloudflare.com/client/v4"

// CloudflareBackend purges through the Cloudflare zone purge API.
type CloudflareBackend struct {
	name    string
	zoneID  string
	token   string
	apiBase string
	client  *http.Client
}

// NewCloudflareBackend creates a Cloudflare purge backend for a zone.
func NewCloudflareBackend(name, zoneID, token string) *CloudflareBackend {
	return &CloudflareBackend{
		name:    name,
		zoneID:  zoneID,
		token:   token,
		apiBase: cloudflareAPIBase,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (b *CloudflareBackend) Name() string {
	return b.name
}

// PurgeURL posts a single-file purge to the zone purge_cache endpoint.
func (b *CloudflareBackend) PurgeURL(ctx context.Context, rawURL string) error {
	payload, err := json.Marshal(map[string][]string{"files": {rawURL}})
	if err != nil {
		return fmt.Errorf("failed to marshal purge payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/zones/%s/purge_cache", b.apiBase, b.zoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create purge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("purge request to %q failed: %w", b.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cloudflare zone %q returned non-2xx status for purge: %d", b.zoneID, resp.StatusCode)
	}
	return nil
}
