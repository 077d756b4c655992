// Package runbookdocs fetches and caches remediation runbooks — reference
// troubleshooting documents hosted on GitHub that an ai_chat block can link
// into its system prompt so an operator's assistant has the same
// institutional knowledge a human on-call engineer would consult. This is
// distinct from the document being executed — here "runbook" means the
// linked reference material.
package runbookdocs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const defaultCacheTTL = time.Minute

// Service resolves remediation-doc URLs to their content, with TTL caching
// in front of every GitHub round trip.
type Service struct {
	http     *http.Client
	token    string
	fallback string
	allowed  []string
	log      *slog.Logger

	docs     *ttlCache[string]
	listings *ttlCache[[]string]
}

// Option configures a Service.
type Option func(*Service)

// WithToken sets the bearer token for GitHub requests. Without one, only
// public repositories are reachable and rate limits are lower.
func WithToken(token string) Option {
	return func(s *Service) { s.token = token }
}

// WithHTTPClient replaces the underlying HTTP client (tests point this at
// an httptest server).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.http = c }
}

// WithCacheTTL overrides how long fetched docs and listings are cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.docs = newTTLCache[string](ttl)
		s.listings = newTTLCache[[]string](ttl)
	}
}

// WithFallback sets the content Resolve returns when no URL is given.
func WithFallback(doc string) Option {
	return func(s *Service) { s.fallback = doc }
}

// WithAllowedHosts restricts which hosts docs may be fetched from. Empty
// means any http(s) host.
func WithAllowedHosts(hosts ...string) Option {
	return func(s *Service) { s.allowed = hosts }
}

// WithLogger scopes the service's log output.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// New builds a Service with the given options applied over the defaults.
func New(opts ...Option) *Service {
	s := &Service{
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      slog.Default(),
		docs:     newTTLCache[string](defaultCacheTTL),
		listings: newTTLCache[[]string](defaultCacheTTL),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the doc at docURL, or the configured fallback content
// when docURL is empty. Fetches are cached under the rewritten raw URL so
// the blob and raw spellings of the same doc share one entry.
func (s *Service) Resolve(ctx context.Context, docURL string) (string, error) {
	if docURL == "" {
		return s.fallback, nil
	}
	if err := checkDocURL(docURL, s.allowed); err != nil {
		return "", err
	}

	key := rawContentURL(docURL)
	if content, ok := s.docs.get(key); ok {
		return content, nil
	}
	content, err := s.fetch(ctx, docURL)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", docURL, err)
	}
	s.docs.put(key, content)
	return content, nil
}

// List returns the blob URL of every markdown doc under repoURL (a GitHub
// tree URL), walking subdirectories.
func (s *Service) List(ctx context.Context, repoURL string) ([]string, error) {
	if repoURL == "" {
		return nil, nil
	}
	if urls, ok := s.listings.get(repoURL); ok {
		return urls, nil
	}
	ref, err := splitRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	urls, err := s.listMarkdown(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", repoURL, err)
	}
	s.listings.put(repoURL, urls)
	return urls, nil
}
