package runbookdocs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// rawContentURL rewrites a github.com blob/tree URL to its
// raw.githubusercontent.com equivalent. Anything that is already a raw URL,
// or not a GitHub URL at all, passes through untouched.
func rawContentURL(docURL string) string {
	parsed, err := url.Parse(docURL)
	if err != nil {
		return docURL
	}
	if parsed.Host == "raw.githubusercontent.com" {
		return docURL
	}
	if parsed.Host != "github.com" && parsed.Host != "www.github.com" {
		return docURL
	}
	segs := strings.SplitN(strings.TrimPrefix(parsed.Path, "/"), "/", 5)
	if len(segs) < 4 || (segs[2] != "blob" && segs[2] != "tree") {
		return docURL
	}
	owner, repo, ref := segs[0], segs[1], segs[3]
	dir := ""
	if len(segs) == 5 {
		dir = segs[4]
	}
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/refs/heads/%s/%s", owner, repo, ref, dir)
}

// checkDocURL rejects non-HTTP schemes and, when an allowlist is
// configured, hosts outside it.
func checkDocURL(docURL string, allowedHosts []string) error {
	parsed, err := url.Parse(docURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme %q not allowed: only http and https", parsed.Scheme)
	}
	if len(allowedHosts) == 0 {
		return nil
	}
	host := strings.ToLower(parsed.Hostname())
	for _, allowed := range allowedHosts {
		if host == allowed || host == "www."+allowed {
			return nil
		}
	}
	return fmt.Errorf("host %q not in the allowed list", host)
}

// repoRef identifies a directory inside a GitHub repository at a ref.
type repoRef struct {
	owner string
	repo  string
	ref   string
	dir   string
}

// splitRepoURL breaks a github.com tree/blob URL into its repoRef parts.
func splitRepoURL(repoURL string) (repoRef, error) {
	parsed, err := url.Parse(repoURL)
	if err != nil {
		return repoRef{}, fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Host != "github.com" && parsed.Host != "www.github.com" {
		return repoRef{}, fmt.Errorf("not a GitHub URL: %s", parsed.Host)
	}
	segs := strings.SplitN(strings.TrimPrefix(parsed.Path, "/"), "/", 5)
	if len(segs) < 4 || (segs[2] != "blob" && segs[2] != "tree") {
		return repoRef{}, fmt.Errorf("not a GitHub blob/tree path: %s", parsed.Path)
	}
	r := repoRef{owner: segs[0], repo: segs[1], ref: segs[3]}
	if len(segs) == 5 {
		r.dir = segs[4]
	}
	return r, nil
}

// fetch downloads one document, following the raw-URL rewrite.
func (s *Service) fetch(ctx context.Context, docURL string) (string, error) {
	target := rawContentURL(docURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	s.authorize(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: HTTP %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// contentsEntry is one item in a GitHub Contents API directory listing.
type contentsEntry struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Type    string `json:"type"` // "file" or "dir"
	HTMLURL string `json:"html_url"`
}

// listMarkdown walks the repository directory tree breadth-first and
// returns the blob URL of every .md file found. A subdirectory that fails
// to list is logged and skipped rather than failing the whole walk.
func (s *Service) listMarkdown(ctx context.Context, ref repoRef) ([]string, error) {
	var docs []string
	pending := []string{ref.dir}
	first := true
	for len(pending) > 0 {
		dir := pending[0]
		pending = pending[1:]

		entries, err := s.listDir(ctx, ref, dir)
		if err != nil {
			if first {
				return nil, err
			}
			s.log.Warn("skipping unlistable subdirectory", "path", dir, "error", err)
			continue
		}
		first = false

		for _, e := range entries {
			switch e.Type {
			case "file":
				if strings.HasSuffix(strings.ToLower(e.Name), ".md") {
					docs = append(docs, e.HTMLURL)
				}
			case "dir":
				pending = append(pending, e.Path)
			}
		}
	}
	return docs, nil
}

func (s *Service) listDir(ctx context.Context, ref repoRef, dir string) ([]contentsEntry, error) {
	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/contents/%s?ref=%s",
		ref.owner, ref.repo, dir, ref.ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	s.authorize(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list %s: HTTP %d", dir, resp.StatusCode)
	}

	var entries []contentsEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return entries, nil
}

func (s *Service) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}
