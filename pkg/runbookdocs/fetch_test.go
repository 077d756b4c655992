package runbookdocs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawContentURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "blob URL rewritten",
			in:   "https://github.com/acme/ops/blob/main/docs/disk-full.md",
			want: "https://raw.githubusercontent.com/acme/ops/refs/heads/main/docs/disk-full.md",
		},
		{
			name: "tree URL rewritten",
			in:   "https://github.com/acme/ops/tree/main/docs",
			want: "https://raw.githubusercontent.com/acme/ops/refs/heads/main/docs",
		},
		{
			name: "www host rewritten",
			in:   "https://www.github.com/acme/ops/blob/v2/a.md",
			want: "https://raw.githubusercontent.com/acme/ops/refs/heads/v2/a.md",
		},
		{
			name: "already raw passes through",
			in:   "https://raw.githubusercontent.com/acme/ops/refs/heads/main/a.md",
			want: "https://raw.githubusercontent.com/acme/ops/refs/heads/main/a.md",
		},
		{
			name: "non-GitHub host passes through",
			in:   "https://docs.example.com/runbook.md",
			want: "https://docs.example.com/runbook.md",
		},
		{
			name: "github URL without blob/tree passes through",
			in:   "https://github.com/acme/ops",
			want: "https://github.com/acme/ops",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rawContentURL(tt.in))
		})
	}
}

func TestSplitRepoURL(t *testing.T) {
	ref, err := splitRepoURL("https://github.com/acme/ops/tree/main/docs/runbooks")
	require.NoError(t, err)
	assert.Equal(t, repoRef{owner: "acme", repo: "ops", ref: "main", dir: "docs/runbooks"}, ref)

	ref, err = splitRepoURL("https://github.com/acme/ops/tree/main")
	require.NoError(t, err)
	assert.Empty(t, ref.dir)

	_, err = splitRepoURL("https://gitlab.com/acme/ops/tree/main")
	require.Error(t, err)

	_, err = splitRepoURL("https://github.com/acme/ops/releases")
	require.Error(t, err)
}

func TestCheckDocURL(t *testing.T) {
	require.NoError(t, checkDocURL("https://github.com/a/b/blob/main/c.md", nil))
	require.NoError(t, checkDocURL("http://internal.wiki/page", nil))

	err := checkDocURL("ftp://github.com/a/b", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme")

	require.NoError(t, checkDocURL("https://github.com/a/b/blob/main/c.md", []string{"github.com"}))
	require.NoError(t, checkDocURL("https://www.github.com/a/b/blob/main/c.md", []string{"github.com"}))

	err = checkDocURL("https://evil.example.com/c.md", []string{"github.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the allowed list")
}

// rerouteTransport sends api.github.com / raw.githubusercontent.com
// requests to the test server so listMarkdown's absolute API URLs can be
// served locally.
type rerouteTransport struct {
	server *httptest.Server
}

func (rt *rerouteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host == "api.github.com" || req.URL.Host == "raw.githubusercontent.com" {
		target, _ := url.Parse(rt.server.URL)
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
	}
	return http.DefaultTransport.RoundTrip(req)
}

func newRoutedService(server *httptest.Server, opts ...Option) *Service {
	opts = append([]Option{
		WithHTTPClient(&http.Client{Transport: &rerouteTransport{server: server}}),
	}, opts...)
	return New(opts...)
}

func TestListWalksSubdirectories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/ops/contents/docs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		_ = json.NewEncoder(w).Encode([]contentsEntry{
			{Name: "top.md", Path: "docs/top.md", Type: "file", HTMLURL: "https://github.com/acme/ops/blob/main/docs/top.md"},
			{Name: "notes.txt", Path: "docs/notes.txt", Type: "file", HTMLURL: "https://github.com/acme/ops/blob/main/docs/notes.txt"},
			{Name: "nested", Path: "docs/nested", Type: "dir"},
		})
	})
	mux.HandleFunc("/repos/acme/ops/contents/docs/nested", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]contentsEntry{
			{Name: "deep.MD", Path: "docs/nested/deep.MD", Type: "file", HTMLURL: "https://github.com/acme/ops/blob/main/docs/nested/deep.MD"},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	svc := newRoutedService(server)
	urls, err := svc.List(context.Background(), "https://github.com/acme/ops/tree/main/docs")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://github.com/acme/ops/blob/main/docs/top.md",
		"https://github.com/acme/ops/blob/main/docs/nested/deep.MD",
	}, urls)
}

func TestListUnlistableSubdirectoryIsSkipped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/ops/contents/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/ops/contents/docs":
			_ = json.NewEncoder(w).Encode([]contentsEntry{
				{Name: "a.md", Path: "docs/a.md", Type: "file", HTMLURL: "https://github.com/acme/ops/blob/main/docs/a.md"},
				{Name: "broken", Path: "docs/broken", Type: "dir"},
			})
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	svc := newRoutedService(server)
	urls, err := svc.List(context.Background(), "https://github.com/acme/ops/tree/main/docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://github.com/acme/ops/blob/main/docs/a.md"}, urls)
}

func TestListRootListingFailureIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	svc := newRoutedService(server)
	_, err := svc.List(context.Background(), "https://github.com/acme/ops/tree/main/docs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchSendsBearerTokenWhenConfigured(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("content"))
	}))
	defer server.Close()

	svc := New(WithHTTPClient(server.Client()), WithToken("tok-123"))
	_, err := svc.fetch(context.Background(), server.URL+"/doc.md")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)

	svc = New(WithHTTPClient(server.Client()))
	_, err = svc.fetch(context.Background(), server.URL+"/doc.md")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}
