package block

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/resolver"
)

// HTTPClient is the out-of-scope collaborator an http block delegates to:
// any *http.Client satisfies it, and tests can substitute a fake.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPProps is an `http` block's static configuration.
type HTTPProps struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

type httpHandler struct {
	id     string
	props  HTTPProps
	client HTTPClient
}

// NewHTTPFactory builds the document.Factory for the "http" block type.
// client may be nil, in which case every http block fails at execution
// time.
func NewHTTPFactory(client HTTPClient) document.Factory {
	return func(n document.Node) (document.Handler, error) {
		var props HTTPProps
		if err := decodeProps(n, &props); err != nil {
			return nil, err
		}
		if props.Method == "" {
			props.Method = http.MethodGet
		}
		return &httpHandler{id: n.ID, props: props, client: client}, nil
	}
}

func (h *httpHandler) PassiveContext(res *resolver.Resolver, local document.LocalValueProvider) (*blockcontext.Context, error) {
	return blockcontext.New(), nil
}

func (h *httpHandler) Execute(ec *execctx.Context) *lifecycle.Handle {
	go func() {
		ec.BlockStarted()

		if h.client == nil {
			ec.BlockFailed("http: no client configured")
			return
		}

		res := ec.ContextResolver()
		url, err := res.ResolveTemplate(h.props.URL)
		if err != nil {
			ec.BlockFailed(err.Error())
			return
		}
		body, err := res.ResolveTemplate(h.props.Body)
		if err != nil {
			ec.BlockFailed(err.Error())
			return
		}

		req, err := http.NewRequestWithContext(ec.CancellationToken(), h.props.Method, url, strings.NewReader(body))
		if err != nil {
			ec.BlockFailed(err.Error())
			return
		}
		for k, v := range h.props.Headers {
			rendered, err := res.ResolveTemplate(v)
			if err != nil {
				ec.BlockFailed(err.Error())
				return
			}
			req.Header.Set(k, rendered)
		}

		resp, err := h.client.Do(req)

		select {
		case <-ec.CancellationToken().Done():
			ec.BlockCancelled()
			return
		default:
		}

		if err != nil {
			ec.BlockFailed(err.Error())
			return
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			ec.BlockFailed(err.Error())
			return
		}

		exitCode := resp.StatusCode
		stdout := string(respBody)
		out := blockcontext.ExecutionOutput{
			ExitCode: &exitCode,
			Stdout:   &stdout,
			Fields:   map[string]string{"status": strconv.Itoa(resp.StatusCode)},
		}
		if setErr := ec.SetBlockOutput(out); setErr != nil {
			ec.BlockFailed(setErr.Error())
			return
		}
		ec.BlockFinished(nil, resp.StatusCode < 400)
	}()

	return ec.Handle()
}
