package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flemzord/streamexec/internal/capability"
	"github.com/flemzord/streamexec/internal/dispatch"
	"github.com/flemzord/streamexec/internal/security"
)

const (
	fetchTimeout   = 30 * time.Second
	maxFetchBody   = 2 << 20
	fetchUserAgent = "streamexec/1.0"
)

// FetchURL retrieves a URL after it clears the URL filter. Redirect
// targets are re-checked so an allowed host cannot bounce the request to a
// blocked one.
type FetchURL struct {
	filter *security.URLFilter
	client *http.Client
}

// NewFetchURL creates the fetch_url handler.
func NewFetchURL(deps Deps) *FetchURL {
	f := &FetchURL{filter: deps.URLFilter}
	f.client = &http.Client{
		Timeout: fetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			if f.filter != nil {
				return f.filter.Check(req.URL.String())
			}
			return nil
		},
	}
	return f
}

func (h *FetchURL) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		Name:     "fetch_url",
		Kind:     capability.KindLocal,
		Risk:     capability.RiskNetwork,
		Required: []string{"url"},
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"url": {"type": "string", "minLength": 1}},
			"required": ["url"]
		}`),
	}
}

func (h *FetchURL) Execute(ctx context.Context, call capability.ValidatedCall) (dispatch.Result, error) {
	rawURL := call.Param("url")
	if h.filter != nil {
		if err := h.filter.Check(rawURL); err != nil {
			return dispatch.Failure(dispatch.FailureSecurity, err.Error()), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return dispatch.Failuref(dispatch.FailureExecution, "build request: %v", err), nil
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return dispatch.Failure(dispatch.FailureTimeout, "fetch timed out"), nil
		}
		return dispatch.Failuref(dispatch.FailureExecution, "fetch %s: %v", rawURL, err), nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody+1))
	if err != nil {
		return dispatch.Failuref(dispatch.FailureExecution, "read response: %v", err), nil
	}
	truncated := false
	if len(body) > maxFetchBody {
		body = body[:maxFetchBody]
		truncated = true
	}

	if resp.StatusCode >= 400 {
		return dispatch.Failuref(dispatch.FailureExecution, "fetch %s: HTTP %d", rawURL, resp.StatusCode), nil
	}

	text := string(body)
	if truncated {
		text += "\n...(body truncated)"
	}
	return dispatch.Success(text), nil
}
