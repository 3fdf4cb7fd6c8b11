// Package basenames implements the nameregistry.Registry port against a
// basenames-style resolver endpoint reached over HTTP.
package basenames

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/basegraph/intelengine/internal/domain/queryerror"
)

// Registry talks to the name-resolution source's forward/reverse lookup
// endpoint. It performs no caching and no forward-verification; both are
// NameResolver's (C3) responsibility.
type Registry struct {
	endpoint   string
	httpClient *http.Client
}

// NewRegistry creates a Registry pointed at endpoint.
func NewRegistry(endpoint string) *Registry {
	return &Registry{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type lookupResponse struct {
	Value string `json:"value"`
}

// Addr implements nameregistry.Registry.
func (r *Registry) Addr(ctx context.Context, namehash string) (string, error) {
	return r.call(ctx, "addr", namehash)
}

// Name implements nameregistry.Registry.
func (r *Registry) Name(ctx context.Context, reverseNamehash string) (string, error) {
	return r.call(ctx, "name", reverseNamehash)
}

func (r *Registry) call(ctx context.Context, method, namehash string) (string, error) {
	encoded, err := json.Marshal(map[string]string{"method": method, "namehash": namehash})
	if err != nil {
		return "", queryerror.New("basenames.call", queryerror.InvalidInput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", queryerror.New("basenames.call", queryerror.Transport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", queryerror.New("basenames.call", queryerror.Cancelled, ctx.Err())
		}
		return "", queryerror.New("basenames.call", queryerror.Transport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", queryerror.New("basenames.call", queryerror.Transport, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode >= 400 {
		return "", queryerror.New("basenames.call", queryerror.Semantic, fmt.Errorf("registry %d: %s", resp.StatusCode, data))
	}

	var out lookupResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", queryerror.New("basenames.call", queryerror.Decode, err)
	}
	return out.Value, nil
}
