package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clausemind/clausemind/engine/domain"
	"github.com/clausemind/clausemind/pkg/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultRemoteTimeout bounds every remote embedding call.
const DefaultRemoteTimeout = 30 * time.Second

// RemoteConfig configures the remote embedding provider.
type RemoteConfig struct {
	// URL is the inference endpoint accepting a batch of strings.
	URL string
	// APIKey is sent as a bearer token when set.
	APIKey string
	// Dimension is the declared vector length of the served model.
	Dimension int
	// Timeout defaults to DefaultRemoteTimeout.
	Timeout time.Duration
	// RPS rate-limits outbound calls; zero disables limiting.
	RPS float64
}

// Remote calls an external HTTP embedding endpoint. Embedding is pure, so
// callers may retry failed calls idempotently.
type Remote struct {
	url     string
	apiKey  string
	dim     int
	client  *http.Client
	limiter *resilience.Limiter
}

// NewRemote creates a Remote provider.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("embed: remote URL is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embed: remote dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRemoteTimeout
	}
	r := &Remote{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		dim:    cfg.Dimension,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	if cfg.RPS > 0 {
		r.limiter = resilience.NewLimiter(cfg.RPS, 1)
	}
	return r, nil
}

// Dimension implements Provider.
func (r *Remote) Dimension() int { return r.dim }

type remoteRequest struct {
	Inputs []string `json:"inputs"`
}

// Embed implements Provider. Non-2xx responses surface as an
// UpstreamError carrying status and body.
func (r *Remote) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, domain.ErrInvalidInput
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(remoteRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Op: "embed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.UpstreamError{Op: "embed", Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.UpstreamError{Op: "embed", Status: resp.StatusCode, Body: string(raw)}
	}

	var vecs [][]float32
	if err := json.Unmarshal(raw, &vecs); err != nil {
		return nil, &domain.UpstreamError{Op: "embed", Status: resp.StatusCode, Body: string(raw), Err: err}
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(vecs), len(texts))
	}
	for _, v := range vecs {
		if len(v) != r.dim {
			return nil, &domain.DimensionMismatchError{Index: "remote response", Want: r.dim, Got: len(v)}
		}
	}
	return vecs, nil
}
