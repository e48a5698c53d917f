// Package gemini provides a client for the Google generative language
// API: a single prompt in, a single text completion out. No streaming.
package gemini

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

// Default configuration values.
const (
	DefaultBaseURL     = "https://generativelanguage.googleapis.com"
	DefaultModel       = "gemini-1.5-flash"
	DefaultTemperature = 0.2
	DefaultTimeout     = 30 * time.Second
)

// Config holds client configuration.
type Config struct {
	// APIKey authenticates the call (required).
	APIKey string
	// BaseURL overrides the API host, mainly for tests.
	BaseURL string
	// Model is the model identifier.
	Model string
	// Temperature controls sampling.
	Temperature float32
	// Timeout bounds each call.
	Timeout time.Duration
	// RPS rate-limits outbound calls; zero disables limiting.
	RPS float64
}

// Client calls the generateContent endpoint.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *resilience.Limiter
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	if cfg.RPS > 0 {
		c.limiter = resilience.NewLimiter(cfg.RPS, 1)
	}
	return c, nil
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature float32 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends one prompt and returns the concatenated completion text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{Temperature: c.cfg.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &domain.UpstreamError{Op: "generate", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.UpstreamError{Op: "generate", Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &domain.UpstreamError{Op: "generate", Status: resp.StatusCode, Body: string(raw)}
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &domain.UpstreamError{Op: "generate", Status: resp.StatusCode, Body: string(raw), Err: err}
	}
	if out.Error != nil {
		return "", &domain.UpstreamError{Op: "generate", Status: out.Error.Code, Body: out.Error.Message}
	}
	if len(out.Candidates) == 0 {
		return "", &domain.UpstreamError{Op: "generate", Status: resp.StatusCode, Body: "no candidates in response"}
	}

	var b bytes.Buffer
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}
