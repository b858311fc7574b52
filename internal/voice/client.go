package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

const defaultTimeout = 15 * time.Second

// CallCreator is the part of the client the session controller needs.
type CallCreator interface {
	CreateCall(ctx context.Context, cfg CallConfig) (*Call, error)
}

// Client is an HTTP client for the voice platform's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a voice platform client.
func NewClient(opts Options, logger *logging.Logger, extra ...ClientOption) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	for _, opt := range extra {
		opt(c)
	}
	return c
}

// CreateCall starts a call and returns its join URL.
func (c *Client) CreateCall(ctx context.Context, cfg CallConfig) (*Call, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("voice: missing api key")
	}
	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("voice: marshal call config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/calls", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("voice: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice: create call request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return nil, fmt.Errorf("voice: create call failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var call Call
	if err := json.NewDecoder(resp.Body).Decode(&call); err != nil {
		return nil, fmt.Errorf("voice: decode call response: %w", err)
	}
	if strings.TrimSpace(call.JoinURL) == "" {
		return nil, fmt.Errorf("voice: call response has no join url")
	}

	c.logger.Info("voice call created",
		"call_id", call.CallID,
		"tools", len(cfg.SelectedTools),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &call, nil
}
