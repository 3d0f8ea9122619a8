package genart

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ubicomp-capstone/gazepatch/internal/httpc"
	"github.com/ubicomp-capstone/gazepatch/pkg/sector"
)

// Config holds client configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithBaseURL sets the generation service base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout: httpc.DefaultTimeout,
		Logger:  slog.Default(),
	}
}

// Client is the HTTP implementation of Generator.
//
// Requests are never retried here: a generation that failed is reported and
// the pipeline waits for the next fixation, because a delayed retry could
// land long after the viewer's attention has moved on.
type Client struct {
	config *Config
	client *http.Client
	logger *slog.Logger
}

// NewClient creates a generation service client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	return &Client{
		config: cfg,
		client: httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "genart"),
	}, nil
}

// generateRequest is the service's wire format.
type generateRequest struct {
	ImageBase64 string  `json:"image_base64"`
	FocusX      float64 `json:"focus_x"`
	FocusY      float64 `json:"focus_y"`
	TargetRow   int     `json:"target_row"`
	TargetCol   int     `json:"target_col"`
	GridSize    int     `json:"grid_size"`
}

// Generate posts the modification request and returns the modified image.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	if len(req.Image) == 0 {
		return nil, ErrEmptyImage
	}
	if !req.Target.Valid() {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidSector, req.Target)
	}
	gridSize := req.GridSize
	if gridSize == 0 {
		gridSize = sector.GridSize
	}

	payload := generateRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(req.Image),
		FocusX:      req.Focus.X,
		FocusY:      req.Focus.Y,
		TargetRow:   req.Target.Row,
		TargetCol:   req.Target.Col,
		GridSize:    gridSize,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("genart: marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("genart: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("genart: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	image, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("genart: read response: %w", err)
	}
	latency := time.Since(start)

	c.logger.Debug("generation complete",
		"target", req.Target.Name(),
		"bytes", len(image),
		"latency_ms", latency.Milliseconds(),
	)

	return &Result{
		Image:        image,
		TargetSector: resp.Header.Get("X-Target-Sector"),
		Prompt:       resp.Header.Get("X-Prompt-Used"),
		Latency:      latency,
	}, nil
}

// Health checks service connectivity against its /health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("genart: create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("genart: health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// Close releases resources.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// parseError reads and parses an error response.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Detail string `json:"detail"`
	}
	detail := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail != "" {
		detail = errResp.Detail
	}

	return &APIError{StatusCode: resp.StatusCode, Detail: detail}
}

// Verify Client implements Generator at compile time.
var _ Generator = (*Client)(nil)
