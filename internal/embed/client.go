package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	cerrors "github.com/calepin/calepin/internal/errors"
)

// ErrUnavailable is returned when the embedding service cannot be reached or
// reports a failure. It is distinguishable from an empty result.
var ErrUnavailable = cerrors.New(cerrors.ErrCodeEmbedUnavailable, "embedding service unavailable", nil)

// ClientConfig configures the HTTP embedding client.
type ClientConfig struct {
	// URL is the embedding endpoint.
	URL string
	// Model is the model identifier sent with each request.
	Model string
	// Dimensions is the expected embedding dimension (0 = accept what the service returns).
	Dimensions int
	// Timeout is the hard per-request timeout.
	Timeout time.Duration
	// MaxRetries is the retry budget for transient failures.
	MaxRetries int
}

// Client calls the embedding service over HTTP.
//
// Request:  {"llm": "<model>", "contents": ["...", ...]}
// Response: {"status": 200, "message": "...", "contents": [[...], ...]}
type Client struct {
	client *http.Client
	config ClientConfig

	mu     sync.Mutex
	closed bool
}

var _ Embedder = (*Client)(nil)

type embedRequest struct {
	LLM      string   `json:"llm"`
	Contents []string `json:"contents"`
}

type embedResponse struct {
	Status   int         `json:"status"`
	Message  string      `json:"message"`
	Contents [][]float32 `json:"contents"`
}

// NewClient creates a new embedding client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	// Per-request timeouts come from context.WithTimeout in EmbedBatch so a
	// caller-supplied deadline can only shorten, never extend, the budget.
	return &Client{
		client: &http.Client{},
		config: cfg,
	}
}

// Embed generates an embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
// Transient failures are retried with exponential backoff; persistent failure
// returns an error wrapping ErrUnavailable.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, cerrors.Newf(cerrors.ErrCodeInvalidInput, "batch size %d exceeds maximum %d", len(texts), MaxBatchSize)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	c.mu.Unlock()

	var vecs [][]float32
	err := WithRetry(ctx, RetryConfig{MaxRetries: c.config.MaxRetries}, func() error {
		var err error
		vecs, err = c.doEmbed(ctx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

func (c *Client) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	payload, err := json.Marshal(embedRequest{LLM: c.config.Model, Contents: texts})
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeInternal, err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, cerrors.New(cerrors.ErrCodeEmbedTimeout, "embedding request timed out", err)
		}
		return nil, cerrors.New(cerrors.ErrCodeEmbedUnavailable, "embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, cerrors.Newf(cerrors.ErrCodeEmbedUnavailable, "embedding service returned %d: %s", resp.StatusCode, string(body))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, cerrors.New(cerrors.ErrCodeEmbedUnavailable, "malformed embedding response", err)
	}
	if result.Status != http.StatusOK || len(result.Contents) == 0 {
		slog.Warn("embedding_service_error", slog.String("message", result.Message))
		return nil, cerrors.Newf(cerrors.ErrCodeEmbedUnavailable, "embedding service error: %s", result.Message)
	}
	if len(result.Contents) != len(texts) {
		return nil, cerrors.Newf(cerrors.ErrCodeEmbeddingFailed, "embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(result.Contents))
	}
	for _, v := range result.Contents {
		if len(v) != c.config.Dimensions {
			return nil, cerrors.Newf(cerrors.ErrCodeDimensionMismatch, "expected dimension %d, got %d", c.config.Dimensions, len(v))
		}
	}

	return result.Contents, nil
}

// Dimensions returns the configured embedding dimension.
func (c *Client) Dimensions() int { return c.config.Dimensions }

// ModelName returns the model identifier.
func (c *Client) ModelName() string { return c.config.Model }

// Available probes the service with a one-element batch.
func (c *Client) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := c.doEmbed(probeCtx, []string{"ping"})
	return err == nil
}

// Close releases resources.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.client.CloseIdleConnections()
	return nil
}
