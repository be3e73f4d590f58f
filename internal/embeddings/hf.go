package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/docchatd/internal/logging"
)

const (
	defaultBaseURL       = "https://api-inference.huggingface.co"
	defaultModel         = "BAAI/bge-small-en-v1.5"
	defaultDimension     = 384
	defaultTimeout       = 30 * time.Second
	defaultMaxAttempts   = 3
	defaultBatchSize     = 10
	defaultWarmupDelay   = 20 * time.Second
	defaultBackoffBase   = 4 * time.Second
	defaultBackoffCap    = 10 * time.Second
	defaultTextInterval  = 100 * time.Millisecond
	defaultBatchInterval = 1 * time.Second
)

// Config holds Hugging Face inference settings.
type Config struct {
	// BaseURL is the inference API root. The model name is appended as
	// a path segment.
	BaseURL string

	// Model is the embedding model identifier, e.g. "BAAI/bge-small-en-v1.5".
	Model string

	// APIKey is the bearer token. Empty means unauthenticated calls.
	APIKey string

	// Dimension is the expected vector size. Responses of any other
	// length are rejected.
	Dimension int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// MaxAttempts is the total number of tries per text, including the
	// first.
	MaxAttempts int

	// BatchSize is the default group size for EmbedBatched.
	BatchSize int

	// WarmupDelay is the fixed cooldown after the API reports the model
	// is still loading.
	WarmupDelay time.Duration

	// BackoffBase and BackoffCap bound the exponential delay between
	// retries of transient failures.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// TextInterval paces consecutive per-text requests.
	TextInterval time.Duration

	// BatchInterval is the pause between groups in EmbedBatched.
	BatchInterval time.Duration
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidConfig)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be at least 1", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Dimension == 0 {
		c.Dimension = defaultDimension
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.WarmupDelay == 0 {
		c.WarmupDelay = defaultWarmupDelay
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = defaultBackoffCap
	}
	if c.TextInterval == 0 {
		c.TextInterval = defaultTextInterval
	}
	if c.BatchInterval == 0 {
		c.BatchInterval = defaultBatchInterval
	}
}

// HFProvider calls the Hugging Face Inference API.
type HFProvider struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	metrics *Metrics
	logger  *logging.Logger
}

var _ Provider = (*HFProvider)(nil)

// NewHFProvider creates a provider. The rate limiter is shared across
// callers so concurrent ingestions pace their requests together.
func NewHFProvider(cfg Config, logger *logging.Logger) (*HFProvider, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HFProvider{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(cfg.TextInterval), 1),
		metrics: NewMetrics(logger.Underlying()),
		logger:  logger,
	}, nil
}

// Dimension reports the configured vector size.
func (p *HFProvider) Dimension() int {
	return p.config.Dimension
}

// Embed generates one vector per text, sequentially and in order.
func (p *HFProvider) Embed(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, "embed", time.Since(start), len(texts), err)
	}()

	vectors = make([][]float32, 0, len(texts))
	for i, text := range texts {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		vec, err := p.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d of %d: %w", i+1, len(texts), err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

// EmbedBatched embeds texts in sequential groups, pausing BatchInterval
// between groups. No pause follows the final group.
func (p *HFProvider) EmbedBatched(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if batchSize <= 0 {
		batchSize = p.config.BatchSize
	}

	vectors := make([][]float32, 0, len(texts))
	for groupStart := 0; groupStart < len(texts); groupStart += batchSize {
		groupEnd := groupStart + batchSize
		if groupEnd > len(texts) {
			groupEnd = len(texts)
		}
		group := texts[groupStart:groupEnd]

		got, err := p.Embed(ctx, group)
		if err != nil {
			return nil, fmt.Errorf("batch starting at %d: %w", groupStart, err)
		}
		if len(got) != len(group) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrCountMismatch, len(got), len(group))
		}
		vectors = append(vectors, got...)

		p.logger.Debug(ctx, "embedded batch",
			zap.Int("batch_start", groupStart),
			zap.Int("batch_len", len(group)),
			zap.Int("total", len(texts)))

		if groupEnd < len(texts) {
			select {
			case <-time.After(p.config.BatchInterval):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (p *HFProvider) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, "embed_query", time.Since(start), 1, err)
	}()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.embedOne(ctx, text)
}

// embedOne runs the retry loop for a single text. Warm-up responses wait
// a fixed cooldown; other transient failures back off exponentially.
func (p *HFProvider) embedOne(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.retryDelay(lastErr, attempt-1)
			p.logger.Warn(ctx, "retrying embedding request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		vec, err := p.doRequest(ctx, text)
		if err == nil {
			return vec, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrProvider, p.config.MaxAttempts, lastErr)
}

// retryDelay picks the wait before retry number failures+1.
func (p *HFProvider) retryDelay(lastErr error, failures int) time.Duration {
	var warm *warmupError
	if errors.As(lastErr, &warm) {
		return p.config.WarmupDelay
	}
	delay := p.config.BackoffBase << (failures - 1)
	if delay > p.config.BackoffCap {
		delay = p.config.BackoffCap
	}
	return delay
}

// doRequest performs one inference call and parses the vector.
func (p *HFProvider) doRequest(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := p.config.BaseURL + "/models/" + p.config.Model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &retryableError{fmt.Errorf("sending request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &retryableError{fmt.Errorf("reading response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, &warmupError{fmt.Errorf("model warming up: %s", strings.TrimSpace(string(body)))}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &retryableError{fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	default:
		return nil, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// The API returns a flat array of numbers for a single input.
	var vec []float32
	if err := json.Unmarshal(body, &vec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(vec) != p.config.Dimension {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrInvalidResponse, len(vec), p.config.Dimension)
	}
	return vec, nil
}

// retryableError marks transient failures worth retrying.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// warmupError marks a model-loading response, retried after a fixed
// cooldown instead of exponential backoff.
type warmupError struct {
	err error
}

func (e *warmupError) Error() string { return e.err.Error() }
func (e *warmupError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var r *retryableError
	var w *warmupError
	return errors.As(err, &r) || errors.As(err, &w)
}
