// Package answer generates grounded answers from retrieved document
// chunks using the Gemini generateContent API.
package answer

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

var (
	// ErrInvalidConfig indicates the generator configuration is invalid.
	ErrInvalidConfig = errors.New("answer: invalid configuration")

	// ErrEmptyQuestion indicates a blank question.
	ErrEmptyQuestion = errors.New("answer: question must not be empty")

	// ErrGenerator wraps terminal API failures after retries are
	// exhausted or on non-retryable responses.
	ErrGenerator = errors.New("answer: generation failed")

	// ErrInvalidResponse indicates a response body that does not carry
	// any candidate content.
	ErrInvalidResponse = errors.New("answer: invalid provider response")
)

// emptyAnswerFallback is returned when the model responds without text.
const emptyAnswerFallback = "I couldn't generate an answer based on the provided context."

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com"
	defaultModel       = "gemini-1.5-flash-8b"
	defaultTimeout     = 60 * time.Second
	defaultMaxAttempts = 3
	defaultRetryDelay  = 5 * time.Second
	defaultRateEvery   = time.Second

	defaultTemperature     = 1.0
	defaultTopK            = 64
	defaultTopP            = 0.95
	defaultMaxOutputTokens = 8192

	maxResponseBytes = 4 << 20
)

// ContextChunk is one retrieved chunk handed to the model as grounding
// context.
type ContextChunk struct {
	DocumentName string
	Text         string
}

// Generator produces an answer to a question from retrieved chunks.
type Generator interface {
	Generate(ctx context.Context, question string, chunks []ContextChunk) (string, error)
}

// Config holds Gemini client settings.
type Config struct {
	// BaseURL is the API root. Default: the public Gemini endpoint.
	BaseURL string

	// Model is the generation model name. Default: gemini-1.5-flash-8b.
	Model string

	// APIKey authenticates requests. Required.
	APIKey string

	// Timeout bounds a single HTTP request. Default: 60s.
	Timeout time.Duration

	// MaxAttempts is the total number of tries per generation,
	// including the first. Default: 3.
	MaxAttempts int

	// RetryDelay is the fixed wait between attempts. Default: 5s.
	RetryDelay time.Duration

	// RateEvery spaces successive API calls. Default: 1s.
	RateEvery time.Duration
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: max attempts must not be negative", ErrInvalidConfig)
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
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.RateEvery == 0 {
		c.RateEvery = defaultRateEvery
	}
}

// GeminiGenerator calls the Gemini generateContent endpoint.
type GeminiGenerator struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *logging.Logger
}

var _ Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a generator.
func NewGeminiGenerator(cfg Config, logger *logging.Logger) (*GeminiGenerator, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &GeminiGenerator{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(cfg.RateEvery), 1),
		logger:  logger,
	}, nil
}

// Generate builds a grounded prompt from the chunks and returns the
// model's answer. Transient failures (429, 5xx, network) are retried
// with a fixed delay; other API errors fail immediately.
func (g *GeminiGenerator) Generate(ctx context.Context, question string, chunks []ContextChunk) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}

	prompt := buildPrompt(question, chunks)
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= g.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			g.logger.Warn(ctx, "generation attempt failed, retrying",
				zap.Int("attempt", attempt-1),
				zap.Duration("retry_delay", g.config.RetryDelay),
				zap.Error(lastErr))
			select {
			case <-time.After(g.config.RetryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		answer, err := g.doRequest(ctx, prompt)
		if err == nil {
			g.logger.Debug(ctx, "generated answer",
				zap.String("model", g.config.Model),
				zap.Int("context_chunks", len(chunks)),
				zap.Duration("duration", time.Since(start)))
			return answer, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %v", ErrGenerator, g.config.MaxAttempts, lastErr)
}

// buildPrompt formats retrieved chunks into a source-labeled context
// block followed by the question and answering instructions.
func buildPrompt(question string, chunks []ContextChunk) string {
	blocks := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		blocks = append(blocks, fmt.Sprintf("Source: %s\nContent: %s", chunk.DocumentName, chunk.Text))
	}
	contextText := strings.Join(blocks, "\n\n")

	return fmt.Sprintf(`Context:
%s

Question: %s

Based on the provided context, please answer the question. If the answer cannot be found in the context, please say so. Be specific and cite relevant information from the sources when possible.`, contextText, question)
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopK             int     `json:"topK"`
	TopP             float64 `json:"topP"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// doRequest performs one generateContent call.
func (g *GeminiGenerator) doRequest(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: prompt}}},
		},
		GenerationConfig: generationConfig{
			Temperature:      defaultTemperature,
			TopK:             defaultTopK,
			TopP:             defaultTopP,
			MaxOutputTokens:  defaultMaxOutputTokens,
			ResponseMimeType: "text/plain",
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.config.BaseURL, g.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Key travels in a header so request URLs stay safe to log.
	httpReq.Header.Set("X-Goog-Api-Key", g.config.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("reading response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// Parsed below.
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &retryableError{err: fmt.Errorf("rate limited (429)")}
	case resp.StatusCode >= 500:
		return "", &retryableError{err: fmt.Errorf("server error (%d)", resp.StatusCode)}
	default:
		var errResp apiError
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("%w: API error (%d): %s", ErrGenerator, resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("%w: API error (%d)", ErrGenerator, resp.StatusCode)
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("%w: parsing body: %v", ErrInvalidResponse, err)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}

	answer := strings.TrimSpace(genResp.Candidates[0].Content.Parts[0].Text)
	if answer == "" {
		return emptyAnswerFallback, nil
	}
	return answer, nil
}

// retryableError marks transient failures worth another attempt.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
