package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docchatd/internal/logging"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		Model:       "test-model",
		APIKey:      "test-key",
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		RateEvery:   time.Nanosecond,
	}
}

func testGenerator(t *testing.T, baseURL string) *GeminiGenerator {
	t.Helper()
	gen, err := NewGeminiGenerator(testConfig(baseURL), logging.NewNop())
	require.NoError(t, err)
	return gen
}

func candidateBody(text string) string {
	body, _ := json.Marshal(generateResponse{
		Candidates: []candidate{
			{Content: content{Role: "model", Parts: []part{{Text: text}}}},
		},
	})
	return string(body)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing api key", func(c *Config) { c.APIKey = "" }, true},
		{"negative attempts", func(c *Config) { c.MaxAttempts = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("http://localhost")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewGeminiGeneratorDefaults(t *testing.T) {
	gen, err := NewGeminiGenerator(Config{APIKey: "k"}, nil)
	require.NoError(t, err)

	assert.Equal(t, defaultBaseURL, gen.config.BaseURL)
	assert.Equal(t, "gemini-1.5-flash-8b", gen.config.Model)
	assert.Equal(t, 3, gen.config.MaxAttempts)
	assert.Equal(t, 5*time.Second, gen.config.RetryDelay)
	assert.NotNil(t, gen.limiter)
}

func TestGenerate(t *testing.T) {
	var calls atomic.Int32
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 1)
		gotPrompt = req.Contents[0].Parts[0].Text

		fmt.Fprint(w, candidateBody("  The revenue grew 12%.\n"))
	}))
	defer server.Close()

	gen := testGenerator(t, server.URL)
	chunks := []ContextChunk{
		{DocumentName: "q3-report.pdf", Text: "Revenue grew 12% in Q3."},
		{DocumentName: "notes.md", Text: "Growth driven by new accounts."},
	}

	answer, err := gen.Generate(context.Background(), "How did revenue change?", chunks)
	require.NoError(t, err)
	assert.Equal(t, "The revenue grew 12%.", answer)
	assert.Equal(t, int32(1), calls.Load())

	assert.Contains(t, gotPrompt, "Source: q3-report.pdf\nContent: Revenue grew 12% in Q3.")
	assert.Contains(t, gotPrompt, "Source: notes.md\nContent: Growth driven by new accounts.")
	assert.Contains(t, gotPrompt, "Question: How did revenue change?")
	assert.Contains(t, gotPrompt, "Based on the provided context")
}

func TestGenerateEmptyQuestion(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	gen := testGenerator(t, server.URL)
	_, err := gen.Generate(context.Background(), "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Equal(t, int32(0), calls.Load())
}

func TestGenerateRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			fmt.Fprint(w, candidateBody("answer"))
		}
	}))
	defer server.Close()

	gen := testGenerator(t, server.URL)
	answer, err := gen.Generate(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "answer", answer)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerateClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	}))
	defer server.Close()

	gen := testGenerator(t, server.URL)
	_, err := gen.Generate(context.Background(), "q", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerator)
	assert.Contains(t, err.Error(), "API key not valid")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	gen := testGenerator(t, server.URL)
	_, err := gen.Generate(context.Background(), "q", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerator)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerateNoCandidates(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer server.Close()

	gen := testGenerator(t, server.URL)
	_, err := gen.Generate(context.Background(), "q", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateEmptyTextFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, candidateBody("  \n "))
	}))
	defer server.Close()

	gen := testGenerator(t, server.URL)
	answer, err := gen.Generate(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, emptyAnswerFallback, answer)
}

func TestGenerateCancelDuringRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RetryDelay = 5 * time.Second
	gen, err := NewGeminiGenerator(cfg, logging.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = gen.Generate(ctx, "q", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt("What changed?", []ContextChunk{
		{DocumentName: "a.txt", Text: "first"},
		{DocumentName: "b.txt", Text: "second"},
	})

	assert.True(t, strings.HasPrefix(prompt, "Context:\n"))
	assert.Contains(t, prompt, "Source: a.txt\nContent: first\n\nSource: b.txt\nContent: second")
	assert.Contains(t, prompt, "\n\nQuestion: What changed?\n")
}
