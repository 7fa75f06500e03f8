// Package llm is the Ollama client: plain generation, token
// streaming, and JSON-constrained structured output.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/diogenes-labs/diogenes/internal/config"
	"github.com/diogenes-labs/diogenes/internal/metrics"
)

// ErrModelNotFound means the requested model is not pulled on the
// Ollama host.
var ErrModelNotFound = errors.New("llm: model not found")

// Options tune one generation request. The zero value uses the client
// defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	System      string
	JSONFormat  bool
}

// Result is one completed generation.
type Result struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	GenerationTime   time.Duration
	FinishReason     string
}

// TotalTokens is prompt plus completion tokens.
func (r Result) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// Client talks to a single Ollama instance.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	defaultModel string
	temperature  float64
	maxTokens    int
	logger       *zap.Logger
}

// NewClient builds a client from config. cfg.Models.Synthesizer is the
// default model.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		defaultModel: cfg.Models.Synthesizer,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		logger:       logger,
	}
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Format  string                 `json:"format,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type generateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (c *Client) buildRequest(prompt string, opts Options, stream bool) generateRequest {
	model := opts.Model
	if model == "" {
		model = c.defaultModel
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	req := generateRequest{
		Model:  model,
		Prompt: prompt,
		System: opts.System,
		Stream: stream,
		Options: map[string]interface{}{
			"temperature": temperature,
			"num_predict": maxTokens,
		},
	}
	if opts.JSONFormat {
		req.Format = "json"
	}
	return req
}

// Generate runs one blocking generation.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (Result, error) {
	req := c.buildRequest(prompt, opts, false)
	start := time.Now()

	resp, err := c.post(ctx, "/api/generate", req)
	if err != nil {
		metrics.RecordModelCall(req.Model, "error", time.Since(start).Seconds(), 0)
		return Result{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, req.Model); err != nil {
		metrics.RecordModelCall(req.Model, "error", time.Since(start).Seconds(), 0)
		return Result{}, err
	}

	var body generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("llm: decode response: %w", err)
	}

	result := Result{
		Content:          body.Response,
		Model:            req.Model,
		PromptTokens:     body.PromptEvalCount,
		CompletionTokens: body.EvalCount,
		GenerationTime:   time.Since(start),
		FinishReason:     body.DoneReason,
	}
	metrics.RecordModelCall(req.Model, "ok", result.GenerationTime.Seconds(), result.TotalTokens())
	c.logger.Info("generation complete",
		zap.String("model", req.Model),
		zap.Int("completion_tokens", result.CompletionTokens),
		zap.Duration("took", result.GenerationTime),
	)
	return result, nil
}

// GenerateStream runs a streaming generation, invoking onToken for
// each token as it arrives. Returns the assembled result.
func (c *Client) GenerateStream(ctx context.Context, prompt string, opts Options, onToken func(token string)) (Result, error) {
	req := c.buildRequest(prompt, opts, true)
	start := time.Now()

	resp, err := c.post(ctx, "/api/generate", req)
	if err != nil {
		metrics.RecordModelCall(req.Model, "error", time.Since(start).Seconds(), 0)
		return Result{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, req.Model); err != nil {
		metrics.RecordModelCall(req.Model, "error", time.Since(start).Seconds(), 0)
		return Result{}, err
	}

	var content bytes.Buffer
	result := Result{Model: req.Model}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk generateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Response != "" {
			content.WriteString(chunk.Response)
			if onToken != nil {
				onToken(chunk.Response)
			}
		}
		if chunk.Done {
			result.PromptTokens = chunk.PromptEvalCount
			result.CompletionTokens = chunk.EvalCount
			result.FinishReason = chunk.DoneReason
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("llm: read stream: %w", err)
	}

	result.Content = content.String()
	result.GenerationTime = time.Since(start)
	metrics.RecordModelCall(req.Model, "ok", result.GenerationTime.Seconds(), result.TotalTokens())
	return result, nil
}

// GenerateStructured forces JSON output and decodes it into out. The
// system prompt embeds the expectation of a pure JSON response.
func (c *Client) GenerateStructured(ctx context.Context, prompt string, out interface{}) error {
	return c.GenerateStructuredWith(ctx, prompt, Options{}, out)
}

// GenerateStructuredWith is GenerateStructured with explicit options.
func (c *Client) GenerateStructuredWith(ctx context.Context, prompt string, opts Options, out interface{}) error {
	opts.JSONFormat = true
	if opts.System == "" {
		opts.System = "Respond ONLY with valid JSON, no other text."
	}

	result, err := c.Generate(ctx, prompt, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(result.Content), out); err != nil {
		c.logger.Error("model returned invalid JSON",
			zap.String("model", result.Model),
			zap.String("content", truncateForLog(result.Content)),
		)
		return fmt.Errorf("llm: invalid JSON output: %w", err)
	}
	return nil
}

// Ping verifies the Ollama instance is reachable by listing its models.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llm: ping failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llm: ping failed with status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response, model string) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrModelNotFound, model)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("llm: request failed with status %d", resp.StatusCode)
	}
	return nil
}

func truncateForLog(s string) string {
	if len(s) > 500 {
		return s[:500]
	}
	return s
}
