package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chatgraph/chatgraph/internal/util"
	"github.com/chatgraph/chatgraph/pkg/ai"
	"github.com/chatgraph/chatgraph/pkg/logger"
)

const defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"system_instruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// GraphGeminiClient is an ExtractionClient backed by the Gemini
// generateContent REST API. Each request draws a credential from the key
// pool and is retried a fixed number of times with a fixed delay; the
// endpoint is treated as unreliable by design.
type GraphGeminiClient struct {
	model      string
	endpoint   string
	keys       *ai.KeyPool
	httpClient *http.Client

	maxRetries int
	retryDelay time.Duration

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics
}

// NewGraphGeminiClientParams defines the configuration parameters for
// creating a new GraphGeminiClient.
//
// Model is the Gemini model identifier. Keys supplies API credentials.
// Endpoint overrides the default generateContent URL (for proxies or
// regional endpoints). MaxRetries and RetryDelay bound the transport-level
// retry policy; validation-level retries are the caller's concern.
type NewGraphGeminiClientParams struct {
	Model    string
	Keys     *ai.KeyPool
	Endpoint string

	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// NewGraphGeminiClient creates and returns a new GraphGeminiClient
// configured with the provided parameters.
func NewGraphGeminiClient(params NewGraphGeminiClientParams) (*GraphGeminiClient, error) {
	if params.Keys == nil || params.Keys.Size() == 0 {
		return nil, fmt.Errorf("gemini client requires an API key pool")
	}

	model := params.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	endpoint := params.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf(defaultEndpoint, model)
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := params.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}

	return &GraphGeminiClient{
		model:      model,
		endpoint:   endpoint,
		keys:       params.Keys,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}, nil
}

// GenerateCompletion sends the prompt to the Gemini API and returns the
// generated text. Every attempt's latency and outcome is logged; after the
// attempt cap is exhausted the last error is returned.
func (c *GraphGeminiClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.GenerateOptions{
		Model:       c.model,
		Temperature: 0.3,
	}
	for _, o := range opts {
		o(&options)
	}

	req := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      options.Temperature,
			ResponseMimeType: "application/json",
		},
	}
	if len(options.SystemPrompts) > 0 {
		parts := make([]geminiPart, 0, len(options.SystemPrompts))
		for _, sp := range options.SystemPrompts {
			parts = append(parts, geminiPart{Text: sp})
		}
		req.SystemInstruction = &geminiContent{Parts: parts}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	attempt := 0
	return util.RetryWithContextDelay(ctx, c.maxRetries, c.retryDelay, func(ctx context.Context) (string, error) {
		attempt++
		start := time.Now()
		text, err := c.doRequest(ctx, options.Model, body)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("Model call failed", "model", options.Model, "attempt", attempt, "duration", elapsed, "err", err)
			return "", err
		}

		logger.Info("Model call completed", "model", options.Model, "attempt", attempt, "duration", elapsed)
		return text, nil
	})
}

func (c *GraphGeminiClient) doRequest(ctx context.Context, model string, body []byte) (string, error) {
	endpoint := c.endpoint
	if model != c.model {
		endpoint = fmt.Sprintf(defaultEndpoint, model)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.keys.Get())

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var payload geminiResponse
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return "", fmt.Errorf("failed to decode response payload: %w", err)
	}
	if len(payload.Candidates) == 0 {
		return "", fmt.Errorf("gemini API returned no candidates")
	}
	candidate := payload.Candidates[0]
	if len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("gemini API returned empty content parts (reason: %s)", candidate.FinishReason)
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  payload.UsageMetadata.PromptTokenCount,
		OutputTokens: payload.UsageMetadata.CandidatesTokenCount,
		TotalTokens:  payload.UsageMetadata.TotalTokenCount,
		DurationMs:   time.Since(start).Milliseconds(),
	})

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String(), nil
}

func (c *GraphGeminiClient) modifyMetrics(delta ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.InputTokens += delta.InputTokens
	c.metrics.OutputTokens += delta.OutputTokens
	c.metrics.TotalTokens += delta.TotalTokens
	c.metrics.DurationMs += delta.DurationMs
}

// ResetMetrics clears the accumulated usage metrics.
func (c *GraphGeminiClient) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}

// GetMetrics returns the accumulated usage metrics.
func (c *GraphGeminiClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}
