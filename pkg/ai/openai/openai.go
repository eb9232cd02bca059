package openai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chatgraph/chatgraph/pkg/ai"
	"github.com/chatgraph/chatgraph/pkg/logger"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Wire shape of the expected extraction output. Only the required members
// are declared; the contract explicitly allows additional node properties,
// so the schema generated from these types must stay open.
type outputNode struct {
	ID    string `json:"id" jsonschema_description:"Unique node id"`
	Label string `json:"label" jsonschema_description:"Node category tag; User for the two chat participants"`
}

type outputRelation struct {
	Start      string         `json:"start" jsonschema_description:"Start node id"`
	End        string         `json:"end" jsonschema_description:"End node id"`
	Type       string         `json:"type" jsonschema_description:"Relationship type"`
	Properties map[string]any `json:"properties,omitempty" jsonschema_description:"Flat scalar or scalar-list properties"`
}

type outputDocument struct {
	Nodes     []outputNode     `json:"nodes" jsonschema_description:"Entities identified in the chat history"`
	Relations []outputRelation `json:"relations" jsonschema_description:"Relationships between the entities"`
}

// GraphOpenAIClient is an ExtractionClient for OpenAI-compatible chat
// completion endpoints. A JSON schema response format nudges the model
// towards the expected document shape without forbidding the extra node
// properties the contract invites.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	model string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	chatClient *openai.Client
}

// NewGraphOpenAIClientParams defines the configuration parameters for
// creating a new GraphOpenAIClient. BaseURL may point at any
// OpenAI-compatible endpoint.
type NewGraphOpenAIClientParams struct {
	Model   string
	BaseURL string
	APIKey  string
}

// NewGraphOpenAIClient creates and returns a new GraphOpenAIClient
// configured with the provided parameters.
func NewGraphOpenAIClient(params NewGraphOpenAIClientParams) (*GraphOpenAIClient, error) {
	if params.APIKey == "" {
		return nil, fmt.Errorf("openai client requires an API key")
	}

	options := []option.RequestOption{
		option.WithAPIKey(params.APIKey),
	}
	if params.BaseURL != "" {
		options = append(options, option.WithBaseURL(params.BaseURL))
	}
	client := openai.NewClient(options...)

	return &GraphOpenAIClient{
		model:      params.Model,
		chatClient: &client,
	}, nil
}

// GenerateCompletion sends a single-turn prompt to the chat model and
// returns the generated completion as text.
func (c *GraphOpenAIClient) GenerateCompletion(
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

	msgs := []openai.ChatCompletionMessageParamUnion{}
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "relationship_graph",
		Description: openai.String("Knowledge graph extracted from a two-person chat history."),
		Schema:      ai.GenerateOpenSchema(outputDocument{}),
		Strict:      openai.Bool(false),
	}

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	}

	start := time.Now()
	response, err := c.chatClient.Chat.Completions.New(ctx, body)
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("Model call failed", "model", options.Model, "duration", elapsed, "err", err)
		return "", err
	}
	logger.Info("Model call completed", "model", options.Model, "duration", elapsed)

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   elapsed.Milliseconds(),
	})

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return response.Choices[0].Message.Content, nil
}

func (c *GraphOpenAIClient) modifyMetrics(delta ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.InputTokens += delta.InputTokens
	c.metrics.OutputTokens += delta.OutputTokens
	c.metrics.TotalTokens += delta.TotalTokens
	c.metrics.DurationMs += delta.DurationMs
}

// ResetMetrics clears the accumulated usage metrics.
func (c *GraphOpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}

// GetMetrics returns the accumulated usage metrics.
func (c *GraphOpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}
