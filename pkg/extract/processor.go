package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chatgraph/chatgraph/internal/util"
	"github.com/chatgraph/chatgraph/pkg/ai"
	"github.com/chatgraph/chatgraph/pkg/common"
	"github.com/chatgraph/chatgraph/pkg/logger"
)

const defaultMaxRetries = 10

// ErrRetriesExhausted is returned when every extraction attempt for a pair
// produced an invalid result.
var ErrRetriesExhausted = errors.New("extraction retries exhausted")

// SinkError wraps a graph-store failure. It is terminal for the attempt
// but does not consume a retry, because the extracted document itself was
// valid.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("failed to persist extracted graph: %v", e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// GraphMerger persists a validated graph document.
type GraphMerger interface {
	MergeDocument(ctx context.Context, doc *common.GraphDocument) (nodes int, relations int, err error)
}

// Result summarizes one processed pair.
type Result struct {
	Attempts  int
	Nodes     int
	Relations int
}

// PairProcessor runs the full extraction pipeline for one (master,
// contact) pair: clean, analyze, sample, prompt, extract, validate and
// merge. It is safe for concurrent use by multiple workers.
type PairProcessor struct {
	client        ai.ExtractionClient
	merger        GraphMerger
	sampleOptions SampleOptions
	maxRetries    int
}

type NewPairProcessorParams struct {
	Client        ai.ExtractionClient
	Merger        GraphMerger
	SampleOptions SampleOptions
	MaxRetries    int
}

func NewPairProcessor(params NewPairProcessorParams) *PairProcessor {
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &PairProcessor{
		client:        params.Client,
		merger:        params.Merger,
		sampleOptions: params.SampleOptions,
		maxRetries:    maxRetries,
	}
}

// Process extracts a knowledge graph for one pair and merges it into the
// graph store. The prompt is built exactly once; failed attempts retry
// extraction against the same sampled input. A SinkError means extraction
// succeeded but persistence failed.
func (p *PairProcessor) Process(ctx context.Context, item common.WorkItem) (Result, error) {
	var res Result

	prompt, err := p.buildPrompt(item)
	if err != nil {
		return res, err
	}

	var lastReason string
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempts = attempt

		raw, err := p.client.GenerateCompletion(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return res, err
			}
			lastReason = fmt.Sprintf("model call failed: %v", err)
			logger.Warn("Extraction attempt failed", "contactId", item.ContactID, "attempt", attempt, "reason", lastReason)
			continue
		}

		doc, err := ParseGraphDocument(raw)
		if err != nil {
			lastReason = err.Error()
			logger.Warn("Extraction attempt failed", "contactId", item.ContactID, "attempt", attempt, "reason", lastReason)
			continue
		}

		if ok, reason := ValidateGraphDocument(doc); !ok {
			lastReason = reason
			logger.Warn("Extraction attempt rejected", "contactId", item.ContactID, "attempt", attempt, "reason", reason)
			continue
		}

		nodes, relations, err := p.merger.MergeDocument(ctx, doc)
		if err != nil {
			return res, &SinkError{Err: err}
		}
		res.Nodes = nodes
		res.Relations = relations
		return res, nil
	}

	return res, fmt.Errorf("%w after %d attempts: %s", ErrRetriesExhausted, p.maxRetries, lastReason)
}

// buildPrompt cleans the pair's history, derives its statistics and
// renders the extraction prompt.
func (p *PairProcessor) buildPrompt(item common.WorkItem) (string, error) {
	stats := ExtractStats(CleanMessages(item.Messages))
	sample := BuildSample(stats, p.sampleOptions)

	sampleJSON, err := EncodeSample(sample)
	if err != nil {
		return "", err
	}
	masterJSON, err := json.Marshal(item.Master)
	if err != nil {
		return "", fmt.Errorf("failed to encode master profile: %w", err)
	}
	contactJSON, err := json.Marshal(item.Contact)
	if err != nil {
		return "", fmt.Errorf("failed to encode contact profile: %w", err)
	}
	monthsJSON, err := json.Marshal(stats.MonthCounts)
	if err != nil {
		return "", fmt.Errorf("failed to encode month histogram: %w", err)
	}
	wordsJSON, err := json.Marshal(stats.TopWords)
	if err != nil {
		return "", fmt.Errorf("failed to encode word ranking: %w", err)
	}

	return ai.BuildExtractionPrompt(
		string(masterJSON),
		string(contactJSON),
		string(monthsJSON),
		string(wordsJSON),
		sampleJSON,
		ai.OutputJSONExample,
	), nil
}

// CleanMessages keeps only text messages whose cleaned body is non-empty,
// with the cleaned body substituted in.
func CleanMessages(messages []common.ChatMessage) []common.ChatMessage {
	cleaned := make([]common.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Type != common.MessageTypeText {
			continue
		}
		body := util.CleanMessageBody(msg.Body)
		if body == "" {
			continue
		}
		msg.Body = body
		cleaned = append(cleaned, msg)
	}
	return cleaned
}
