package extract

import (
	"fmt"
	"strings"

	"github.com/chatgraph/chatgraph/pkg/ai"
	"github.com/chatgraph/chatgraph/pkg/common"
)

// ParseGraphDocument locates the outermost brace-delimited span in a model
// response and decodes it into a graph document. Models wrap their JSON in
// prose or markdown fences, so everything outside the braces is discarded.
func ParseGraphDocument(text string) (*common.GraphDocument, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object found in model response")
	}

	var doc common.GraphDocument
	if err := ai.UnmarshalFlexible(text[start:end+1], &doc); err != nil {
		return nil, fmt.Errorf("failed to decode model response: %w", err)
	}
	return &doc, nil
}
