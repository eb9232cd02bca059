package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/chatgraph/chatgraph/pkg/ai"
	"github.com/chatgraph/chatgraph/pkg/common"
)

const validResponse = `{"nodes":[{"id":"wxid_a","label":"User"},{"id":"wxid_b","label":"User"}],"relations":[{"start":"wxid_a","end":"wxid_b","type":"Friend","properties":{}}]}`

// scriptedClient replays a fixed sequence of responses and records every
// prompt it receives.
type scriptedClient struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (c *scriptedClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	index := c.calls
	c.calls++
	c.prompts = append(c.prompts, prompt)

	if index < len(c.errs) && c.errs[index] != nil {
		return "", c.errs[index]
	}
	if index < len(c.responses) {
		return c.responses[index], nil
	}
	return c.responses[len(c.responses)-1], nil
}

func (c *scriptedClient) ResetMetrics() {}

func (c *scriptedClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

type fakeMerger struct {
	calls int
	err   error
}

func (m *fakeMerger) MergeDocument(ctx context.Context, doc *common.GraphDocument) (int, int, error) {
	m.calls++
	if m.err != nil {
		return 0, 0, m.err
	}
	return len(doc.Nodes), len(doc.Relations), nil
}

func workItem() common.WorkItem {
	return common.WorkItem{
		ContactID: "wxid_b",
		Master:    common.UserProfile{ID: "wxid_a", Nickname: "Li"},
		Contact:   common.UserProfile{ID: "wxid_b", Nickname: "Wang"},
		Messages: []common.ChatMessage{
			textMessage("wxid_a", "lunch tomorrow?", "2023-01-02"),
			textMessage("wxid_b", "sure, noon works", "2023-01-02"),
		},
	}
}

func TestPairProcessor_SuccessFirstAttempt(t *testing.T) {
	client := &scriptedClient{responses: []string{validResponse}}
	merger := &fakeMerger{}
	processor := NewPairProcessor(NewPairProcessorParams{Client: client, Merger: merger})

	res, err := processor.Process(context.Background(), workItem())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", res.Attempts)
	}
	if res.Nodes != 2 || res.Relations != 1 {
		t.Fatalf("unexpected counts %+v", res)
	}
	if merger.calls != 1 {
		t.Fatalf("expected 1 merge, got %d", merger.calls)
	}
}

func TestPairProcessor_RetriesUntilValid(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"no json at all",
		`{"nodes":[],"relations":[]}`,
		validResponse,
	}}
	processor := NewPairProcessor(NewPairProcessorParams{Client: client, Merger: &fakeMerger{}})

	res, err := processor.Process(context.Background(), workItem())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", res.Attempts)
	}
}

func TestPairProcessor_SamePromptEveryAttempt(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"garbage",
		"more garbage",
		validResponse,
	}}
	processor := NewPairProcessor(NewPairProcessorParams{Client: client, Merger: &fakeMerger{}})

	if _, err := processor.Process(context.Background(), workItem()); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	for i := 1; i < len(client.prompts); i++ {
		if client.prompts[i] != client.prompts[0] {
			t.Fatalf("prompt changed between attempts %d and 0", i)
		}
	}
}

func TestPairProcessor_RetriesExhausted(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"nodes":[],"relations":[]}`}}
	merger := &fakeMerger{}
	processor := NewPairProcessor(NewPairProcessorParams{Client: client, Merger: merger, MaxRetries: 10})

	res, err := processor.Process(context.Background(), workItem())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if res.Attempts != 10 || client.calls != 10 {
		t.Fatalf("expected exactly 10 attempts, got %d attempts and %d calls", res.Attempts, client.calls)
	}
	if merger.calls != 0 {
		t.Fatalf("invalid documents must not reach the store, got %d merges", merger.calls)
	}
}

func TestPairProcessor_ClientErrorConsumesAttempt(t *testing.T) {
	client := &scriptedClient{
		errs:      []error{errors.New("upstream unavailable"), nil},
		responses: []string{"", validResponse},
	}
	processor := NewPairProcessor(NewPairProcessorParams{Client: client, Merger: &fakeMerger{}})

	res, err := processor.Process(context.Background(), workItem())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
}

func TestPairProcessor_SinkFault(t *testing.T) {
	client := &scriptedClient{responses: []string{validResponse}}
	merger := &fakeMerger{err: errors.New("connection reset")}
	processor := NewPairProcessor(NewPairProcessorParams{Client: client, Merger: merger})

	res, err := processor.Process(context.Background(), workItem())
	var sinkErr *SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("expected SinkError, got %v", err)
	}
	if res.Attempts != 1 || client.calls != 1 {
		t.Fatalf("store failure must not consume extra attempts, got %d calls", client.calls)
	}
}

func TestPairProcessor_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &scriptedClient{responses: []string{validResponse}}
	processor := NewPairProcessor(NewPairProcessorParams{Client: client, Merger: &fakeMerger{}})

	if _, err := processor.Process(ctx, workItem()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if client.calls != 0 {
		t.Fatalf("expected no model calls after cancellation, got %d", client.calls)
	}
}

func TestCleanMessages(t *testing.T) {
	messages := []common.ChatMessage{
		textMessage("a", "  hello  ", "2023-01-02"),
		textMessage("a", "我通过了你的朋友验证请求，现在我们可以开始聊天了", "2023-01-02"),
		{SenderID: "a", Type: "media", Body: "photo.jpg"},
		textMessage("a", "", "2023-01-02"),
	}

	cleaned := CleanMessages(messages)
	if len(cleaned) != 1 {
		t.Fatalf("expected 1 surviving message, got %d", len(cleaned))
	}
	if cleaned[0].Body != "hello" {
		t.Fatalf("expected trimmed body, got %q", cleaned[0].Body)
	}
}
