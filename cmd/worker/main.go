package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkoukk/tiktoken-go"

	"github.com/chatgraph/chatgraph/internal/ingest"
	"github.com/chatgraph/chatgraph/internal/scheduler"
	"github.com/chatgraph/chatgraph/internal/util"
	"github.com/chatgraph/chatgraph/pkg/ai"
	"github.com/chatgraph/chatgraph/pkg/ai/gemini"
	"github.com/chatgraph/chatgraph/pkg/ai/openai"
	"github.com/chatgraph/chatgraph/pkg/common"
	"github.com/chatgraph/chatgraph/pkg/extract"
	"github.com/chatgraph/chatgraph/pkg/graph"
	"github.com/chatgraph/chatgraph/pkg/graph/neo4j"
	"github.com/chatgraph/chatgraph/pkg/logger"
	"github.com/chatgraph/chatgraph/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	masterID := util.GetEnv("MASTER_ID")
	if masterID == "" {
		logger.Fatal("MASTER_ID is required")
	}

	// Local chat archive
	archive, err := ingest.OpenStore(util.GetEnvString("CHAT_DB", "chatgraph.db"))
	if err != nil {
		logger.Fatal("Could not open chat archive", "err", err)
	}
	defer archive.Close()

	// Graph store
	graphStore, err := neo4j.NewGraphNeo4jStore(ctx, neo4j.NewGraphNeo4jStoreParams{
		URI:      util.GetEnvString("NEO4J_URI", "bolt://localhost:7687"),
		Username: util.GetEnvString("NEO4J_USER", "neo4j"),
		Password: util.GetEnv("NEO4J_PASSWORD"),
		Database: util.GetEnv("NEO4J_DATABASE"),
	})
	if err != nil {
		logger.Fatal("Could not connect to graph store", "err", err)
	}
	defer graphStore.Close(ctx)

	aiClient := newExtractionClient()

	processor := extract.NewPairProcessor(extract.NewPairProcessorParams{
		Client:        aiClient,
		Merger:        graph.NewMerger(graphStore),
		SampleOptions: sampleOptions(),
		MaxRetries:    util.GetEnvInt("EXTRACTION_MAX_RETRIES", 10),
	})

	sched := scheduler.NewScheduler(scheduler.NewSchedulerParams{
		Workers:   util.GetEnvInt("WORKER_COUNT", 3),
		Processor: processor,
	})

	master, ok, err := archive.Profile(masterID)
	if err != nil {
		logger.Fatal("Could not load master profile", "err", err)
	}
	if !ok {
		logger.Fatal("Master profile not found in archive", "masterId", masterID)
	}

	enqueued, skipped := enqueueContacts(archive, sched, master)
	logger.Info("Enqueued contacts", "enqueued", enqueued, "skipped", skipped)

	summary := sched.Run(ctx)

	metrics := aiClient.GetMetrics()
	logger.Info("Model usage", "inputTokens", metrics.InputTokens, "outputTokens", metrics.OutputTokens,
		"totalTokens", metrics.TotalTokens, "durationMs", metrics.DurationMs)

	if summary.Failed > 0 {
		os.Exit(1)
	}
}

// newExtractionClient builds the model adapter selected by
// EXTRACTION_ADAPTER. Gemini is the default; "openai" selects any
// OpenAI-compatible endpoint.
func newExtractionClient() ai.ExtractionClient {
	switch util.GetEnv("EXTRACTION_ADAPTER") {
	case "openai":
		client, err := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
			Model:   util.GetEnv("AI_MODEL"),
			BaseURL: util.GetEnv("AI_URL"),
			APIKey:  util.GetEnv("AI_KEY"),
		})
		if err != nil {
			logger.Fatal("Could not create OpenAI client", "err", err)
		}
		return client
	default:
		pool, err := newKeyPool()
		if err != nil {
			logger.Fatal("Could not load API keys", "err", err)
		}
		client, err := gemini.NewGraphGeminiClient(gemini.NewGraphGeminiClientParams{
			Model: util.GetEnv("AI_MODEL"),
			Keys:  pool,
		})
		if err != nil {
			logger.Fatal("Could not create Gemini client", "err", err)
		}
		return client
	}
}

func newKeyPool() (*ai.KeyPool, error) {
	if path := util.GetEnv("AI_KEY_FILE"); path != "" {
		return ai.NewKeyPoolFromFile(path)
	}
	return ai.NewKeyPool([]string{util.GetEnv("AI_KEY")})
}

// sampleOptions wires the token budget when one is configured. The
// counter uses the cl100k_base encoding as a generic approximation.
func sampleOptions() extract.SampleOptions {
	opts := extract.SampleOptions{
		MaxDays:   util.GetEnvInt("SAMPLE_MAX_DAYS", 5),
		MaxPerDay: util.GetEnvInt("SAMPLE_MAX_PER_DAY", 100),
		MaxTokens: util.GetEnvInt("SAMPLE_MAX_TOKENS", 0),
	}
	if opts.MaxTokens <= 0 {
		return opts
	}

	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("Could not load token encoding, sampling without token budget", "err", err)
		opts.MaxTokens = 0
		return opts
	}
	opts.CountTokens = func(text string) int {
		return len(encoding.Encode(text, nil, nil))
	}
	return opts
}

// enqueueContacts builds one work item per contact that has both a stored
// profile and a non-empty history.
func enqueueContacts(archive *ingest.Store, sched *scheduler.Scheduler, master common.UserProfile) (int, int) {
	contactIDs, err := archive.ContactIDs()
	if err != nil {
		logger.Fatal("Could not list contacts", "err", err)
	}

	enqueued, skipped := 0, 0
	for _, contactID := range contactIDs {
		if contactID == master.ID {
			continue
		}

		contact, ok, err := archive.Profile(contactID)
		if err != nil {
			logger.Fatal("Could not load contact profile", "contactId", contactID, "err", err)
		}
		if !ok {
			logger.Debug("Skipping contact without profile", "contactId", contactID)
			skipped++
			continue
		}

		messages, err := archive.Messages(contactID)
		if err != nil {
			logger.Fatal("Could not load contact history", "contactId", contactID, "err", err)
		}
		if len(messages) == 0 {
			logger.Debug("Skipping contact without history", "contactId", contactID)
			skipped++
			continue
		}

		sched.Enqueue(common.WorkItem{
			ContactID: contactID,
			Contact:   contact,
			Master:    master,
			Messages:  messages,
		})
		enqueued++
	}
	return enqueued, skipped
}
