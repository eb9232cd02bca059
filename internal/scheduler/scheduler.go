// Package scheduler runs extraction work items across a bounded pool of
// workers, deduplicating contact ids so each pair is processed at most
// once per run.
package scheduler

import (
	"context"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/chatgraph/chatgraph/pkg/common"
	"github.com/chatgraph/chatgraph/pkg/extract"
	"github.com/chatgraph/chatgraph/pkg/logger"
)

const defaultWorkerCount = 3

// Processor handles one work item end to end.
type Processor interface {
	Process(ctx context.Context, item common.WorkItem) (extract.Result, error)
}

// Summary reports what happened during one run.
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
}

// Scheduler fans enqueued work items out to a fixed number of workers.
// Enqueue everything first, then call Run once.
type Scheduler struct {
	workers   int
	processor Processor

	mu        sync.Mutex
	items     []common.WorkItem
	claimed   map[string]struct{}
	processed map[string]struct{}
	summary   Summary
}

type NewSchedulerParams struct {
	Workers   int
	Processor Processor
}

func NewScheduler(params NewSchedulerParams) *Scheduler {
	workers := params.Workers
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	return &Scheduler{
		workers:   workers,
		processor: params.Processor,
		claimed:   make(map[string]struct{}),
		processed: make(map[string]struct{}),
	}
}

// Enqueue adds a work item for the next run. Duplicate contact ids may be
// enqueued; deduplication happens when workers claim items.
func (s *Scheduler) Enqueue(item common.WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
}

// Run drains the queue with the configured number of workers and blocks
// until every item is handled or the context is cancelled. Item failures
// are counted and logged, never propagated: one bad pair must not stop
// the run.
func (s *Scheduler) Run(ctx context.Context) Summary {
	runID, _ := gonanoid.New()

	s.mu.Lock()
	items := s.items
	s.items = nil
	s.summary = Summary{}
	s.mu.Unlock()

	queue := make(chan common.WorkItem, len(items))
	for _, item := range items {
		queue <- item
	}
	close(queue)

	logger.Info("Starting extraction run", "runId", runID, "items", len(items), "workers", s.workers)

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gCtx.Done():
					return nil
				case item, ok := <-queue:
					if !ok {
						return nil
					}
					s.handle(gCtx, runID, item)
				}
			}
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	summary := s.summary
	s.mu.Unlock()

	logger.Info("Extraction run finished", "runId", runID,
		"processed", summary.Processed, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary
}

func (s *Scheduler) handle(ctx context.Context, runID string, item common.WorkItem) {
	s.mu.Lock()
	if _, done := s.processed[item.ContactID]; done {
		s.summary.Skipped++
		s.mu.Unlock()
		logger.Debug("Skipping already processed contact", "runId", runID, "contactId", item.ContactID)
		return
	}
	if _, inFlight := s.claimed[item.ContactID]; inFlight {
		s.summary.Skipped++
		s.mu.Unlock()
		logger.Debug("Skipping contact claimed by another worker", "runId", runID, "contactId", item.ContactID)
		return
	}
	s.claimed[item.ContactID] = struct{}{}
	s.mu.Unlock()

	res, err := s.processor.Process(ctx, item)
	if err != nil {
		s.mu.Lock()
		s.summary.Failed++
		s.mu.Unlock()
		logger.Error("Failed to process contact", "runId", runID, "contactId", item.ContactID,
			"attempts", res.Attempts, "error", err)
		return
	}

	s.mu.Lock()
	s.processed[item.ContactID] = struct{}{}
	s.summary.Processed++
	s.mu.Unlock()
	logger.Info("Processed contact", "runId", runID, "contactId", item.ContactID,
		"attempts", res.Attempts, "nodes", res.Nodes, "relations", res.Relations)
}
