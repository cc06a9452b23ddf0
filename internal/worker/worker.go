// Package worker analyses claims queued on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/tenderwatch/internal/analysis"
	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// Submitter scores and records a claim.
type Submitter interface {
	Submit(ctx context.Context, claim domain.Claim) (*domain.ClaimAnalysis, error)
}

// Worker consumes TopicClaimSubmitted and submits each claim for analysis.
type Worker struct {
	bus       domain.EventBus
	submitter Submitter

	mu            sync.Mutex
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed  atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, submitter Submitter) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		submitter: submitter,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the claim queue.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicClaimSubmitted, w.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", domain.TopicClaimSubmitted, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("worker started", "topic", domain.TopicClaimSubmitted)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()
	return w.processClaim(ctx, msg)
}

// processClaim decodes a queued claim and runs it through the full pipeline.
func (w *Worker) processClaim(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var cm domain.ClaimMessage
	if err := json.Unmarshal(msg.Payload, &cm); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse claim message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	traceID := cm.TraceID
	if traceID == "" {
		traceID = msg.ID
	}
	ctx = analysis.WithTraceID(ctx, traceID)

	a, err := w.submitter.Submit(ctx, cm.Claim)
	switch {
	case errors.Is(err, domain.ErrDuplicateClaim):
		w.duplicates.Add(1)
		slog.Warn("queued claim already analysed",
			"claim_id", cm.Claim.ID,
			"trace_id", traceID,
		)
		return nil
	case err != nil:
		w.failed.Add(1)
		slog.Error("claim analysis failed",
			"claim_id", cm.Claim.ID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	w.processed.Add(1)
	slog.Debug("queued claim processed",
		"claim_id", cm.Claim.ID,
		"analysis_id", a.ID,
		"trace_id", traceID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes and waits for in-flight claims.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()

	slog.Info("worker stopped",
		"processed", w.processed.Load(),
		"duplicates", w.duplicates.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Duplicates        int64    `json:"duplicates"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Duplicates:        w.duplicates.Load(),
		Failed:            w.failed.Load(),
	}
}
