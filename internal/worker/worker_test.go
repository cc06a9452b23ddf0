package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/tenderwatch/internal/analysis"
	"github.com/opensource-finance/tenderwatch/internal/bus"
	"github.com/opensource-finance/tenderwatch/internal/domain"
)

var submittedAt = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

func queueClaim(t *testing.T, b domain.EventBus, msg domain.ClaimMessage) {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal claim message: %v", err)
	}
	if err := b.Publish(context.Background(), domain.TopicClaimSubmitted, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func waitForStats(t *testing.T, w *Worker, cond func(Stats) bool) Stats {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := w.GetStats(); cond(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	return w.GetStats()
}

func testClaim(id string, amount float64) domain.Claim {
	return domain.Claim{
		ID:          id,
		VendorID:    "vendor-queue",
		Amount:      amount,
		Category:    "Road Construction",
		OfficialID:  "official-1",
		InvoiceID:   "inv-" + id,
		SubmittedAt: submittedAt,
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		svc := analysis.NewService(analysis.Options{Policy: domain.DefaultPolicy()})
		w := NewWorker(eventBus, svc)

		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}
		if stats.Topics[0] != domain.TopicClaimSubmitted {
			t.Errorf("expected topic %s, got %s", domain.TopicClaimSubmitted, stats.Topics[0])
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessClaim", func(t *testing.T) {
		svc := analysis.NewService(analysis.Options{
			Policy: domain.DefaultPolicy(),
			Bus:    eventBus,
			Clock:  func() time.Time { return submittedAt },
		})
		w := NewWorker(eventBus, svc)
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		var mu sync.Mutex
		var completed *domain.ClaimAnalysis
		eventBus.Subscribe(context.Background(), domain.TopicAnalysisCompleted, func(ctx context.Context, msg *domain.Message) error {
			var a domain.ClaimAnalysis
			if err := json.Unmarshal(msg.Payload, &a); err != nil {
				return err
			}
			mu.Lock()
			completed = &a
			mu.Unlock()
			return nil
		})

		queueClaim(t, eventBus, domain.ClaimMessage{Claim: testClaim("claim-q-1", 52000), TraceID: "trace-001"})

		stats := waitForStats(t, w, func(s Stats) bool { return s.Processed == 1 })
		if stats.Processed != 1 {
			t.Fatalf("expected 1 processed claim, got %+v", stats)
		}
		if !svc.Tracker().Contains("claim-q-1") {
			t.Error("expected claim to be ingested into the vendor profile")
		}

		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			done := completed != nil
			mu.Unlock()
			if done {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}

		mu.Lock()
		defer mu.Unlock()
		if completed == nil {
			t.Fatal("expected analysis to be published")
		}
		if completed.ClaimID != "claim-q-1" {
			t.Errorf("expected claim 'claim-q-1', got '%s'", completed.ClaimID)
		}
		if completed.Metadata.TraceID != "trace-001" {
			t.Errorf("expected traceID 'trace-001', got '%s'", completed.Metadata.TraceID)
		}
	})

	t.Run("DuplicateIsNotFailure", func(t *testing.T) {
		svc := analysis.NewService(analysis.Options{Policy: domain.DefaultPolicy()})
		w := NewWorker(eventBus, svc)
		w.Start()
		defer w.Stop()

		c := testClaim("claim-dup", 61000)
		queueClaim(t, eventBus, domain.ClaimMessage{Claim: c})
		queueClaim(t, eventBus, domain.ClaimMessage{Claim: c})

		stats := waitForStats(t, w, func(s Stats) bool { return s.Processed+s.Duplicates == 2 })
		if stats.Processed != 1 || stats.Duplicates != 1 || stats.Failed != 0 {
			t.Errorf("expected 1 processed and 1 duplicate, got %+v", stats)
		}
	})

	t.Run("BadPayloadCountsAsFailure", func(t *testing.T) {
		svc := analysis.NewService(analysis.Options{Policy: domain.DefaultPolicy()})
		w := NewWorker(eventBus, svc)
		w.Start()
		defer w.Stop()

		eventBus.Publish(context.Background(), domain.TopicClaimSubmitted, []byte("{not json"))
		queueClaim(t, eventBus, domain.ClaimMessage{Claim: domain.Claim{ID: "claim-invalid"}})

		stats := waitForStats(t, w, func(s Stats) bool { return s.Failed == 2 })
		if stats.Failed != 2 || stats.Processed != 0 {
			t.Errorf("expected 2 failures, got %+v", stats)
		}
	})
}
