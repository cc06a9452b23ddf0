// Package analysis runs claims through the detectors and classifies the result.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/tenderwatch/internal/detect"
	"github.com/opensource-finance/tenderwatch/internal/domain"
	"github.com/opensource-finance/tenderwatch/internal/metrics"
	"github.com/opensource-finance/tenderwatch/internal/profile"
	"github.com/opensource-finance/tenderwatch/internal/rules"
	"github.com/opensource-finance/tenderwatch/internal/scoring"
)

// EngineVersion is stamped into every analysis.
const EngineVersion = "tenderwatch-1.0"

var tracer = otel.Tracer("tenderwatch-analysis")

// Options configures a Service. Only Policy is required; every collaborator
// may be nil.
type Options struct {
	Policy  domain.Policy
	Tracker *profile.Tracker
	Rules   *rules.Engine

	Opinion    domain.SecondaryScorer
	Repository domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus

	// Clock returns the evaluation time. Defaults to time.Now.
	Clock func() time.Time

	MaxDetectorWorkers int
	BatchConcurrency   int
	AnalysisTTL        time.Duration
}

// Service is the fraud analysis entry point.
type Service struct {
	policy  domain.Policy
	tracker *profile.Tracker
	builtin *detect.Registry
	rules   *rules.Engine

	opinion domain.SecondaryScorer
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus

	clock            func() time.Time
	maxWorkers       int
	batchConcurrency int
	analysisTTL      time.Duration

	vendors keyedMutex
}

// NewService creates an analysis service.
func NewService(opts Options) *Service {
	tracker := opts.Tracker
	if tracker == nil {
		tracker = profile.NewTracker(opts.Policy.Profile)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	maxWorkers := opts.MaxDetectorWorkers
	if maxWorkers <= 0 {
		maxWorkers = 16
	}
	batch := opts.BatchConcurrency
	if batch <= 0 {
		batch = 8
	}
	ttl := opts.AnalysisTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Service{
		policy:           opts.Policy,
		tracker:          tracker,
		builtin:          detect.Builtin(opts.Policy),
		rules:            opts.Rules,
		opinion:          opts.Opinion,
		repo:             opts.Repository,
		cache:            opts.Cache,
		bus:              opts.Bus,
		clock:            clock,
		maxWorkers:       maxWorkers,
		batchConcurrency: batch,
		analysisTTL:      ttl,
	}
}

// Tracker returns the profile tracker backing the service.
func (s *Service) Tracker() *profile.Tracker { return s.tracker }

// Policy returns the effective detector policy.
func (s *Service) Policy() domain.Policy { return s.policy }

// Rules returns the custom rule engine, or nil.
func (s *Service) Rules() *rules.Engine { return s.rules }

// Registry returns the built-in detectors followed by the loaded custom rules.
func (s *Service) Registry() *detect.Registry {
	if s.rules == nil {
		return s.builtin
	}
	return s.builtin.With(s.rules.Detectors()...)
}

// Analyze scores a claim and ingests it into history.
func (s *Service) Analyze(ctx context.Context, claim domain.Claim) (*domain.ClaimAnalysis, error) {
	return s.run(ctx, claim, false)
}

// Evaluate scores a claim without ingesting it. Repeated calls against an
// unchanged history and clock produce the same signals and score.
func (s *Service) Evaluate(ctx context.Context, claim domain.Claim) (*domain.ClaimAnalysis, error) {
	return s.run(ctx, claim, true)
}

// Profile returns the current profile of a vendor.
func (s *Service) Profile(vendorID string) domain.VendorProfile {
	return s.tracker.Profile(vendorID)
}

// RiskProfile returns the behavioural risk summary of a vendor.
func (s *Service) RiskProfile(vendorID string) domain.VendorRiskProfile {
	return s.tracker.RiskProfile(vendorID, s.clock())
}

func (s *Service) run(ctx context.Context, claim domain.Claim, dryRun bool) (*domain.ClaimAnalysis, error) {
	start := time.Now()
	if err := claim.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "analysis.Analyze", trace.WithAttributes(
		attribute.String("claim.id", claim.ID),
		attribute.String("claim.vendor_id", claim.VendorID),
		attribute.Bool("analysis.dry_run", dryRun),
	))
	defer span.End()

	// Snapshot and ingest must not interleave with another claim from the same vendor.
	if !dryRun {
		unlock := s.vendors.Lock(claim.VendorID)
		defer unlock()
		if s.tracker.Contains(claim.ID) {
			return nil, fmt.Errorf("claim %s: %w", claim.ID, domain.ErrDuplicateClaim)
		}
	}

	asOf := s.clock()
	snap := s.tracker.Snapshot(claim, asOf)
	in := &detect.Input{Claim: claim, Snapshot: snap, AsOf: asOf}

	detectStart := time.Now()
	detectors := s.Registry().Detectors()
	signals, failures := s.runDetectors(ctx, detectors, in)
	detectMs := time.Since(detectStart).Milliseconds()

	score := scoring.Aggregate(signals)
	class := scoring.Classify(score, s.policy.Classification)

	analysis := &domain.ClaimAnalysis{
		ID:             uuid.New().String(),
		ClaimID:        claim.ID,
		VendorID:       claim.VendorID,
		Amount:         claim.Amount,
		Signals:        signals,
		TotalScore:     score.Total,
		RiskLevel:      class.RiskLevel,
		Recommendation: class.Recommendation,
		Reasoning:      scoring.Reasoning(signals),
		Summary:        scoring.Summary(score.Total, class),
		AnalyzedAt:     asOf,
		DryRun:         dryRun,
		Metadata: domain.AnalysisMetadata{
			TraceID:        TraceIDFromContext(ctx),
			DetectorsRun:   len(detectors),
			DetectorErrors: failures,
			DetectMs:       detectMs,
			EngineVersion:  EngineVersion,
			ProfileVersion: snap.Profile.Version,
			HistorySize:    len(snap.History),
		},
	}

	if !dryRun {
		prof, err := s.tracker.Ingest(claim, asOf)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		analysis.Metadata.ProfileVersion = prof.Version
	}

	elapsed := time.Since(start)
	analysis.Metadata.TotalMs = elapsed.Milliseconds()
	metrics.ObserveAnalysis(analysis, elapsed)

	span.SetAttributes(
		attribute.Float64("analysis.score", analysis.TotalScore),
		attribute.String("analysis.recommendation", string(analysis.Recommendation)),
	)

	slog.Info("claim analysed",
		"claim_id", claim.ID,
		"vendor_id", claim.VendorID,
		"score", analysis.TotalScore,
		"risk_level", analysis.RiskLevel,
		"recommendation", analysis.Recommendation,
		"signals", len(signals),
		"detector_errors", failures,
		"dry_run", dryRun,
		"duration_ms", analysis.Metadata.TotalMs,
	)

	return analysis, nil
}

// runDetectors evaluates every detector concurrently and returns the signals
// in detector order.
func (s *Service) runDetectors(ctx context.Context, detectors []detect.Detector, in *detect.Input) ([]domain.Signal, int) {
	results := make([]*domain.Signal, len(detectors))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, s.maxWorkers)

	for i, d := range detectors {
		wg.Add(1)
		go func(idx int, d detect.Detector) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = safeDetect(ctx, d, in)
		}(i, d)
	}
	wg.Wait()

	signals := make([]domain.Signal, 0, len(results))
	failures := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Failed() {
			failures++
		}
		signals = append(signals, *r)
	}
	return signals, failures
}

// safeDetect runs one detector, replacing errors and panics with a neutral signal.
func safeDetect(ctx context.Context, d detect.Detector, in *detect.Input) (sig *domain.Signal) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "detector panicked",
				"signal_type", d.Type(),
				"claim_id", in.Claim.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			sig = failedSignal(d.Type(), fmt.Errorf("panic: %v", r))
		}
	}()

	s, err := d.Detect(in)
	if err != nil {
		slog.WarnContext(ctx, "detector failed",
			"signal_type", d.Type(),
			"claim_id", in.Claim.ID,
			"error", err,
		)
		return failedSignal(d.Type(), err)
	}
	return s
}

func failedSignal(t domain.SignalType, err error) *domain.Signal {
	return &domain.Signal{
		Type:        t,
		Name:        detect.Name(t),
		Severity:    domain.SeverityLow,
		Description: fmt.Sprintf("%s analysis unavailable", detect.Name(t)),
		Evidence: map[string]any{
			"error":  domain.EvidenceErrorTag,
			"detail": err.Error(),
		},
	}
}

type traceIDKey struct{}

// WithTraceID attaches a request trace ID recorded in analysis metadata.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext returns the trace ID set by WithTraceID, falling back
// to the active span's trace ID.
func TraceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey{}).(string); ok && v != "" {
		return v
	}
	if sc := trace.SpanContextFromContext(ctx); sc.TraceID().IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// keyedMutex hands out one mutex per key and forgets keys no one holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
