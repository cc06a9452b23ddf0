package analysis

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/tenderwatch/internal/domain"
	"github.com/opensource-finance/tenderwatch/internal/metrics"
	"github.com/opensource-finance/tenderwatch/internal/repository"
	"github.com/opensource-finance/tenderwatch/internal/scoring"
)

// Submit analyses and ingests a claim, then hands the result to the
// configured collaborators. Collaborator failures are logged and counted but
// never change the returned analysis or fail the call.
func (s *Service) Submit(ctx context.Context, claim domain.Claim) (*domain.ClaimAnalysis, error) {
	ctx, span := tracer.Start(ctx, "analysis.Submit", trace.WithAttributes(
		attribute.String("claim.id", claim.ID),
	))
	defer span.End()

	a, err := s.Analyze(ctx, claim)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.secondOpinion(ctx, claim, a)
	s.persist(ctx, claim, a)
	s.cacheAnalysis(ctx, a)
	s.publish(ctx, a)

	return a, nil
}

// BatchResult is the outcome for one claim of a batch.
type BatchResult struct {
	Analysis *domain.ClaimAnalysis `json:"analysis,omitempty"`
	Err      error                 `json:"-"`
}

// SubmitBatch submits claims concurrently. Claims of different vendors run in
// parallel; claims of one vendor run in submission-time order so each sees
// its predecessors. Results are returned in input order.
func (s *Service) SubmitBatch(ctx context.Context, claims []domain.Claim) []BatchResult {
	return s.batch(ctx, claims, s.Submit)
}

// EvaluateBatch evaluates claims against the current history without
// ingesting any of them.
func (s *Service) EvaluateBatch(ctx context.Context, claims []domain.Claim) []BatchResult {
	return s.batch(ctx, claims, s.Evaluate)
}

func (s *Service) batch(ctx context.Context, claims []domain.Claim, fn func(context.Context, domain.Claim) (*domain.ClaimAnalysis, error)) []BatchResult {
	results := make([]BatchResult, len(claims))

	groups := make(map[string][]int)
	var order []string
	for i, c := range claims {
		if _, ok := groups[c.VendorID]; !ok {
			order = append(order, c.VendorID)
		}
		groups[c.VendorID] = append(groups[c.VendorID], i)
	}

	var g errgroup.Group
	g.SetLimit(s.batchConcurrency)

	for _, vendorID := range order {
		idx := groups[vendorID]
		slices.SortStableFunc(idx, func(a, b int) int {
			return claims[a].SubmittedAt.Compare(claims[b].SubmittedAt)
		})
		g.Go(func() error {
			for _, i := range idx {
				if err := ctx.Err(); err != nil {
					results[i] = BatchResult{Err: err}
					continue
				}
				a, err := fn(ctx, claims[i])
				results[i] = BatchResult{Analysis: a, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Hydrate rebuilds in-memory state from the repository: claim history in
// ingestion order, externally supplied success rates and enabled rules.
func (s *Service) Hydrate(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	claims, err := s.repo.ListClaims(ctx)
	if err != nil {
		return fmt.Errorf("hydrate claims: %w", err)
	}
	now := s.clock()
	replayed := 0
	for _, c := range claims {
		if _, err := s.tracker.Ingest(*c, now); err != nil {
			if errors.Is(err, domain.ErrDuplicateClaim) {
				continue
			}
			slog.Warn("skipping stored claim", "claim_id", c.ID, "error", err)
			continue
		}
		replayed++
	}

	rates, err := s.repo.ListSuccessRates(ctx)
	if err != nil {
		return fmt.Errorf("hydrate success rates: %w", err)
	}
	// Sorted so the log line and rate application are reproducible.
	vendors := make([]string, 0, len(rates))
	for v := range rates {
		vendors = append(vendors, v)
	}
	slices.Sort(vendors)
	for _, v := range vendors {
		s.tracker.SetSuccessRate(v, rates[v])
	}

	loaded := 0
	if s.rules != nil {
		configs, err := s.repo.ListRuleConfigs(ctx)
		if err != nil {
			return fmt.Errorf("hydrate rules: %w", err)
		}
		if err := s.rules.ReloadRules(configs); err != nil {
			return fmt.Errorf("hydrate rules: %w", err)
		}
		loaded = s.rules.RulesCount()
	}

	slog.Info("state hydrated",
		"claims", replayed,
		"success_rates", len(rates),
		"rules", loaded,
	)
	return nil
}

// SetSuccessRate records a vendor's approval rate and persists it when a
// repository is configured. The clamped rate is returned.
func (s *Service) SetSuccessRate(ctx context.Context, vendorID string, rate float64) (float64, error) {
	if vendorID == "" {
		return 0, &domain.ValidationError{Field: "vendorId", Reason: "is required"}
	}
	rate = s.tracker.SetSuccessRate(vendorID, rate)
	if s.repo != nil {
		if err := s.repo.SaveSuccessRate(ctx, vendorID, rate); err != nil {
			metrics.CollaboratorFailed(metrics.CollaboratorRepository)
			return rate, fmt.Errorf("persist success rate: %w", err)
		}
	}
	return rate, nil
}

// GetAnalysis reads an analysis back by ID, cache first.
func (s *Service) GetAnalysis(ctx context.Context, analysisID string) (*domain.ClaimAnalysis, error) {
	if s.cache != nil {
		a, err := s.cache.GetAnalysis(ctx, analysisID)
		if err != nil {
			metrics.CollaboratorFailed(metrics.CollaboratorCache)
			slog.WarnContext(ctx, "cache read failed", "analysis_id", analysisID, "error", err)
		} else if a != nil {
			return a, nil
		}
	}
	if s.repo == nil {
		return nil, fmt.Errorf("analysis %s: %w", analysisID, repository.ErrNotFound)
	}
	return s.repo.GetAnalysis(ctx, analysisID)
}

func (s *Service) secondOpinion(ctx context.Context, claim domain.Claim, a *domain.ClaimAnalysis) {
	if s.opinion == nil {
		return
	}

	flags := make([]domain.SignalType, 0, len(a.Signals))
	for _, sig := range a.Signals {
		if !sig.Failed() {
			flags = append(flags, sig.Type)
		}
	}
	slices.SortFunc(flags, func(x, y domain.SignalType) int { return cmp.Compare(x, y) })
	flags = slices.Compact(flags)

	op, err := s.askOpinion(ctx, domain.OpinionRequest{
		Claim:     claim,
		CoreScore: a.TotalScore,
		Flags:     flags,
		Reasoning: a.Reasoning,
	})
	if err != nil || op == nil {
		metrics.CollaboratorFailed(metrics.CollaboratorOpinion)
		slog.WarnContext(ctx, "second opinion unavailable",
			"claim_id", claim.ID,
			"provider", s.opinion.Name(),
			"error", err,
		)
		a.Metadata.SecondOpinion = "unavailable"
		return
	}

	op.BlendedScore = scoring.Blend(a.TotalScore, op.Probability, s.policy.Blend)
	if op.Provider == "" {
		op.Provider = s.opinion.Name()
	}
	a.SecondOpinion = op
	a.Metadata.SecondOpinion = "ok"
}

// askOpinion calls the secondary scorer, turning a panic into an error.
func (s *Service) askOpinion(ctx context.Context, req domain.OpinionRequest) (op *domain.SecondOpinion, err error) {
	defer func() {
		if r := recover(); r != nil {
			op, err = nil, fmt.Errorf("secondary scorer panicked: %v", r)
		}
	}()
	return s.opinion.Score(ctx, req)
}

func (s *Service) persist(ctx context.Context, claim domain.Claim, a *domain.ClaimAnalysis) {
	if s.repo == nil {
		return
	}
	if err := s.repo.SaveClaim(ctx, &claim); err != nil {
		metrics.CollaboratorFailed(metrics.CollaboratorRepository)
		slog.ErrorContext(ctx, "failed to persist claim", "claim_id", claim.ID, "error", err)
	}
	if err := s.repo.SaveAnalysis(ctx, a); err != nil {
		metrics.CollaboratorFailed(metrics.CollaboratorRepository)
		slog.ErrorContext(ctx, "failed to persist analysis", "analysis_id", a.ID, "error", err)
	}
}

func (s *Service) cacheAnalysis(ctx context.Context, a *domain.ClaimAnalysis) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetAnalysis(ctx, a, s.analysisTTL); err != nil {
		metrics.CollaboratorFailed(metrics.CollaboratorCache)
		slog.WarnContext(ctx, "failed to cache analysis", "analysis_id", a.ID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, a *domain.ClaimAnalysis) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(a)
	if err == nil {
		err = s.bus.Publish(ctx, domain.TopicAnalysisCompleted, payload)
	}
	if err != nil {
		metrics.CollaboratorFailed(metrics.CollaboratorBus)
		slog.WarnContext(ctx, "failed to publish analysis", "analysis_id", a.ID, "error", err)
	}

	if !a.Recommendation.NeedsAttention() {
		return
	}
	report, err := json.Marshal(scoring.BuildReport(a))
	if err == nil {
		err = s.bus.Publish(ctx, domain.TopicAlert, report)
	}
	if err != nil {
		metrics.CollaboratorFailed(metrics.CollaboratorBus)
		slog.WarnContext(ctx, "failed to publish alert", "analysis_id", a.ID, "error", err)
	}
}
