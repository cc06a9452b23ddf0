package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/tenderwatch/internal/detect"
	"github.com/opensource-finance/tenderwatch/internal/domain"
	"github.com/opensource-finance/tenderwatch/internal/repository"
	"github.com/opensource-finance/tenderwatch/internal/rules"
)

// Tuesday, business hours.
var now = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func fixedClock() time.Time { return now }

func invoice(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

func newClaim(id, vendor, category string, amount float64, at time.Time) domain.Claim {
	return domain.Claim{
		ID:          id,
		VendorID:    vendor,
		Amount:      amount,
		Category:    category,
		OfficialID:  "official-" + vendor,
		InvoiceID:   invoice(id),
		SubmittedAt: at,
	}
}

func newService(t *testing.T, opts Options) *Service {
	t.Helper()
	if opts.Policy.Classification.CriticalScore == 0 {
		opts.Policy = domain.DefaultPolicy()
	}
	if opts.Clock == nil {
		opts.Clock = fixedClock
	}
	return NewService(opts)
}

func seed(t *testing.T, s *Service, claims ...domain.Claim) {
	t.Helper()
	for _, c := range claims {
		_, err := s.Analyze(context.Background(), c)
		require.NoError(t, err)
	}
}

func establishedRoadVendor() []domain.Claim {
	return []domain.Claim{
		newClaim("a-1", "v-road", "Road Construction", 68000, now.Add(-400*day)),
		newClaim("a-2", "v-road", "Water Supply", 41000, now.Add(-350*day)),
		newClaim("a-3", "v-road", "Road Construction", 72500, now.Add(-300*day)),
		newClaim("a-4", "v-road", "Road Construction", 81000, now.Add(-200*day)),
		newClaim("a-5", "v-road", "Water Supply", 39500, now.Add(-150*day)),
		newClaim("a-6", "v-road", "Road Construction", 79300, now.Add(-120*day)),
		newClaim("a-7", "v-road", "Road Construction", 70100, now.Add(-60*day)),
	}
}

func TestScenarioLowRisk(t *testing.T) {
	s := newService(t, Options{})
	seed(t, s, establishedRoadVendor()...)

	a, err := s.Analyze(context.Background(), newClaim("a-new", "v-road", "Road Construction", 75234.90, now))
	require.NoError(t, err)

	assert.Less(t, a.TotalScore, 40.0)
	assert.Equal(t, domain.RiskLow, a.RiskLevel)
	assert.Equal(t, domain.RecommendApprove, a.Recommendation)
	assert.False(t, a.HasSignal(domain.SignalRoundNumber))
	assert.Zero(t, a.Metadata.DetectorErrors)
	assert.Equal(t, 14, a.Metadata.DetectorsRun)
	assert.Equal(t, EngineVersion, a.Metadata.EngineVersion)
	assert.Contains(t, a.Summary, "Low fraud risk")
}

func TestScenarioHighRisk(t *testing.T) {
	s := newService(t, Options{})

	a, err := s.Analyze(context.Background(), newClaim("b-1", "v-fresh", "Educational Technology", 9500000, now))
	require.NoError(t, err)

	assert.Greater(t, a.TotalScore, 70.0)
	assert.Contains(t, []domain.RiskLevel{domain.RiskHigh, domain.RiskCritical}, a.RiskLevel)
	assert.True(t, a.HasSignal(domain.SignalRoundNumber))
	assert.True(t, a.HasSignal(domain.SignalVendorPattern) || a.HasSignal(domain.SignalShellCompany))
	assert.Equal(t, domain.RecommendBlock, a.Recommendation)
	assert.LessOrEqual(t, a.TotalScore, 100.0)
}

func TestScenarioDuplicateInvoice(t *testing.T) {
	s := newService(t, Options{})

	first := newClaim("c-1", "v-1", "Water Supply", 120000, now.Add(-2*day))
	seed(t, s, first)

	second := newClaim("c-2", "v-2", "Water Supply", 98000, now)
	second.InvoiceID = first.InvoiceID
	a, err := s.Analyze(context.Background(), second)
	require.NoError(t, err)

	sig := a.Signal(domain.SignalDuplicateInvoice)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SeverityCritical, sig.Severity)
	assert.Equal(t, domain.RecommendBlock, a.Recommendation)
	assert.Equal(t, domain.RiskCritical, a.RiskLevel)
}

func TestScenarioContractSplitting(t *testing.T) {
	split := func(id string, amount float64, ago time.Duration) domain.Claim {
		c := newClaim(id, "v-"+id, "Road Construction", amount, now.Add(-ago))
		c.OfficialID = "official-7"
		return c
	}

	t.Run("DefaultPolicy", func(t *testing.T) {
		s := newService(t, Options{})
		seed(t, s,
			split("s1", 4500000, 20*day),
			split("s2", 4500000, 10*day),
			split("s3", 4500000, 5*day),
			split("s4", 4500000, day),
		)
		a, err := s.Evaluate(context.Background(), split("s5", 4500000, 0))
		require.NoError(t, err)
		assert.True(t, a.HasSignal(domain.SignalProcessViolation))
	})

	t.Run("ThreeClaims", func(t *testing.T) {
		p := domain.DefaultPolicy()
		p.Process.SplitClaimCap = 8000000
		s := newService(t, Options{Policy: p})
		seed(t, s,
			split("s1", 7000000, 3*day),
			split("s2", 7000000, 2*day),
		)
		a, err := s.Evaluate(context.Background(), split("s3", 7000000, 0))
		require.NoError(t, err)
		sig := a.Signal(domain.SignalProcessViolation)
		require.NotNil(t, sig)
		assert.Equal(t, 3, sig.Evidence["groupSize"])
	})
}

func TestEvaluateIsIdempotent(t *testing.T) {
	s := newService(t, Options{})
	seed(t, s, establishedRoadVendor()...)
	before := s.Tracker().Len()

	c := newClaim("e-1", "v-road", "Road Construction", 150000, now)
	first, err := s.Evaluate(context.Background(), c)
	require.NoError(t, err)
	second, err := s.Evaluate(context.Background(), c)
	require.NoError(t, err)

	assert.True(t, first.DryRun)
	assert.Equal(t, first.TotalScore, second.TotalScore)
	assert.Equal(t, first.Signals, second.Signals)
	assert.Equal(t, first.Reasoning, second.Reasoning)
	assert.Equal(t, before, s.Tracker().Len())
	assert.Equal(t, 7, s.Profile("v-road").TotalClaims)
}

func TestAnalyzeIngests(t *testing.T) {
	s := newService(t, Options{})
	seed(t, s, establishedRoadVendor()...)

	p := s.Profile("v-road")
	assert.Equal(t, 7, p.TotalClaims)
	assert.InDelta(t, (68000+41000+72500+81000+39500+79300+70100)/7.0, p.AverageAmount, 1e-9)
	assert.Equal(t, uint64(7), p.Version)

	_, err := s.Analyze(context.Background(), newClaim("a-1", "v-road", "Road Construction", 1, now))
	assert.ErrorIs(t, err, domain.ErrDuplicateClaim)
	assert.Equal(t, 7, s.Profile("v-road").TotalClaims)
}

func TestInvalidClaim(t *testing.T) {
	s := newService(t, Options{})
	c := newClaim("x", "v", "Water Supply", -1, now)

	_, err := s.Analyze(context.Background(), c)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amount", verr.Field)
	assert.ErrorIs(t, err, domain.ErrInvalidClaim)
	assert.Zero(t, s.Tracker().Len())
}

func TestDetectorErrorIsContained(t *testing.T) {
	s := newService(t, Options{})

	a, err := s.Analyze(context.Background(), newClaim("z-1", "v", "Water Supply", 0, now))
	require.NoError(t, err)

	sig := a.Signal(domain.SignalBudgetMaxing)
	require.NotNil(t, sig)
	assert.True(t, sig.Failed())
	assert.Zero(t, sig.Contribution)
	assert.Zero(t, sig.Confidence)
	assert.Equal(t, domain.EvidenceErrorTag, sig.Evidence["error"])
	assert.Equal(t, 1, a.Metadata.DetectorErrors)
	assert.Equal(t, 1, s.Tracker().Len())
}

type panicDetector struct{}

func (panicDetector) Type() domain.SignalType { return domain.SignalCustomRule }

func (panicDetector) Detect(*detect.Input) (*domain.Signal, error) {
	panic("boom")
}

func TestDetectorPanicIsContained(t *testing.T) {
	s := newService(t, Options{})
	in := &detect.Input{Claim: newClaim("p", "v", "Water Supply", 10, now), AsOf: now}
	in.Snapshot = s.Tracker().Snapshot(in.Claim, now)

	signals, failures := s.runDetectors(context.Background(), []detect.Detector{panicDetector{}}, in)
	require.Len(t, signals, 1)
	assert.Equal(t, 1, failures)
	assert.Contains(t, signals[0].Evidence["detail"], "boom")
}

func TestCustomRulesRunAfterBuiltins(t *testing.T) {
	engine, err := rules.NewEngine()
	require.NoError(t, err)
	defer engine.Close()
	require.NoError(t, engine.LoadRule(&domain.RuleConfig{
		ID:         "large",
		Name:       "Large Claim",
		Expression: "amount > 1000000.0",
		Weight:     0.2,
		Enabled:    true,
	}))

	s := newService(t, Options{Rules: engine})
	a, err := s.Evaluate(context.Background(), newClaim("r-1", "v", "Water Supply", 2000000, now))
	require.NoError(t, err)

	assert.Equal(t, 15, a.Metadata.DetectorsRun)
	last := a.Signals[len(a.Signals)-1]
	assert.Equal(t, domain.SignalCustomRule, last.Type)
	assert.Equal(t, "Large Claim", last.Name)
}

func TestConcurrentSameVendor(t *testing.T) {
	s := newService(t, Options{})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Analyze(context.Background(), newClaim(fmt.Sprintf("cc-%d", i), "v-shared", "Water Supply", 1000+float64(i), now.Add(-time.Duration(i)*time.Minute)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p := s.Profile("v-shared")
	assert.Equal(t, 50, p.TotalClaims)
	assert.Equal(t, uint64(50), p.Version)
}

func TestTraceID(t *testing.T) {
	s := newService(t, Options{})
	ctx := WithTraceID(context.Background(), "trace-123")

	a, err := s.Evaluate(ctx, newClaim("t-1", "v", "Water Supply", 100, now))
	require.NoError(t, err)
	assert.Equal(t, "trace-123", a.Metadata.TraceID)
}

// Collaborator fakes

type memRepo struct {
	mu       sync.Mutex
	claims   []*domain.Claim
	analyses map[string]*domain.ClaimAnalysis
	rates    map[string]float64
	rules    []*domain.RuleConfig
	fail     bool
}

func newMemRepo() *memRepo {
	return &memRepo{analyses: map[string]*domain.ClaimAnalysis{}, rates: map[string]float64{}}
}

var errDown = errors.New("collaborator down")

func (r *memRepo) SaveClaim(_ context.Context, c *domain.Claim) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errDown
	}
	cp := *c
	r.claims = append(r.claims, &cp)
	return nil
}

func (r *memRepo) GetClaim(_ context.Context, id string) (*domain.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.claims {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRepo) ListClaims(context.Context) ([]*domain.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Claim(nil), r.claims...), nil
}

func (r *memRepo) ListClaimsByVendor(_ context.Context, vendorID string, since time.Time) ([]*domain.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Claim
	for _, c := range r.claims {
		if c.VendorID == vendorID && !c.SubmittedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memRepo) SaveAnalysis(_ context.Context, a *domain.ClaimAnalysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errDown
	}
	r.analyses[a.ID] = a
	return nil
}

func (r *memRepo) GetAnalysis(_ context.Context, id string) (*domain.ClaimAnalysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.analyses[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("analysis %s: %w", id, repository.ErrNotFound)
}

func (r *memRepo) ListAnalysesByClaim(_ context.Context, claimID string) ([]*domain.ClaimAnalysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ClaimAnalysis
	for _, a := range r.analyses {
		if a.ClaimID == claimID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) SaveSuccessRate(_ context.Context, vendorID string, rate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[vendorID] = rate
	return nil
}

func (r *memRepo) ListSuccessRates(context.Context) (map[string]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64, len(r.rates))
	for k, v := range r.rates {
		out[k] = v
	}
	return out, nil
}

func (r *memRepo) SaveRuleConfig(_ context.Context, rule *domain.RuleConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
	return nil
}

func (r *memRepo) GetRuleConfig(_ context.Context, id string) (*domain.RuleConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range r.rules {
		if rule.ID == id {
			return rule, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRepo) ListRuleConfigs(context.Context) ([]*domain.RuleConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.RuleConfig(nil), r.rules...), nil
}

func (r *memRepo) Ping(context.Context) error { return nil }
func (r *memRepo) Close() error               { return nil }

type memCache struct {
	mu       sync.Mutex
	analyses map[string]*domain.ClaimAnalysis
	ttl      time.Duration
}

func (c *memCache) Get(context.Context, string) ([]byte, error)             { return nil, nil }
func (c *memCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (c *memCache) Delete(context.Context, string) error                     { return nil }
func (c *memCache) Ping(context.Context) error                               { return nil }
func (c *memCache) Close() error                                             { return nil }

func (c *memCache) GetAnalysis(_ context.Context, id string) (*domain.ClaimAnalysis, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analyses[id], nil
}

func (c *memCache) SetAnalysis(_ context.Context, a *domain.ClaimAnalysis, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.analyses == nil {
		c.analyses = map[string]*domain.ClaimAnalysis{}
	}
	c.analyses[a.ID] = a
	c.ttl = ttl
	return nil
}

type recordingBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
	fail     bool
}

func (b *recordingBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errDown
	}
	if b.messages == nil {
		b.messages = map[string][][]byte{}
	}
	b.messages[topic] = append(b.messages[topic], payload)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string, domain.MessageHandler) (domain.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *recordingBus) Ping(context.Context) error { return nil }
func (b *recordingBus) Close() error               { return nil }

func (b *recordingBus) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages[topic])
}

type stubScorer struct {
	prob  float64
	err   error
	empty bool
	panic bool
	req   domain.OpinionRequest
}

func (s *stubScorer) Name() string { return "stub" }

func (s *stubScorer) Score(_ context.Context, req domain.OpinionRequest) (*domain.SecondOpinion, error) {
	s.req = req
	if s.panic {
		panic("scorer exploded")
	}
	if s.err != nil || s.empty {
		return nil, s.err
	}
	return &domain.SecondOpinion{Probability: s.prob, Rationale: "looks odd"}, nil
}

func TestSubmit(t *testing.T) {
	repo := newMemRepo()
	cache := &memCache{}
	bus := &recordingBus{}
	scorer := &stubScorer{prob: 0.9}
	s := newService(t, Options{Repository: repo, Cache: cache, Bus: bus, Opinion: scorer, AnalysisTTL: time.Hour})

	a, err := s.Submit(context.Background(), newClaim("b-1", "v-fresh", "Educational Technology", 9500000, now))
	require.NoError(t, err)

	t.Run("SecondOpinion", func(t *testing.T) {
		require.NotNil(t, a.SecondOpinion)
		assert.Equal(t, "stub", a.SecondOpinion.Provider)
		assert.Equal(t, "ok", a.Metadata.SecondOpinion)
		assert.InDelta(t, 0.7*a.TotalScore+0.3*90, a.SecondOpinion.BlendedScore, 1e-9)
		assert.Contains(t, scorer.req.Flags, domain.SignalRoundNumber)
		assert.Equal(t, a.Reasoning, scorer.req.Reasoning)
		assert.Equal(t, domain.RecommendBlock, a.Recommendation)
	})

	t.Run("Persisted", func(t *testing.T) {
		stored, err := repo.GetAnalysis(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.TotalScore, stored.TotalScore)
		claims, _ := repo.ListClaims(context.Background())
		assert.Len(t, claims, 1)
	})

	t.Run("Cached", func(t *testing.T) {
		got, err := s.GetAnalysis(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		assert.Equal(t, time.Hour, cache.ttl)
	})

	t.Run("Published", func(t *testing.T) {
		assert.Equal(t, 1, bus.count(domain.TopicAnalysisCompleted))
		assert.Equal(t, 1, bus.count(domain.TopicAlert))

		var report domain.FraudReport
		require.NoError(t, json.Unmarshal(bus.messages[domain.TopicAlert][0], &report))
		assert.Equal(t, 9500000.0, report.MoneyAtRisk)
	})
}

func TestSubmitFailsOpen(t *testing.T) {
	repo := newMemRepo()
	repo.fail = true
	bus := &recordingBus{fail: true}
	scorer := &stubScorer{err: errDown}
	s := newService(t, Options{Repository: repo, Bus: bus, Opinion: scorer})

	a, err := s.Submit(context.Background(), newClaim("b-1", "v-fresh", "Educational Technology", 9500000, now))
	require.NoError(t, err)

	assert.Nil(t, a.SecondOpinion)
	assert.Equal(t, "unavailable", a.Metadata.SecondOpinion)
	assert.Equal(t, domain.RecommendBlock, a.Recommendation)
	assert.Equal(t, 1, s.Tracker().Len())
}

func TestSubmitMisbehavingScorer(t *testing.T) {
	for name, scorer := range map[string]*stubScorer{
		"EmptyAnswer": {empty: true},
		"Panic":       {panic: true},
	} {
		t.Run(name, func(t *testing.T) {
			s := newService(t, Options{Opinion: scorer})

			var a *domain.ClaimAnalysis
			require.NotPanics(t, func() {
				var err error
				a, err = s.Submit(context.Background(), newClaim("b-1", "v-fresh", "Educational Technology", 9500000, now))
				require.NoError(t, err)
			})

			assert.Nil(t, a.SecondOpinion)
			assert.Equal(t, "unavailable", a.Metadata.SecondOpinion)
			assert.Equal(t, domain.RecommendBlock, a.Recommendation)
		})
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	s := newService(t, Options{})
	_, err := s.GetAnalysis(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	s = newService(t, Options{Repository: newMemRepo(), Cache: &memCache{}})
	_, err = s.GetAnalysis(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSubmitBatch(t *testing.T) {
	s := newService(t, Options{BatchConcurrency: 3})

	var claims []domain.Claim
	want := map[string]uint64{}
	// Each vendor's claims arrive out of time order.
	for v := range 4 {
		vendor := fmt.Sprintf("v-%d", v)
		for i := 4; i >= 0; i-- {
			id := fmt.Sprintf("%s-%d", vendor, i)
			claims = append(claims, newClaim(id, vendor, "Water Supply", 1000+float64(i), now.Add(-time.Duration(10-i)*time.Hour)))
			want[id] = uint64(i + 1)
		}
	}
	claims = append(claims, newClaim("v-0-1", "v-0", "Water Supply", 1, now))

	results := s.SubmitBatch(context.Background(), claims)
	require.Len(t, results, len(claims))

	for i, r := range results[:len(results)-1] {
		require.NoError(t, r.Err)
		assert.Equal(t, claims[i].ID, r.Analysis.ClaimID)
		// Each claim saw exactly its earlier siblings.
		assert.Equal(t, want[claims[i].ID], r.Analysis.Metadata.ProfileVersion, "claim %s", claims[i].ID)
	}
	assert.ErrorIs(t, results[len(results)-1].Err, domain.ErrDuplicateClaim)
	assert.Equal(t, 20, s.Tracker().Len())
}

func TestEvaluateBatch(t *testing.T) {
	s := newService(t, Options{})
	claims := []domain.Claim{
		newClaim("d-1", "v", "Water Supply", 100, now),
		newClaim("d-2", "v", "Water Supply", 100, now),
	}
	results := s.EvaluateBatch(context.Background(), claims)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.True(t, r.Analysis.DryRun)
	}
	assert.Zero(t, s.Tracker().Len())
}

func TestHydrate(t *testing.T) {
	repo := newMemRepo()
	for _, c := range establishedRoadVendor() {
		require.NoError(t, repo.SaveClaim(context.Background(), &c))
	}
	require.NoError(t, repo.SaveSuccessRate(context.Background(), "v-road", 0.95))
	require.NoError(t, repo.SaveRuleConfig(context.Background(), &domain.RuleConfig{
		ID: "r", Expression: "amount > 0.0", Weight: 0.1, Enabled: true,
	}))
	require.NoError(t, repo.SaveRuleConfig(context.Background(), &domain.RuleConfig{
		ID: "off", Expression: "true", Weight: 0.1,
	}))

	engine, err := rules.NewEngine()
	require.NoError(t, err)
	defer engine.Close()

	s := newService(t, Options{Repository: repo, Rules: engine})
	require.NoError(t, s.Hydrate(context.Background()))

	p := s.Profile("v-road")
	assert.Equal(t, 7, p.TotalClaims)
	assert.Equal(t, 0.95, p.SuccessRate)
	assert.Equal(t, 1, engine.RulesCount())
	assert.Equal(t, 15, s.Registry().Len())
}

func TestSetSuccessRate(t *testing.T) {
	repo := newMemRepo()
	s := newService(t, Options{Repository: repo})

	rate, err := s.SetSuccessRate(context.Background(), "v", 1.7)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)
	assert.Equal(t, 1.0, repo.rates["v"])

	_, err = s.SetSuccessRate(context.Background(), "", 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidClaim)
}

func TestRiskProfile(t *testing.T) {
	s := newService(t, Options{})
	assert.Equal(t, "unknown", s.RiskProfile("nobody").RiskLevel)

	seed(t, s, establishedRoadVendor()...)
	rp := s.RiskProfile("v-road")
	assert.Equal(t, 7, rp.TotalClaims)
}
