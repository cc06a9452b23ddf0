package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestObserveAnalysis(t *testing.T) {
	ObserveAnalysis(&domain.ClaimAnalysis{
		Recommendation: domain.RecommendBlock,
		Signals: []domain.Signal{
			{Type: domain.SignalDuplicateInvoice, Severity: domain.SeverityCritical},
			{Type: domain.SignalBudgetMaxing, Severity: domain.SeverityLow, Evidence: map[string]any{"error": domain.EvidenceErrorTag}},
		},
	}, 3*time.Millisecond)

	out := scrape(t)
	for _, want := range []string{
		`tenderwatch_analysis_total{dry_run="false",recommendation="BLOCK"}`,
		`tenderwatch_signals_total{severity="critical",signal_type="DUPLICATE_INVOICE"}`,
		`tenderwatch_detector_errors_total{signal_type="BUDGET_MAXING"}`,
		`tenderwatch_analysis_duration_seconds_count`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in scrape output", want)
		}
	}
	if strings.Contains(out, `signals_total{severity="low",signal_type="BUDGET_MAXING"}`) {
		t.Error("failed detectors must not count as signals")
	}
}

func TestCollaboratorFailed(t *testing.T) {
	CollaboratorFailed(CollaboratorOpinion)

	if !strings.Contains(scrape(t), `tenderwatch_collaborator_failures_total{collaborator="opinion"}`) {
		t.Error("expected collaborator failure metric in output")
	}
}

func TestBusMessage(t *testing.T) {
	BusMessage(domain.TopicAlert, BusDropped)

	if !strings.Contains(scrape(t), `tenderwatch_bus_messages_total{outcome="dropped",topic="tenderwatch.alert"}`) {
		t.Error("expected bus message metric in output")
	}
}

func TestObserveHTTP(t *testing.T) {
	ObserveHTTP("POST", "/claims/analyze", 201, 2*time.Millisecond)

	out := scrape(t)
	if !strings.Contains(out, `tenderwatch_http_requests_total{method="POST",route="/claims/analyze",status="201"}`) {
		t.Error("expected http request metric in output")
	}
	if !strings.Contains(out, `tenderwatch_http_request_duration_seconds_count{route="/claims/analyze"}`) {
		t.Error("expected http duration metric in output")
	}
}
