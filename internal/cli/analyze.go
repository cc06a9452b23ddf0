package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/tenderwatch/internal/analysis"
	"github.com/opensource-finance/tenderwatch/internal/domain"
	"github.com/opensource-finance/tenderwatch/internal/opinion"
	"github.com/opensource-finance/tenderwatch/internal/rules"
	"github.com/opensource-finance/tenderwatch/internal/scoring"
)

// ErrClaimsFailed is returned when at least one claim could not be analysed.
var ErrClaimsFailed = errors.New("some claims failed")

type analyzeOptions struct {
	dryRun bool
	report bool
}

// analyzeResult is one line of analyze output.
type analyzeResult struct {
	ClaimID  string                `json:"claimId"`
	Analysis *domain.ClaimAnalysis `json:"analysis,omitempty"`
	Report   *domain.FraudReport   `json:"report,omitempty"`
	Error    string                `json:"error,omitempty"`
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Analyse claims from a JSON file",
		Long: `Analyse one claim (a JSON object) or many (a JSON array) read from FILE,
or from stdin when FILE is "-".

Claims are processed in memory in submission-time order per vendor, so later
claims see the history built by earlier ones. With --dry-run every claim is
evaluated against an empty history and nothing is recorded.`,
		Example: `  tenderwatch analyze claims.json
  cat claim.json | tenderwatch analyze - --report`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := readClaims(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return a.analyze(cmd.Context(), cmd.OutOrStdout(), claims, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "evaluate without recording history")
	cmd.Flags().BoolVar(&opts.report, "report", false, "include the fraud report for each claim")
	return cmd
}

func (a *app) analyze(ctx context.Context, out io.Writer, claims []domain.Claim, opts analyzeOptions) error {
	engine, err := rules.NewEngine()
	if err != nil {
		return fmt.Errorf("initialize rule engine: %w", err)
	}
	defer engine.Close()

	scorer, err := opinion.New(a.cfg.Opinion)
	if err != nil {
		return fmt.Errorf("initialize secondary opinion: %w", err)
	}

	svc := analysis.NewService(analysis.Options{
		Policy:             a.cfg.Policy,
		Rules:              engine,
		Opinion:            scorer,
		MaxDetectorWorkers: a.cfg.Engine.MaxDetectorWorkers,
		BatchConcurrency:   a.cfg.Engine.BatchConcurrency,
	})

	var results []analysis.BatchResult
	if opts.dryRun {
		results = svc.EvaluateBatch(ctx, claims)
	} else {
		results = svc.SubmitBatch(ctx, claims)
	}

	lines := make([]analyzeResult, len(results))
	failed := 0
	for i, r := range results {
		lines[i].ClaimID = claims[i].ID
		if r.Err != nil {
			lines[i].Error = r.Err.Error()
			failed++
			continue
		}
		lines[i].Analysis = r.Analysis
		if opts.report {
			lines[i].Report = scoring.BuildReport(r.Analysis)
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(lines); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrClaimsFailed, failed, len(claims))
	}
	return nil
}

// readClaims decodes a claim object or array. Claims without an ID get one.
func readClaims(stdin io.Reader, path string) ([]domain.Claim, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("read claims: empty input")
	}

	var claims []domain.Claim
	if raw[0] == '[' {
		err = json.Unmarshal(raw, &claims)
	} else {
		var c domain.Claim
		err = json.Unmarshal(raw, &c)
		claims = []domain.Claim{c}
	}
	if err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}

	for i := range claims {
		if claims[i].ID == "" {
			claims[i].ID = uuid.NewString()
		}
	}
	return claims, nil
}
