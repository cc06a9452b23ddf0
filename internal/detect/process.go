package detect

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// ProcessViolation detects untendered large spend and contract splitting.
type ProcessViolation struct {
	Policy domain.ProcessPolicy
}

func (d *ProcessViolation) Type() domain.SignalType { return domain.SignalProcessViolation }

func (d *ProcessViolation) Detect(in *Input) (*domain.Signal, error) {
	p := d.Policy
	c := in.Claim

	if c.Amount > p.TenderThreshold && strings.TrimSpace(c.TenderReference) == "" {
		return NewSignal(d.Type(), domain.SeverityCritical, p.TenderSuspicion, p.TenderConfidence, p.Weight,
			fmt.Sprintf("Claim of %.2f exceeds the tender threshold without a tender reference", c.Amount),
			map[string]any{"amount": c.Amount, "tenderThreshold": p.TenderThreshold}), nil
	}

	// The current claim is part of the group it may be splitting.
	from := in.AsOf.Add(-time.Duration(p.SplitWindowDays) * 24 * time.Hour)
	inGroup := func(ts time.Time) bool {
		return ts.After(from) && !ts.After(in.AsOf)
	}

	var members []float64
	if inGroup(c.SubmittedAt) {
		members = append(members, c.Amount)
	}
	for prior := range in.Snapshot.Official.All() {
		if prior.ID != c.ID && inGroup(prior.SubmittedAt) {
			members = append(members, prior.Amount)
		}
	}
	if len(members) < p.SplitMinClaims {
		return nil, nil
	}

	var total, largest float64
	for _, m := range members {
		total += m
		largest = math.Max(largest, m)
	}
	if total <= p.SplitTotal || largest >= p.SplitClaimCap {
		return nil, nil
	}
	return NewSignal(d.Type(), domain.SeverityHigh, p.SplitSuspicion, p.SplitConfidence, p.Weight,
		fmt.Sprintf("Official %s submitted %d claims totalling %.2f in %d days, each below %.0f",
			c.OfficialID, len(members), total, p.SplitWindowDays, p.SplitClaimCap),
		map[string]any{
			"officialId": c.OfficialID,
			"groupSize":  len(members),
			"groupTotal": total,
			"largest":    largest,
			"claimCap":   p.SplitClaimCap,
			"splitTotal": p.SplitTotal,
			"windowDays": p.SplitWindowDays,
			"amount":     c.Amount,
		}), nil
}

// BidCollusion flags amounts that competing vendors have matched closely.
type BidCollusion struct {
	Policy domain.CollusionPolicy
}

func (d *BidCollusion) Type() domain.SignalType { return domain.SignalBidCollusion }

func (d *BidCollusion) Detect(in *Input) (*domain.Signal, error) {
	p := d.Policy
	c := in.Claim
	if c.Amount <= 0 {
		return nil, nil
	}
	window := time.Duration(p.WindowDays) * 24 * time.Hour
	tolerance := p.Tolerance * c.Amount

	matches := 0
	vendors := make(map[string]struct{})
	for prior := range in.Snapshot.Category.All() {
		if prior.VendorID == c.VendorID || prior.ID == c.ID {
			continue
		}
		gap := c.SubmittedAt.Sub(prior.SubmittedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap >= window {
			continue
		}
		if math.Abs(prior.Amount-c.Amount) <= tolerance {
			matches++
			vendors[prior.VendorID] = struct{}{}
		}
	}
	if matches < p.MinClaims {
		return nil, nil
	}
	return NewSignal(d.Type(), domain.SeverityHigh, p.Suspicion, p.Confidence, p.Weight,
		fmt.Sprintf("%d claims from other %s vendors are within %.0f%% of this amount", matches, c.Category, p.Tolerance*100),
		map[string]any{
			"matches":   matches,
			"vendors":   sortedKeys(vendors),
			"tolerance": p.Tolerance,
			"amount":    c.Amount,
		}), nil
}
