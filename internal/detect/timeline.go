package detect

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// TimelineAnomaly flags claims submitted outside normal working time.
// Hours are read in the claim timestamp's own location.
type TimelineAnomaly struct {
	Policy domain.TimelinePolicy
}

func (d *TimelineAnomaly) Type() domain.SignalType { return domain.SignalTimelineAnomaly }

func (d *TimelineAnomaly) Detect(in *Input) (*domain.Signal, error) {
	p := d.Policy
	ts := in.Claim.SubmittedAt
	hour := ts.Hour()

	var suspicion float64
	var reasons []string
	if hour < p.BusinessStartHour || hour > p.BusinessEndHour {
		suspicion += p.OffHoursSuspicion
		reasons = append(reasons, "outside business hours")
	}
	if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
		suspicion += p.WeekendSuspicion
		reasons = append(reasons, "on a weekend")
	}
	if hour < p.VeryEarlyHour || hour > p.VeryLateHour {
		suspicion += p.ExtremeSuspicion
		reasons = append(reasons, "very early or late")
	}
	if slices.Contains(p.Holidays, ts.Format("01-02")) {
		suspicion += p.HolidaySuspicion
		reasons = append(reasons, "on a public holiday")
	}

	if suspicion == 0 {
		return nil, nil
	}
	suspicion = math.Min(suspicion, p.Cap)

	sev := domain.SeverityLow
	if suspicion >= p.MediumAt {
		sev = domain.SeverityMedium
	}
	return NewSignal(d.Type(), sev, suspicion, p.Confidence, p.Weight,
		fmt.Sprintf("Claim submitted %s", joinIndicators(reasons)),
		map[string]any{
			"submittedAt": ts.Format(time.RFC3339),
			"hour":        hour,
			"weekday":     ts.Weekday().String(),
			"reasons":     reasons,
		}), nil
}
