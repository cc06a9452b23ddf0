package profile

import (
	"iter"
	"time"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// Snapshot is the read-only history visible to one analysis.
// Later ingestion never changes what a snapshot returns.
type Snapshot struct {
	Profile  domain.VendorProfile
	Vendor   View // claims by the same vendor
	Category View // claims in the same category
	Official View // claims submitted by the same official
	Invoice  View // claims carrying exactly the same invoice ID

	// History is every claim ingested before the snapshot, in ingestion order.
	// It must not be modified.
	History []domain.Claim

	AsOf time.Time
}

// View is an indexed, read-only window over the claim arena.
type View struct {
	claims []domain.Claim
	idx    []int
}

// Len returns the number of claims in the view.
func (v View) Len() int { return len(v.idx) }

// At returns the i-th claim of the view in ingestion order.
func (v View) At(i int) domain.Claim { return v.claims[v.idx[i]] }

// All iterates the view in ingestion order.
func (v View) All() iter.Seq[domain.Claim] {
	return func(yield func(domain.Claim) bool) {
		for _, i := range v.idx {
			if !yield(v.claims[i]) {
				return
			}
		}
	}
}

// Amounts returns the amounts of every claim in the view.
func (v View) Amounts() []float64 {
	out := make([]float64, 0, len(v.idx))
	for _, i := range v.idx {
		out = append(out, v.claims[i].Amount)
	}
	return out
}
