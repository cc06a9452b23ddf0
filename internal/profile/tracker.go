// Package profile maintains vendor profiles and the append-only claim history
// the detectors read from.
package profile

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// Tracker owns the claim arena and the per-vendor profiles.
//
// Claims are only ever appended, so a prefix of the arena (or of an index
// slice) captured under the read lock stays valid without copying. Profiles
// are immutable values swapped behind an atomic pointer.
type Tracker struct {
	mu         sync.RWMutex
	claims     []domain.Claim
	byVendor   map[string][]int
	byCategory map[string][]int
	byOfficial map[string][]int
	byInvoice  map[string][]int
	ids        map[string]struct{}
	profiles   map[string]*atomic.Pointer[domain.VendorProfile]
	rates      map[string]float64

	// vendorLocks serializes profile recomputation per vendor.
	vendorLocks sync.Map

	window      time.Duration
	defaultRate float64
}

// NewTracker creates an empty tracker.
func NewTracker(policy domain.ProfilePolicy) *Tracker {
	window := time.Duration(policy.RecentWindowDays) * 24 * time.Hour
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	rate := policy.DefaultSuccessRate
	if rate < 0 || rate > 1 {
		rate = domain.DefaultSuccessRate
	}
	return &Tracker{
		byVendor:    make(map[string][]int),
		byCategory:  make(map[string][]int),
		byOfficial:  make(map[string][]int),
		byInvoice:   make(map[string][]int),
		ids:         make(map[string]struct{}),
		profiles:    make(map[string]*atomic.Pointer[domain.VendorProfile]),
		rates:       make(map[string]float64),
		window:      window,
		defaultRate: rate,
	}
}

func (t *Tracker) vendorLock(vendorID string) *sync.Mutex {
	m, _ := t.vendorLocks.LoadOrStore(vendorID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Ingest appends a claim to history and updates the vendor's profile.
// The Recent30d counter is evaluated relative to now.
func (t *Tracker) Ingest(claim domain.Claim, now time.Time) (domain.VendorProfile, error) {
	if err := claim.Validate(); err != nil {
		return domain.VendorProfile{}, err
	}

	lock := t.vendorLock(claim.VendorID)
	lock.Lock()
	defer lock.Unlock()

	t.mu.RLock()
	_, dup := t.ids[claim.ID]
	prior := t.view(t.byVendor[claim.VendorID])
	current := t.loadProfile(claim.VendorID)
	rate, hasRate := t.rates[claim.VendorID]
	t.mu.RUnlock()

	if dup {
		return domain.VendorProfile{}, fmt.Errorf("claim %s: %w", claim.ID, domain.ErrDuplicateClaim)
	}
	if !hasRate {
		rate = current.SuccessRate
	}

	// Recompute outside the global lock; only this goroutine writes this vendor.
	next := t.advance(current, claim, prior, now)
	next.SuccessRate = rate

	t.mu.Lock()
	if _, ok := t.ids[claim.ID]; ok {
		t.mu.Unlock()
		return domain.VendorProfile{}, fmt.Errorf("claim %s: %w", claim.ID, domain.ErrDuplicateClaim)
	}
	idx := len(t.claims)
	t.claims = append(t.claims, claim)
	t.ids[claim.ID] = struct{}{}
	t.byVendor[claim.VendorID] = append(t.byVendor[claim.VendorID], idx)
	t.byCategory[claim.Category] = append(t.byCategory[claim.Category], idx)
	t.byOfficial[claim.OfficialID] = append(t.byOfficial[claim.OfficialID], idx)
	t.byInvoice[claim.InvoiceID] = append(t.byInvoice[claim.InvoiceID], idx)
	slot, ok := t.profiles[claim.VendorID]
	if !ok {
		slot = &atomic.Pointer[domain.VendorProfile]{}
		t.profiles[claim.VendorID] = slot
	}
	slot.Store(&next)
	t.mu.Unlock()

	return cloneProfile(next), nil
}

func (t *Tracker) advance(p domain.VendorProfile, claim domain.Claim, prior View, now time.Time) domain.VendorProfile {
	next := p
	next.VendorID = claim.VendorID
	next.TotalClaims = p.TotalClaims + 1
	next.TotalAmount = p.TotalAmount + claim.Amount
	next.AverageAmount = next.TotalAmount / float64(next.TotalClaims)
	next.Version = p.Version + 1

	if p.IsNew() || claim.SubmittedAt.Before(p.FirstSeen) {
		next.FirstSeen = claim.SubmittedAt
	}
	if p.IsNew() || claim.SubmittedAt.After(p.LastSeen) {
		next.LastSeen = claim.SubmittedAt
	}

	if i, found := slices.BinarySearch(p.Categories, claim.Category); !found {
		cats := make([]string, 0, len(p.Categories)+1)
		cats = append(cats, p.Categories[:i]...)
		cats = append(cats, claim.Category)
		cats = append(cats, p.Categories[i:]...)
		next.Categories = cats
	}

	from := now.Add(-t.window)
	inWindow := func(ts time.Time) bool {
		return !ts.Before(from) && !ts.After(now)
	}
	recent := 0
	for c := range prior.All() {
		if inWindow(c.SubmittedAt) {
			recent++
		}
	}
	if inWindow(claim.SubmittedAt) {
		recent++
	}
	next.Recent30d = recent

	return next
}

// Snapshot captures a consistent read-only view of history for analysing claim.
func (t *Tracker) Snapshot(claim domain.Claim, asOf time.Time) *Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Snapshot{
		Profile:  t.loadProfile(claim.VendorID),
		Vendor:   t.view(t.byVendor[claim.VendorID]),
		Category: t.view(t.byCategory[claim.Category]),
		Official: t.view(t.byOfficial[claim.OfficialID]),
		Invoice:  t.view(t.byInvoice[claim.InvoiceID]),
		History:  t.claims[:len(t.claims):len(t.claims)],
		AsOf:     asOf,
	}
}

// Profile returns a copy of the vendor's profile, or the new-vendor sentinel.
func (t *Tracker) Profile(vendorID string) domain.VendorProfile {
	t.mu.RLock()
	p := t.loadProfile(vendorID)
	t.mu.RUnlock()
	return cloneProfile(p)
}

// Len returns the number of ingested claims.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.claims)
}

// Contains reports whether a claim ID has already been ingested.
func (t *Tracker) Contains(claimID string) bool {
	t.mu.RLock()
	_, ok := t.ids[claimID]
	t.mu.RUnlock()
	return ok
}

// SetSuccessRate records an externally supplied approval rate for a vendor.
// Rates are clamped to [0,1] and remembered for vendors not yet seen.
func (t *Tracker) SetSuccessRate(vendorID string, rate float64) float64 {
	rate = clamp01(rate)

	lock := t.vendorLock(vendorID)
	lock.Lock()
	defer lock.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rates[vendorID] = rate
	if slot, ok := t.profiles[vendorID]; ok {
		next := *slot.Load()
		next.SuccessRate = rate
		slot.Store(&next)
	}
	return rate
}

// Vendors returns the IDs of all vendors with at least one claim.
func (t *Tracker) Vendors() []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.profiles))
	for id := range t.profiles {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// loadProfile must be called with mu held.
func (t *Tracker) loadProfile(vendorID string) domain.VendorProfile {
	if slot, ok := t.profiles[vendorID]; ok {
		if p := slot.Load(); p != nil {
			return *p
		}
	}
	p := domain.NewVendorProfile(vendorID)
	p.SuccessRate = t.defaultRate
	if r, ok := t.rates[vendorID]; ok {
		p.SuccessRate = r
	}
	return p
}

// view must be called with mu held.
func (t *Tracker) view(idx []int) View {
	return View{
		claims: t.claims[:len(t.claims):len(t.claims)],
		idx:    idx[:len(idx):len(idx)],
	}
}

func cloneProfile(p domain.VendorProfile) domain.VendorProfile {
	p.Categories = slices.Clone(p.Categories)
	return p
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
