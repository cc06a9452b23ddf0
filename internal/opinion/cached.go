package opinion

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// Cached memoizes another scorer's answers per claim and core score.
// Failures and empty answers are not cached.
type Cached struct {
	next  domain.SecondaryScorer
	cache *gocache.Cache
}

// NewCached wraps next with an in-memory cache.
func NewCached(next domain.SecondaryScorer, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cached{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Name returns the wrapped scorer's name.
func (c *Cached) Name() string {
	return c.next.Name()
}

// Score implements domain.SecondaryScorer.
func (c *Cached) Score(ctx context.Context, req domain.OpinionRequest) (*domain.SecondOpinion, error) {
	key := fmt.Sprintf("%s:%.4f", req.Claim.ID, req.CoreScore)
	if v, found := c.cache.Get(key); found {
		op := *v.(*domain.SecondOpinion)
		return &op, nil
	}

	op, err := c.next.Score(ctx, req)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, ErrNoAnswer
	}
	stored := *op
	c.cache.SetDefault(key, &stored)
	return op, nil
}

// Len returns the number of cached answers.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}
