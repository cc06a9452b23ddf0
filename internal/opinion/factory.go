package opinion

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// New creates the configured secondary scorer. An empty provider disables
// the second opinion and returns nil, nil.
func New(cfg domain.OpinionConfig) (domain.SecondaryScorer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, nil

	case "openai":
		s, err := NewOpenAIScorer(cfg)
		if err != nil {
			return nil, err
		}
		return NewCached(s, cfg.CacheTTL), nil

	default:
		return nil, fmt.Errorf("unknown opinion provider: %s (supported: openai)", cfg.Provider)
	}
}
