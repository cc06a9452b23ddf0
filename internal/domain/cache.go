package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetAnalysis retrieves a cached analysis. Returns nil, nil on miss.
	GetAnalysis(ctx context.Context, analysisID string) (*ClaimAnalysis, error)

	// SetAnalysis caches an analysis for read-back by ID.
	SetAnalysis(ctx context.Context, analysis *ClaimAnalysis, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `yaml:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `yaml:"localmaxsize"`
	LocalTTL     time.Duration `yaml:"localttl"`

	// Redis settings (Pro tier)
	RedisAddr     string `yaml:"redisaddr"`
	RedisPassword string `yaml:"redispassword"`
	RedisDB       int    `yaml:"redisdb"`

	// Two-phase settings
	EnableTwoPhase bool `yaml:"enabletwophase"` // If true, check local first, then Redis

	// AnalysisTTL is how long analyses stay cached after submission.
	AnalysisTTL time.Duration `yaml:"analysisttl"`
}
