package domain

import "time"

// Config holds the complete TenderWatch configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Tier determines which backing services are used
	Tier DeploymentTier `yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"eventbus"`
	Worker     WorkerConfig     `yaml:"worker"`
	Opinion    OpinionConfig    `yaml:"opinion"`

	// Engine settings
	Engine EngineConfig `yaml:"engine"`
	Policy Policy       `yaml:"policy"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readtimeout"`  // seconds
	WriteTimeout int    `yaml:"writetimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"servicename"`
}

// WorkerConfig controls the asynchronous claim worker.
type WorkerConfig struct {
	Enabled bool `yaml:"enabled"`
}

// EngineConfig controls the analysis service.
type EngineConfig struct {
	// MaxDetectorWorkers bounds detector goroutines per analysis.
	MaxDetectorWorkers int `yaml:"maxdetectorworkers"`

	// BatchConcurrency bounds vendors analysed concurrently in a batch.
	BatchConcurrency int `yaml:"batchconcurrency"`

	// HydrateOnStart replays stored claims into the profile tracker.
	HydrateOnStart bool `yaml:"hydrateonstart"`
}

// OpinionConfig configures the optional secondary opinion scorer.
type OpinionConfig struct {
	// Provider is "" (disabled) or "openai"
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"apikey"`
	BaseURL   string        `yaml:"baseurl"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"ratelimit"` // requests per second
	Burst     int           `yaml:"burst"`
	CacheTTL  time.Duration `yaml:"cachettl"`
}

// DeploymentTier selects the backing services.
type DeploymentTier string

const (
	// TierCommunity runs on SQLite + channels + in-process LRU
	TierCommunity DeploymentTier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro DeploymentTier = "pro"
)

// DefaultConfig returns a default configuration for the Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./tenderwatch.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			AnalysisTTL:  24 * time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Opinion: OpinionConfig{
			Timeout:   30 * time.Second,
			RateLimit: 2,
			Burst:     4,
			CacheTTL:  time.Hour,
		},
		Engine: EngineConfig{
			MaxDetectorWorkers: 16,
			BatchConcurrency:   8,
			HydrateOnStart:     true,
		},
		Policy: DefaultPolicy(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "tenderwatch",
		},
	}
}

// ProConfig returns a configuration for the Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "tenderwatch",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		AnalysisTTL:    7 * 24 * time.Hour,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
