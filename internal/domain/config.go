package domain

import "time"

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Tier selects the default backing services.
	Tier Tier `json:"tier" mapstructure:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" mapstructure:"eventBus"`

	// Engine behaviour
	Engine  EngineConfig  `json:"engine" mapstructure:"engine"`
	Model   ModelConfig   `json:"model" mapstructure:"model"`
	Catalog CatalogConfig `json:"catalog" mapstructure:"catalog"`

	// Observability
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	ReadTimeout  int    `json:"readTimeout" mapstructure:"readTimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" mapstructure:"writeTimeout"` // seconds
}

// EngineConfig tunes batch passes.
type EngineConfig struct {
	// Workers bounds parallel evaluation within a rule and parallel score writes.
	Workers int `json:"workers" mapstructure:"workers"`

	// RuleTimeout bounds a single rule evaluation.
	RuleTimeout time.Duration `json:"ruleTimeout" mapstructure:"ruleTimeout"`

	// AlertDedupe skips alert creation when one already exists for the
	// same transaction and rule. False keeps at-least-once duplication.
	AlertDedupe bool `json:"alertDedupe" mapstructure:"alertDedupe"`

	// HighRiskThreshold is the default cut-off for high-risk reports.
	HighRiskThreshold float64 `json:"highRiskThreshold" mapstructure:"highRiskThreshold"`

	// HistoryLimit is the number of user transactions in a detail view.
	HistoryLimit int `json:"historyLimit" mapstructure:"historyLimit"`

	// Schedule runs a batch pass periodically when positive.
	Schedule time.Duration `json:"schedule" mapstructure:"schedule"`
}

// ModelConfig configures the predictive model collaborator.
type ModelConfig struct {
	// Type is "stored" (use ml_score already in the store) or "http".
	Type     string        `json:"type" mapstructure:"type"`
	URL      string        `json:"url" mapstructure:"url"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
	CacheTTL time.Duration `json:"cacheTtl" mapstructure:"cacheTtl"`
}

// CatalogConfig configures rule seeding.
type CatalogConfig struct {
	// SeedFile is a YAML rule file upserted at startup. Empty seeds the defaults
	// only when the store holds no rules.
	SeedFile string `json:"seedFile" mapstructure:"seedFile"`

	// Watch re-seeds whenever SeedFile changes.
	Watch bool `json:"watch" mapstructure:"watch"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings. Spans from the API, the
// batch runner and rule evaluation are exported when Enabled.
type TracingConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName  string `json:"serviceName" mapstructure:"serviceName"`
	ExporterType string `json:"exporterType" mapstructure:"exporterType"` // stdout
}

// Tier names a deployment profile.
type Tier string

const (
	// TierCommunity runs on SQLite, an in-process bus and a local cache.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, NATS and Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a single-process configuration.
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
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Engine: EngineConfig{
			Workers:           8,
			RuleTimeout:       2 * time.Minute,
			AlertDedupe:       true,
			HighRiskThreshold: 0.7,
			HistoryLimit:      10,
		},
		Model: ModelConfig{
			Type:     "stored",
			Timeout:  5 * time.Second,
			CacheTTL: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			ServiceName:  "harrier",
			ExporterType: "stdout",
		},
	}
}

// ProConfig returns the distributed configuration.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	return cfg
}
