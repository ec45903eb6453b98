package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server" json:"server"`

	// Tier determines which backends are wired by default
	Tier Tier `mapstructure:"tier" json:"tier"`

	// Decision holds the engine policies applied to every evaluation
	Decision DecisionPolicy `mapstructure:"decision" json:"decision"`

	// Snapshot controls configuration caching
	Snapshot SnapshotConfig `mapstructure:"snapshot" json:"snapshot"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository" json:"repository"`
	Cache      CacheConfig      `mapstructure:"cache" json:"cache"`
	EventBus   EventBusConfig   `mapstructure:"eventbus" json:"eventBus"`

	// Worker consumes evaluation requests from the event bus
	Worker WorkerConfig `mapstructure:"worker" json:"worker"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging" json:"logging"`
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `mapstructure:"host" json:"host"`
	Port           int      `mapstructure:"port" json:"port"`
	ReadTimeout    int      `mapstructure:"read_timeout" json:"readTimeout"`   // seconds
	WriteTimeout   int      `mapstructure:"write_timeout" json:"writeTimeout"` // seconds
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowedOrigins"`
}

// SnapshotConfig bounds how stale a configuration snapshot may be.
type SnapshotConfig struct {
	// MaxStaleness is the cache TTL for configuration records.
	MaxStaleness time.Duration `mapstructure:"max_staleness" json:"maxStaleness"`

	// SeedDefaults writes the built-in rule sets on first start.
	SeedDefaults bool `mapstructure:"seed_defaults" json:"seedDefaults"`
}

// WorkerConfig holds async worker settings.
type WorkerConfig struct {
	Enabled bool          `mapstructure:"enabled" json:"enabled"`
	Queue   string        `mapstructure:"queue" json:"queue"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" json:"format"` // json, console
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	ServiceName string `mapstructure:"service_name" json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, an in-process cache and Go channels.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, Redis and NATS.
	TierPro Tier = "pro"
)

// DBRPolicy decides whether a failed DBR check rejects the applicant.
type DBRPolicy string

const (
	// DBRAdvisory reports the DBR result without affecting the decision.
	DBRAdvisory DBRPolicy = "advisory"

	// DBRBlocking treats a failed DBR check as a second knockout.
	DBRBlocking DBRPolicy = "blocking"
)

// RangePolicy resolves overlapping range-category rules.
type RangePolicy string

const (
	// RangeFirstMatch awards the first listed rule whose bounds contain the value.
	RangeFirstMatch RangePolicy = "first-match"

	// RangeStrict rejects overlapping range rules when the rule set is loaded.
	RangeStrict RangePolicy = "strict"
)

// CountPolicy resolves which count-category rule applies.
type CountPolicy string

const (
	// CountFirstCeiling awards the first listed rule whose count is not exceeded.
	CountFirstCeiling CountPolicy = "first-ceiling"

	// CountSmallestCeiling awards the rule with the smallest count not exceeded,
	// regardless of listing order.
	CountSmallestCeiling CountPolicy = "smallest-ceiling"
)

// OfferPolicy decides how a loan offer is derived from a rating band.
type OfferPolicy string

const (
	// OfferBand returns the full configured range for the rating.
	OfferBand OfferPolicy = "band"

	// OfferInterpolated scales the maximum by the applicant's position in the
	// rating's score band.
	OfferInterpolated OfferPolicy = "interpolated"
)

// DecisionPolicy groups the explicit, overridable engine policies.
type DecisionPolicy struct {
	DBR   DBRPolicy   `mapstructure:"dbr" json:"dbr"`
	Range RangePolicy `mapstructure:"range" json:"range"`
	Count CountPolicy `mapstructure:"count" json:"count"`
	Offer OfferPolicy `mapstructure:"offer" json:"offer"`
}

// DefaultDecisionPolicy returns the policies used when none are configured.
func DefaultDecisionPolicy() DecisionPolicy {
	return DecisionPolicy{
		DBR:   DBRAdvisory,
		Range: RangeFirstMatch,
		Count: CountFirstCeiling,
		Offer: OfferBand,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   30,
			AllowedOrigins: []string{"*"},
		},
		Tier:     TierCommunity,
		Decision: DefaultDecisionPolicy(),
		Snapshot: SnapshotConfig{
			MaxStaleness: 30 * time.Second,
			SeedDefaults: true,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Worker: WorkerConfig{
			Enabled: false,
			Queue:   "kestrel-workers",
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "kestrel",
		PostgresSSLMode: "disable",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
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
