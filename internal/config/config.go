// Package config loads the Kestrel configuration from an optional .env file,
// an optional YAML file and KESTREL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. KESTREL_SERVER_PORT.
const EnvPrefix = "KESTREL"

// Options controls where configuration is read from.
type Options struct {
	// ConfigFile is an explicit YAML file. When empty, config.yaml is looked
	// up in ./configs and the working directory.
	ConfigFile string

	// EnvFile is loaded into the process environment first. Defaults to
	// ".env"; a missing file is not an error.
	EnvFile string
}

// Load builds the configuration. Precedence, highest first: environment,
// config file, tier defaults.
func Load(opts Options) (*domain.Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	base := domain.DefaultConfig()
	if domain.Tier(v.GetString("tier")) == domain.TierPro {
		base = domain.ProConfig()
	}
	setDefaults(v, "", reflect.ValueOf(base).Elem())

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults registers every leaf of the defaults struct under its
// mapstructure key. Registered keys are what AutomaticEnv can override.
func setDefaults(v *viper.Viper, prefix string, rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		fv := rv.Field(i)
		if fv.Kind() == reflect.Struct {
			setDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

// Validate checks cross-field constraints that unmarshalling cannot.
func Validate(cfg *domain.Config) error {
	var errs []error

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", cfg.Server.Port))
	}

	switch cfg.Tier {
	case domain.TierCommunity, domain.TierPro:
	default:
		errs = append(errs, fmt.Errorf("unknown tier %q", cfg.Tier))
	}

	switch cfg.Repository.Driver {
	case "sqlite":
		if cfg.Repository.SQLitePath == "" {
			errs = append(errs, errors.New("repository.sqlite_path is required for sqlite"))
		}
	case "postgres":
		if cfg.Repository.PostgresHost == "" || cfg.Repository.PostgresDB == "" {
			errs = append(errs, errors.New("repository.postgres_host and repository.postgres_db are required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown repository driver %q", cfg.Repository.Driver))
	}

	switch cfg.Cache.Type {
	case "memory", "":
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache type %q", cfg.Cache.Type))
	}

	switch cfg.EventBus.Type {
	case "channel", "":
	case "nats":
		if cfg.EventBus.NATSUrl == "" {
			errs = append(errs, errors.New("eventbus.nats_url is required for nats"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown event bus type %q", cfg.EventBus.Type))
	}

	p := cfg.Decision
	if p.DBR != domain.DBRAdvisory && p.DBR != domain.DBRBlocking {
		errs = append(errs, fmt.Errorf("decision.dbr must be advisory or blocking, got %q", p.DBR))
	}
	if p.Range != domain.RangeFirstMatch && p.Range != domain.RangeStrict {
		errs = append(errs, fmt.Errorf("decision.range must be first-match or strict, got %q", p.Range))
	}
	if p.Count != domain.CountFirstCeiling && p.Count != domain.CountSmallestCeiling {
		errs = append(errs, fmt.Errorf("decision.count must be first-ceiling or smallest-ceiling, got %q", p.Count))
	}
	if p.Offer != domain.OfferBand && p.Offer != domain.OfferInterpolated {
		errs = append(errs, fmt.Errorf("decision.offer must be band or interpolated, got %q", p.Offer))
	}

	if cfg.Snapshot.MaxStaleness < 0 {
		errs = append(errs, errors.New("snapshot.max_staleness must not be negative"))
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", cfg.Logging.Level))
	}

	return errors.Join(errs...)
}
