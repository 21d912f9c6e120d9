// Package config loads Harrier configuration from defaults, an optional
// file and HARRIER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/opensource-finance/harrier/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. HARRIER_REPOSITORY_DRIVER.
const EnvPrefix = "HARRIER"

// Load reads configuration. Precedence is environment, then the file at
// path, then the defaults of the selected tier. An empty path looks for
// harrier.yaml in the working directory and /etc/harrier.
func Load(path string) (*domain.Config, error) {
	v := viper.New()
	setDefaults(v, domain.DefaultConfig())

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("harrier")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/harrier")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// The pro tier swaps the defaults underneath anything set explicitly.
	if domain.Tier(v.GetString("tier")) == domain.TierPro {
		setDefaults(v, domain.ProConfig())
	}

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the components cannot start with.
func Validate(cfg *domain.Config) error {
	switch cfg.Tier {
	case domain.TierCommunity, domain.TierPro:
	default:
		return fmt.Errorf("%w: unknown tier %q", domain.ErrInvalidInput, cfg.Tier)
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unsupported repository driver %q", domain.ErrInvalidInput, cfg.Repository.Driver)
	}
	switch cfg.Model.Type {
	case "", "stored":
	case "http":
		if cfg.Model.URL == "" {
			return fmt.Errorf("%w: model.url is required for the http model", domain.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown model type %q", domain.ErrInvalidInput, cfg.Model.Type)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", domain.ErrInvalidInput, cfg.Server.Port)
	}
	if t := cfg.Engine.HighRiskThreshold; t < 0 || t > 1 {
		return fmt.Errorf("%w: engine.highRiskThreshold must be in [0,1]", domain.ErrInvalidInput)
	}
	if cfg.Engine.Workers <= 0 {
		return fmt.Errorf("%w: engine.workers must be positive", domain.ErrInvalidInput)
	}
	if cfg.Tracing.Enabled && cfg.Tracing.ExporterType != "stdout" {
		return fmt.Errorf("%w: unsupported tracing exporter %q", domain.ErrInvalidInput, cfg.Tracing.ExporterType)
	}
	if cfg.Catalog.Watch && cfg.Catalog.SeedFile == "" {
		return fmt.Errorf("%w: catalog.watch needs catalog.seedFile", domain.ErrInvalidInput)
	}
	return nil
}

// setDefaults registers every key so environment variables can override
// keys absent from the file.
func setDefaults(v *viper.Viper, d *domain.Config) {
	v.SetDefault("tier", string(d.Tier))

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.readTimeout", d.Server.ReadTimeout)
	v.SetDefault("server.writeTimeout", d.Server.WriteTimeout)

	v.SetDefault("repository.driver", d.Repository.Driver)
	v.SetDefault("repository.sqlitePath", d.Repository.SQLitePath)
	v.SetDefault("repository.postgresHost", d.Repository.PostgresHost)
	v.SetDefault("repository.postgresPort", d.Repository.PostgresPort)
	v.SetDefault("repository.postgresUser", d.Repository.PostgresUser)
	v.SetDefault("repository.postgresPassword", d.Repository.PostgresPassword)
	v.SetDefault("repository.postgresDb", d.Repository.PostgresDB)
	v.SetDefault("repository.postgresSslMode", d.Repository.PostgresSSLMode)
	v.SetDefault("repository.maxOpenConns", d.Repository.MaxOpenConns)
	v.SetDefault("repository.maxIdleConns", d.Repository.MaxIdleConns)
	v.SetDefault("repository.connMaxLifetime", d.Repository.ConnMaxLifetime)

	v.SetDefault("cache.type", d.Cache.Type)
	v.SetDefault("cache.localMaxSize", d.Cache.LocalMaxSize)
	v.SetDefault("cache.localTtl", d.Cache.LocalTTL)
	v.SetDefault("cache.redisAddr", d.Cache.RedisAddr)
	v.SetDefault("cache.redisPassword", d.Cache.RedisPassword)
	v.SetDefault("cache.redisDb", d.Cache.RedisDB)
	v.SetDefault("cache.enableTwoPhase", d.Cache.EnableTwoPhase)

	v.SetDefault("eventBus.type", d.EventBus.Type)
	v.SetDefault("eventBus.channelBufferSize", d.EventBus.ChannelBufferSize)
	v.SetDefault("eventBus.natsUrl", d.EventBus.NATSUrl)
	v.SetDefault("eventBus.natsToken", d.EventBus.NATSToken)
	v.SetDefault("eventBus.natsMaxReconnects", d.EventBus.NATSMaxReconnects)
	v.SetDefault("eventBus.natsReconnectWait", d.EventBus.NATSReconnectWait)
	v.SetDefault("eventBus.natsQueueGroup", d.EventBus.NATSQueueGroup)

	v.SetDefault("engine.workers", d.Engine.Workers)
	v.SetDefault("engine.ruleTimeout", d.Engine.RuleTimeout)
	v.SetDefault("engine.alertDedupe", d.Engine.AlertDedupe)
	v.SetDefault("engine.highRiskThreshold", d.Engine.HighRiskThreshold)
	v.SetDefault("engine.historyLimit", d.Engine.HistoryLimit)
	v.SetDefault("engine.schedule", d.Engine.Schedule)

	v.SetDefault("model.type", d.Model.Type)
	v.SetDefault("model.url", d.Model.URL)
	v.SetDefault("model.timeout", d.Model.Timeout)
	v.SetDefault("model.cacheTtl", d.Model.CacheTTL)

	v.SetDefault("catalog.seedFile", d.Catalog.SeedFile)
	v.SetDefault("catalog.watch", d.Catalog.Watch)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.serviceName", d.Tracing.ServiceName)
	v.SetDefault("tracing.exporterType", d.Tracing.ExporterType)
}
