// Package config loads service configuration from defaults, an optional YAML
// file, and MANGABOT_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"mangabot/internal/models"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	if port := os.Getenv("MANGABOT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if host := os.Getenv("MANGABOT_HOST"); host != "" {
		config.Server.Host = host
	}

	if timeout := os.Getenv("MANGABOT_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.ReadTimeout = d
		}
	}

	if timeout := os.Getenv("MANGABOT_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.WriteTimeout = d
		}
	}

	if tls := os.Getenv("MANGABOT_TLS_ENABLED"); tls != "" {
		config.Server.TLSEnabled = strings.ToLower(tls) == "true"
	}

	if certFile := os.Getenv("MANGABOT_TLS_CERT_FILE"); certFile != "" {
		config.Server.TLSCertFile = certFile
	}

	if keyFile := os.Getenv("MANGABOT_TLS_KEY_FILE"); keyFile != "" {
		config.Server.TLSKeyFile = keyFile
	}

	// Gate configuration
	if interval := os.Getenv("MANGABOT_GATE_MESSAGE_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Gate.MessageInterval = d
		}
	}

	if interval := os.Getenv("MANGABOT_GATE_CALLBACK_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Gate.CallbackInterval = d
		}
	}

	if max := os.Getenv("MANGABOT_GATE_MAX_PER_MINUTE"); max != "" {
		if n, err := strconv.Atoi(max); err == nil {
			config.Gate.MaxPerMinute = n
		}
	}

	if threshold := os.Getenv("MANGABOT_GATE_WARN_THRESHOLD"); threshold != "" {
		if n, err := strconv.Atoi(threshold); err == nil {
			config.Gate.WarnThreshold = n
		}
	}

	if ban := os.Getenv("MANGABOT_GATE_BAN_DURATION"); ban != "" {
		if d, err := time.ParseDuration(ban); err == nil {
			config.Gate.BanDuration = d
		}
	}

	if prune := os.Getenv("MANGABOT_GATE_PRUNE_INTERVAL"); prune != "" {
		if d, err := time.ParseDuration(prune); err == nil {
			config.Gate.PruneInterval = d
		}
	}

	if grace := os.Getenv("MANGABOT_GATE_IDLE_GRACE"); grace != "" {
		if d, err := time.ParseDuration(grace); err == nil {
			config.Gate.IdleGrace = d
		}
	}

	// Storage configuration
	if storageType := os.Getenv("MANGABOT_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}

	if dsn := os.Getenv("MANGABOT_DATABASE_DSN"); dsn != "" {
		config.Storage.Database.DSN = dsn
	}

	if maxOpen := os.Getenv("MANGABOT_DATABASE_MAX_OPEN_CONNS"); maxOpen != "" {
		if conns, err := strconv.Atoi(maxOpen); err == nil {
			config.Storage.Database.MaxOpenConns = conns
		}
	}

	if maxIdle := os.Getenv("MANGABOT_DATABASE_MAX_IDLE_CONNS"); maxIdle != "" {
		if conns, err := strconv.Atoi(maxIdle); err == nil {
			config.Storage.Database.MaxIdleConns = conns
		}
	}

	// Redis configuration
	if addr := os.Getenv("MANGABOT_REDIS_ADDR"); addr != "" {
		config.Storage.Redis.Addr = addr
	}

	if password := os.Getenv("MANGABOT_REDIS_PASSWORD"); password != "" {
		config.Storage.Redis.Password = password
	}

	if db := os.Getenv("MANGABOT_REDIS_DB"); db != "" {
		if dbNum, err := strconv.Atoi(db); err == nil {
			config.Storage.Redis.DB = dbNum
		}
	}

	if poolSize := os.Getenv("MANGABOT_REDIS_POOL_SIZE"); poolSize != "" {
		if size, err := strconv.Atoi(poolSize); err == nil {
			config.Storage.Redis.PoolSize = size
		}
	}

	// Security configuration
	if token := os.Getenv("MANGABOT_ADMIN_TOKEN"); token != "" {
		config.Security.AdminToken = token
	}

	// Logging configuration
	if level := os.Getenv("MANGABOT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if format := os.Getenv("MANGABOT_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if output := os.Getenv("MANGABOT_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}

	if filePath := os.Getenv("MANGABOT_LOG_FILE_PATH"); filePath != "" {
		config.Logging.FilePath = filePath
	}

	// Metrics configuration
	if metrics := os.Getenv("MANGABOT_METRICS_ENABLED"); metrics != "" {
		config.Metrics.Enabled = strings.ToLower(metrics) == "true"
	}

	if path := os.Getenv("MANGABOT_METRICS_PATH"); path != "" {
		config.Metrics.Path = path
	}

	if port := os.Getenv("MANGABOT_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Metrics.Port = p
		}
	}

	// Observability configuration
	if name := os.Getenv("MANGABOT_SERVICE_NAME"); name != "" {
		config.Observability.ServiceName = name
	}

	if tracing := os.Getenv("MANGABOT_TRACING_ENABLED"); tracing != "" {
		config.Observability.Tracing.Enabled = strings.ToLower(tracing) == "true"
	}

	if exporter := os.Getenv("MANGABOT_TRACING_EXPORTER"); exporter != "" {
		config.Observability.Tracing.Exporter = exporter
	}

	if endpoint := os.Getenv("MANGABOT_OTLP_ENDPOINT"); endpoint != "" {
		config.Observability.Tracing.OTLPEndpoint = endpoint
	}
}
