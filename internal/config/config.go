package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "TERMSWAP"

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	_, config, err := load(configPath)
	return config, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	// Set defaults
	config := GetDefaults()

	// Configure viper
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/termswap/")
	v.AddConfigPath("$HOME/.termswap/")

	// Environment variable overrides
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnv(v)

	// Use specific config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	// Read configuration
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := v.Unmarshal(config); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return v, config, nil
}

// bindEnv registers the keys that may come only from the environment.
// AutomaticEnv alone is not consulted by Unmarshal for keys viper has never
// seen.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"workspace.base_dir",
		"workspace.rules_file",
		"workspace.work_file",
		"workspace.backup_dir",
		"workspace.history_file",
		"workspace.map_file",
		"workspace.backup_retention",
		"workspace.history_capacity",
		"rules.watch",
		"storage.history",
		"storage.obfuscation_map",
		"storage.postgres.database_url",
		"storage.redis.redis_url",
		"server.port",
		"rate_limit.enabled",
		"websocket.enabled",
		"websocket.username",
		"websocket.password",
		"logging.level",
		"logging.format",
	} {
		v.BindEnv(key)
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Workspace.RulesFile == "" || config.Workspace.WorkFile == "" {
		return fmt.Errorf("workspace rules_file and work_file are required")
	}

	if config.Workspace.BackupRetention <= 0 {
		return fmt.Errorf("invalid backup retention: %d", config.Workspace.BackupRetention)
	}

	if config.Workspace.HistoryCapacity <= 0 {
		return fmt.Errorf("invalid history capacity: %d", config.Workspace.HistoryCapacity)
	}

	if config.Storage.History != "file" && config.Storage.History != "postgres" {
		return fmt.Errorf("invalid history storage: %s (must be file or postgres)", config.Storage.History)
	}

	if config.Storage.ObfuscationMap != "file" && config.Storage.ObfuscationMap != "redis" {
		return fmt.Errorf("invalid obfuscation map storage: %s (must be file or redis)", config.Storage.ObfuscationMap)
	}

	if len(config.Obfuscation.Patterns) == 0 {
		return fmt.Errorf("obfuscation patterns must not be empty")
	}

	if config.Import.BatchSize <= 0 || config.Import.MaxTermLength <= 0 {
		return fmt.Errorf("invalid import settings: batch size %d, max term length %d", config.Import.BatchSize, config.Import.MaxTermLength)
	}

	if config.RateLimit.Enabled && (config.RateLimit.RequestsPerSecond <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid rate limit: %.2f req/s, burst %d", config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Resolve returns path joined to the workspace base directory unless it is
// already absolute.
func (w WorkspaceConfig) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(w.BaseDir, path)
}

// Watch loads the configuration and calls callback with every valid
// revision of the config file. Invalid revisions are logged and skipped.
func Watch(configPath string, logger *zap.Logger, callback func(*Config)) (*Config, error) {
	v, config, err := load(configPath)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			logger.Error("Failed to reload configuration", zap.String("file", e.Name), zap.Error(err))
			return
		}

		if err := validateConfig(newConfig); err != nil {
			logger.Error("Ignoring invalid configuration", zap.String("file", e.Name), zap.Error(err))
			return
		}

		logger.Info("Configuration reloaded", zap.String("file", e.Name))
		callback(newConfig)
	})
	v.WatchConfig()

	return config, nil
}
