package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultServiceConfig
	v.SetDefault("service.host", "0.0.0.0")
	v.SetDefault("service.grpc_port", 50051)
	v.SetDefault("service.http_port", 8080)
	v.SetDefault("service.request_timeout", "10s")
	v.SetDefault("service.max_rules", 10000)
	v.SetDefault("service.rules_path", "")
	v.SetDefault("service.data_dir", "./data")
	v.SetDefault("service.active_statuses", []string{})

	// Bind environment variables with HS_ prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Credentials are environment-only
	if err := validateNoCredentialsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &ServiceConfig{
		Host:           v.GetString("service.host"),
		GRPCPort:       v.GetInt("service.grpc_port"),
		HTTPPort:       v.GetInt("service.http_port"),
		RequestTimeout: v.GetDuration("service.request_timeout"),
		MaxRules:       v.GetInt("service.max_rules"),
		RulesPath:      v.GetString("service.rules_path"),
		DataDir:        v.GetString("service.data_dir"),
		ActiveStatuses: splitStatuses(v.GetStringSlice("service.active_statuses")),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port ranges and positive limits.
func validateConfig(cfg *ServiceConfig) error {
	if cfg.GRPCPort <= 0 || cfg.GRPCPort > 65535 {
		return fmt.Errorf("grpc_port must be between 1 and 65535, got %d", cfg.GRPCPort)
	}
	if cfg.HTTPPort < 0 || cfg.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 0 and 65535, got %d", cfg.HTTPPort)
	}
	if cfg.HTTPPort != 0 && cfg.HTTPPort == cfg.GRPCPort {
		return fmt.Errorf("http_port and grpc_port must differ, both are %d", cfg.GRPCPort)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxRules <= 0 {
		return fmt.Errorf("max_rules must be positive, got %d", cfg.MaxRules)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	return nil
}

// validateNoCredentialsInConfig rejects database credentials in config files.
// Credentials must come from HS_DB_URL per 12-factor principles.
func validateNoCredentialsInConfig(v *viper.Viper) error {
	for _, key := range []string{"db_url", "database.url", "service.db_url"} {
		if !v.InConfig(key) {
			continue
		}
		if hasPassword(v.GetString(key)) {
			return fmt.Errorf("database credentials not allowed in config files (use %s environment variable)", DatabaseURLEnv)
		}
	}
	return nil
}
