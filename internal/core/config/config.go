// Package config provides configuration management for healthsignals services.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// EnvPrefix is the environment variable prefix for every setting.
const EnvPrefix = "HS"

// DatabaseURLEnv holds the audit database URL. Never read from config files.
const DatabaseURLEnv = "HS_DB_URL"

// ServiceConfig holds configuration for the evaluation service (gRPC + HTTP).
type ServiceConfig struct {
	Host           string
	GRPCPort       int
	HTTPPort       int
	RequestTimeout time.Duration
	MaxRules       int
	RulesPath      string
	DataDir        string
	ActiveStatuses []string
}

// DefaultServiceConfig returns configuration with default values.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Host:           "0.0.0.0",
		GRPCPort:       50051,
		HTTPPort:       8080,
		RequestTimeout: 10 * time.Second,
		MaxRules:       10000,
		RulesPath:      "",
		DataDir:        "./data",
		ActiveStatuses: nil,
	}
}

// GRPCAddr returns host:port for the gRPC listener.
func (c *ServiceConfig) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// HTTPAddr returns host:port for the HTTP listener.
func (c *ServiceConfig) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// DatabaseURL returns the audit database URL from HS_DB_URL, or "" when unset.
// An empty URL disables the audit log.
func DatabaseURL() string {
	return strings.TrimSpace(os.Getenv(DatabaseURLEnv))
}

// RedactURL masks the password in a database URL for logging.
// Unparsable input is returned fully masked.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	return u.String()
}

// hasPassword reports whether a URL embeds a password.
func hasPassword(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return false
	}
	_, ok := u.User.Password()
	return ok
}

// splitStatuses normalizes a status list from flags, env or config file.
// Accepts comma and whitespace separators; drops empty entries.
func splitStatuses(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		}) {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
