package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key when read from the environment.
const EnvPrefix = "NYMPH"

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN). A postgres:// URL selects PostgreSQL,
	// anything else is treated as a SQLite path.
	DatabaseURL string

	// Server bind address (host:port)
	ServerAddr string

	// SigningKey is the operator-supplied HMAC secret for access tokens.
	// When empty a random key is generated at startup and every restart
	// invalidates previously issued tokens.
	SigningKey string

	// Enable debug logging
	Debug bool

	TLS           TLSConfig
	Log           LogConfig
	Observability ObservabilityConfig
}

// TLSConfig enables HTTPS and client certificate authentication.
// All three paths must be set together.
type TLSConfig struct {
	CertFile     string
	KeyFile      string
	ClientCAFile string
}

// Enabled reports whether the server should terminate TLS and accept client certificates.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" && c.KeyFile != "" && c.ClientCAFile != ""
}

func (c TLSConfig) partial() bool {
	set := 0
	for _, v := range []string{c.CertFile, c.KeyFile, c.ClientCAFile} {
		if v != "" {
			set++
		}
	}
	return set > 0 && set < 3
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// ObservabilityConfig holds OpenTelemetry exporter settings.
type ObservabilityConfig struct {
	OTLPEndpoint   string
	OTLPInsecure   bool
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Load reads configuration from the global viper instance: an optional config
// file already read by the caller, then NYMPH_ prefixed environment variables.
func Load() (*Config, error) {
	v := viper.GetViper()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database_url", "nymph.db")
	v.SetDefault("server_addr", "0.0.0.0:4000")
	v.SetDefault("signing_key", "")
	v.SetDefault("debug", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.insecure", false)
	v.SetDefault("otel.service_name", "nymphapi")
	v.SetDefault("otel.service_version", "dev")
	v.SetDefault("otel.environment", "development")

	// Unprefixed names accepted for container platforms that inject them.
	_ = v.BindEnv("database_url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")

	cfg := &Config{
		DatabaseURL: v.GetString("database_url"),
		ServerAddr:  v.GetString("server_addr"),
		SigningKey:  v.GetString("signing_key"),
		Debug:       v.GetBool("debug"),
		TLS: TLSConfig{
			CertFile:     v.GetString("tls.cert_file"),
			KeyFile:      v.GetString("tls.key_file"),
			ClientCAFile: v.GetString("tls.client_ca_file"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint:   v.GetString("otel.endpoint"),
			OTLPInsecure:   v.GetBool("otel.insecure"),
			ServiceName:    v.GetString("otel.service_name"),
			ServiceVersion: v.GetString("otel.service_version"),
			Environment:    v.GetString("otel.environment"),
		},
	}

	if port := os.Getenv("PORT"); port != "" && os.Getenv(EnvPrefix+"_SERVER_ADDR") == "" && !v.InConfig("server_addr") {
		cfg.ServerAddr = "0.0.0.0:" + port
	}

	if cfg.Debug {
		cfg.Log.Level = "debug"
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ServerAddr == "" {
		return nil, fmt.Errorf("SERVER_ADDR is required")
	}
	if cfg.TLS.partial() {
		return nil, fmt.Errorf("TLS config error: tls.cert_file, tls.key_file and tls.client_ca_file must be set together")
	}

	return cfg, nil
}
