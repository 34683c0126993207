package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
	EnableRaw    bool          `yaml:"enable_raw" envconfig:"SERVER_ENABLE_RAW"`
	RawAPIKey    string        `yaml:"raw_api_key" envconfig:"SERVER_RAW_API_KEY"`
	CORSOrigins  []string      `yaml:"cors_origins" envconfig:"SERVER_CORS_ORIGINS"`
}

// UpstreamConfig holds the X.com endpoints and client behaviour.
type UpstreamConfig struct {
	ScriptURL      string        `yaml:"script_url" envconfig:"UPSTREAM_SCRIPT_URL"`
	ActivateURL    string        `yaml:"activate_url" envconfig:"UPSTREAM_ACTIVATE_URL"`
	GraphQLURL     string        `yaml:"graphql_url" envconfig:"UPSTREAM_GRAPHQL_URL"`
	UserAgent      string        `yaml:"user_agent" envconfig:"UPSTREAM_USER_AGENT"`
	AcceptLanguage string        `yaml:"accept_language" envconfig:"UPSTREAM_ACCEPT_LANGUAGE"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"UPSTREAM_TIMEOUT"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"UPSTREAM_REQUEST_TIMEOUT"`
	ProxyURL       string        `yaml:"proxy_url" envconfig:"UPSTREAM_PROXY_URL"`
	CredentialTTL  time.Duration `yaml:"credential_ttl" envconfig:"UPSTREAM_CREDENTIAL_TTL"`
	MaxScriptBytes int64         `yaml:"max_script_bytes" envconfig:"UPSTREAM_MAX_SCRIPT_BYTES"`
}

// TelemetryConfig holds OpenTelemetry tracing configuration.
// Tracing is disabled when OTLPEndpoint is empty.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name" envconfig:"OTEL_SERVICE_NAME"`
	Insecure     bool   `yaml:"insecure" envconfig:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

// Default returns the configuration used when neither the file nor the
// environment sets a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         3000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second,
			CORSOrigins:  []string{"*"},
		},
		Upstream: UpstreamConfig{
			ScriptURL:      "https://abs.twimg.com/responsive-web/client-web/main.165ee22a.js",
			ActivateURL:    "https://api.twitter.com/1.1/guest/activate.json",
			GraphQLURL:     "https://api.x.com/graphql/OoJd6A50cv8GsifjoOHGfg",
			Timeout:        15 * time.Second,
			RequestTimeout: 45 * time.Second,
			MaxScriptBytes: 8 << 20, // 8MB
		},
		Telemetry: TelemetryConfig{
			ServiceName: "xgrab",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from file and environment variables.
// File values override defaults and environment variables override both.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables. Fields carry no default tags,
	// so unset variables leave file values alone.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	for name, raw := range map[string]string{
		"UPSTREAM_SCRIPT_URL":   c.Upstream.ScriptURL,
		"UPSTREAM_ACTIVATE_URL": c.Upstream.ActivateURL,
		"UPSTREAM_GRAPHQL_URL":  c.Upstream.GraphQLURL,
	} {
		if err := validateHTTPURL(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if c.Upstream.RequestTimeout < c.Upstream.Timeout {
		return fmt.Errorf("UPSTREAM_REQUEST_TIMEOUT (%s) must not be shorter than UPSTREAM_TIMEOUT (%s)",
			c.Upstream.RequestTimeout, c.Upstream.Timeout)
	}
	if c.Upstream.CredentialTTL < 0 {
		return fmt.Errorf("UPSTREAM_CREDENTIAL_TTL must not be negative")
	}
	if c.Upstream.MaxScriptBytes <= 0 {
		return fmt.Errorf("UPSTREAM_MAX_SCRIPT_BYTES must be positive")
	}

	if c.Upstream.ProxyURL != "" {
		u, err := url.Parse(c.Upstream.ProxyURL)
		if err != nil {
			return fmt.Errorf("UPSTREAM_PROXY_URL: %w", err)
		}
		switch u.Scheme {
		case "http", "https", "socks5":
		default:
			return fmt.Errorf("UPSTREAM_PROXY_URL: unsupported scheme %q", u.Scheme)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}

	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
