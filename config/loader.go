// Package config loads the coordinator's configuration: defaults overlaid
// by an optional YAML file, overlaid by environment variables, matching the
// teacher's "defaults -> file -> env" precedence and Builder-style Loader.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the coordinator's complete configuration surface.
type Config struct {
	Server         ServerConfig         `yaml:"server" env:"SERVER"`
	LLM            LLMConfig            `yaml:"llm" env:"LLM"`
	SearchProvider SearchProviderConfig `yaml:"search_provider" env:"SEARCH_PROVIDER"`
	Geocoder       GeocoderConfig       `yaml:"geocoder" env:"GEOCODER"`
	POIProvider    POIProviderConfig    `yaml:"poi_provider" env:"POI_PROVIDER"`
	Telephony      TelephonyConfig      `yaml:"telephony" env:"TELEPHONY"`
	Cache          CacheConfig          `yaml:"cache" env:"REDIS"`
	Session        SessionConfig        `yaml:"session" env:"SESSION"`
	Log            LogConfig            `yaml:"log" env:"LOG"`
	Telemetry      TelemetryConfig      `yaml:"telemetry" env:"TELEMETRY"`
	CORS           CORSConfig           `yaml:"cors" env:"CORS"`
	Auth           AuthConfig           `yaml:"auth" env:"AUTH"`
}

// AuthConfig configures the static API-key check on the coordinator's own
// HTTP surface (§3: the teacher's API-key middleware pattern, not JWT — this
// API has no user accounts). An empty APIKeys list disables the check, which
// is the right default for local/dev use.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
}

// ServerConfig configures the HTTP listener(s). A single server exposes
// three handlers (health, chat, negotiate); metrics lives on its own port,
// matching the teacher's dual-listener pattern without leaking that detail
// into the external API contract (§9 re-architecture note).
type ServerConfig struct {
	ListenPort      int           `yaml:"listen_port" env:"LISTEN_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LLMConfig configures the chat-completion gateway (C1).
type LLMConfig struct {
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Model      string        `yaml:"model" env:"MODEL"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	PoolSize   int           `yaml:"pool_size" env:"POOL_SIZE"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
}

// SearchProviderConfig configures the web search/scrape adapter (C2).
type SearchProviderConfig struct {
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// GeocoderConfig configures the forward-geocoding adapter (C3).
type GeocoderConfig struct {
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// POIProviderConfig configures the points-of-interest adapter (C4).
type POIProviderConfig struct {
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// TelephonyConfig configures the negotiation agent's voice-call vendor (C10).
type TelephonyConfig struct {
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	AssistantID string        `yaml:"assistant_id" env:"ASSISTANT_ID"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// CacheConfig mirrors internal/cache.Config; duplicated here (rather than
// embedded) so the yaml/env tag prefixes stay independent of that package's
// own tags.
type CacheConfig struct {
	Addr                string        `yaml:"addr" env:"ADDR"`
	Password            string        `yaml:"password" env:"PASSWORD"`
	DB                  int           `yaml:"db" env:"DB"`
	DefaultTTL          time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	MaxRetries          int           `yaml:"max_retries" env:"MAX_RETRIES"`
	PoolSize            int           `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns        int           `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
	LocalCapacity       int           `yaml:"local_capacity" env:"CACHE_LOCAL_CAPACITY"`
}

// SessionConfig configures the sharded session store.
type SessionConfig struct {
	Capacity int `yaml:"capacity" env:"CAPACITY"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures the OpenTelemetry SDK.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// CORSConfig configures cross-origin access to the HTTP API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// Loader is a Builder-style config loader: defaults, then an optional YAML
// file, then environment variables, then validators.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "COORDINATOR",
		validators: make([]func(*Config) error, 0),
	}
}

func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds the final Config: defaults -> YAML file -> env vars -> validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads config from path, panicking on failure — used by cmd/
// entrypoints that have no sensible way to continue without a config.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads config using only defaults and environment variables.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the cross-cutting invariants the loader itself can't
// express via tags. Per §6, a missing LLM_API_KEY is NOT a load-time error —
// it surfaces as a Configuration chat message instead — so it is
// deliberately absent from this check.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.ListenPort <= 0 || c.Server.ListenPort > 65535 {
		errs = append(errs, "invalid listen port")
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Session.Capacity <= 0 {
		errs = append(errs, "session capacity must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
