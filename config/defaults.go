// Package config defaults: sane out-of-the-box values for every section,
// overridable via YAML or environment variables.
package config

import "time"

// DefaultConfig returns the baseline configuration before file/env overlays.
func DefaultConfig() *Config {
	return &Config{
		Server:         DefaultServerConfig(),
		LLM:            DefaultLLMConfig(),
		SearchProvider: DefaultSearchProviderConfig(),
		Geocoder:       DefaultGeocoderConfig(),
		POIProvider:    DefaultPOIProviderConfig(),
		Telephony:      DefaultTelephonyConfig(),
		Cache:          DefaultCacheConfig(),
		Session:        DefaultSessionConfig(),
		Log:            DefaultLogConfig(),
		Telemetry:      DefaultTelemetryConfig(),
		CORS:           DefaultCORSConfig(),
		Auth:           DefaultAuthConfig(),
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenPort:      8080,
		MetricsPort:     9090,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:    "https://api.openai.com/v1",
		Model:      "gpt-4o-mini",
		Timeout:    30 * time.Second,
		PoolSize:   32,
		MaxRetries: 3,
	}
}

func DefaultSearchProviderConfig() SearchProviderConfig {
	return SearchProviderConfig{
		BaseURL: "https://api.search.internal",
		Timeout: 15 * time.Second,
	}
}

func DefaultGeocoderConfig() GeocoderConfig {
	return GeocoderConfig{
		BaseURL: "https://nominatim.openstreetmap.org",
		Timeout: 10 * time.Second,
	}
}

func DefaultPOIProviderConfig() POIProviderConfig {
	return POIProviderConfig{
		BaseURL: "https://overpass-api.de",
		Timeout: 10 * time.Second,
	}
}

func DefaultTelephonyConfig() TelephonyConfig {
	return TelephonyConfig{
		BaseURL: "https://api.telephony.internal",
		Timeout: 30 * time.Second,
	}
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Addr:                "",
		DB:                  0,
		DefaultTTL:          10 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
		LocalCapacity:       4096,
	}
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Capacity: 1024,
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "coordinator",
		SampleRate:   0.1,
	}
}

// DefaultCORSConfig is permissive (all origins) by default: the API ships as
// a backend for a browser-based chat widget whose origin set isn't known at
// ops time, and the request is stateless aside from a caller-supplied
// session id, so the blast radius of a permissive default is small (§9 Open
// Question: CORS default). Production deployments set
// COORDINATOR_CORS_ALLOWED_ORIGINS explicitly to lock this down.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
	}
}

// DefaultAuthConfig disables the API-key check (empty key set) so local
// development and the test suite need no credentials. Deployments set
// COORDINATOR_AUTH_API_KEYS to turn it on.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		APIKeys: nil,
	}
}
