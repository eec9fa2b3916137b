/*
Package config loads the coordinator's configuration.

# Overview

Configuration merges three sources, in order: built-in defaults, an
optional YAML file, then environment variables (COORDINATOR_ prefix by
default). Environment variables always win, matching how the underlying
deployment typically overrides a baked-in config file per environment.

# Core types

  - Config: the top-level aggregate — Server, LLM, SearchProvider,
    Geocoder, POIProvider, Telephony, Cache, Session, Log, Telemetry, CORS.
  - Loader: Builder-style loader; chain WithConfigPath, WithEnvPrefix and
    WithValidator before calling Load.

# Usage

	cfg, err := config.NewLoader().
		WithConfigPath("config.yaml").
		WithEnvPrefix("COORDINATOR").
		Load()

A missing LLM API key is deliberately not a load-time validation error:
per the external API contract, the chat endpoint surfaces it as a
Configuration-kind error message on first use instead, so an operator can
boot the service and see the health check succeed even before secrets are
provisioned.
*/
package config
