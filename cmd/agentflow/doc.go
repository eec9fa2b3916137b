// Copyright (c) Coordinator Authors.
// Licensed under the MIT License.

/*
Package main provides the coordinator service's executable entry point.

# Overview

cmd/agentflow is the coordinator's executable: it loads configuration, wires
the LLM gateway, search/geocode/POI/telephony adapters and the six agents
into a Coordinator, and serves the chat/negotiate/health HTTP API plus a
Prometheus metrics endpoint.

# Core types

  - Server        — owns the HTTP and metrics listeners and graceful shutdown
  - Middleware     — HTTP middleware signature, func(http.Handler) http.Handler
  - responseWriter — wraps http.ResponseWriter to capture the status code

# Capabilities

  - Subcommands: serve, version, health
  - Middleware chain: Recovery, RequestID, RequestLogger, MetricsMiddleware,
    OTelTracing, SecurityHeaders, CORS, APIKeyAuth (X-API-Key, optional)
  - Metrics server: separate port exposing /metrics (Prometheus)
  - Graceful shutdown: signal -> stop HTTP -> stop metrics -> close cache -> wait
  - Build injection: Version, BuildTime, GitCommit set via ldflags
*/
package main
