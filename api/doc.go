// Package api defines the coordinator's HTTP wire types: requests, the
// status/data response envelope, and OpenAPI annotations for the handlers
// in api/handlers.
//
// # API Overview
//
// The coordinator exposes three endpoints:
//   - GET  /health        liveness check
//   - POST /api/chat      one turn of the real-estate search conversation
//   - POST /api/negotiate place an AI negotiation call for a specific listing
//
// # Base URL
//
// The default base URL is http://localhost:8080.
package api
