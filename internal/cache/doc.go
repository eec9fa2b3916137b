/*
Package cache provides an optional response cache for external lookups that
are safe to memoize: the geocoder's forward-geocode results and the POI
provider's radius queries.

# Overview

New selects between two interchangeable Cache implementations: a
Redis-backed one when REDIS_ADDR is configured, and a process-local one
otherwise. Callers never branch on which backend is active.

# Core types

  - Cache: the Get/SetJSON contract both backends satisfy.
  - Config: connection and capacity settings for whichever backend New picks.
*/
package cache
