// Package server provides the optional monitoring HTTP endpoint for the
// speech workers: health, live session listing, sanitized configuration,
// and Prometheus metrics. The worker protocol itself never travels over
// HTTP; this server is observation only.
package server
