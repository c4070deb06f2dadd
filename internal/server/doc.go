// Package server exposes a local HTTP endpoint for monitoring the voice
// chat client: health, live session state, redacted configuration and
// Prometheus metrics.
package server
