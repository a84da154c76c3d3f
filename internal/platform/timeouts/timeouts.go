// Package timeouts defines shared timeout constants used across the service.
// Centralizing these values prevents drift between layers and makes the
// durations discoverable.
package timeouts

import "time"

// RenderCall caps a single call to the text-generation capability.
const RenderCall = 30 * time.Second

// Stage bounds total wall-clock duration of one pipeline stage. A stage that
// exceeds it fails and halts the run; a fresh run must be triggered
// explicitly.
const Stage = 5 * time.Minute

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
