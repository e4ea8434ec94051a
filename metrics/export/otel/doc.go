// Package otel bridges authkit metrics into an OpenTelemetry meter via
// observable instruments. The engine's atomic counters stay the source
// of truth; the bridge reads snapshots in the meter callback.
package otel
