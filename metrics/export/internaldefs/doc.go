// Package internaldefs holds the shared metric name/help tables used by
// the Prometheus and OpenTelemetry exporters. Internal to the metrics
// export tree.
package internaldefs
