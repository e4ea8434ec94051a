// Package prometheus renders authkit metrics in the Prometheus text
// exposition format without importing the Prometheus client library.
package prometheus
