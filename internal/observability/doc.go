// Package observability builds the process logger and the Prometheus
// metrics recorded by the tracking pipeline.
package observability
