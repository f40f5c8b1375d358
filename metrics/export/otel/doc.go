// Package otel binds goBlog metrics to OpenTelemetry observable instruments.
//
// [NewExporter] registers one Int64ObservableCounter per goBlog counter, a
// gauge per latency bucket plus count and sum gauges, and a single callback
// that reads the metrics snapshot on each collection. Callers own the
// MeterProvider.
package otel
