// Package otel binds session metrics to OpenTelemetry instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per counter and an
// Int64ObservableGauge per histogram bucket, all fed from a single callback
// that reads the session snapshot on each collection. The caller owns the
// MeterProvider.
package otel
