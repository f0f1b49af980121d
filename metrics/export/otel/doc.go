// Package otel publishes magiccode engine metrics through OpenTelemetry.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter family,
// with the operation and outcome carried as attributes, plus two
// Int64ObservableGauge instruments for cumulative latency buckets and counts. A
// single callback reads [magiccode.Engine.MetricsSnapshot] on each collection
// cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
