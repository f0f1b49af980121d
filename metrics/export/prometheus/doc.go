// Package prometheus renders magiccode engine metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts a [magiccode.Engine] and exposes an [http.Handler].
// Counters are grouped into labelled families (magiccode_requests_total,
// magiccode_outcomes_total); latency is one histogram,
// magiccode_operation_latency_seconds, labelled by operation.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
