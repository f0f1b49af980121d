// Package internaldefs holds the metric families, label sets and bucket
// boundaries shared by the Prometheus and OTel exporters, so both expose the
// same series.
//
// Engine counters fold into three families: magiccode_requests_total by
// operation, magiccode_outcomes_total by operation and outcome, and
// magiccode_unknown_action_total. Both latency histograms share
// magiccode_operation_latency_seconds, labelled by operation.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
