package internaldefs

import (
	"github.com/MrEthical07/magiccode"
)

// Namespace prefixes every exported metric name.
const Namespace = "magiccode"

// Label keys used on exported series.
const (
	LabelOperation = "operation"
	LabelOutcome   = "outcome"
)

// Operation label values.
const (
	OperationIssue  = "issue"
	OperationVerify = "verify"
)

// Family is one exported counter name with its help text. Series in a family
// differ only by labels.
type Family struct {
	Name string
	Help string
}

// Label is a single key/value pair on a series.
type Label struct {
	Key   string
	Value string
}

// CounterDef maps an engine counter onto a labelled series of Family.
type CounterDef struct {
	ID     magiccode.MetricID
	Family string
	Labels []Label
}

// HistogramDef maps an engine latency histogram onto the latency family.
type HistogramDef struct {
	ID        magiccode.MetricID
	Operation string
}

var (
	requestsFamily = Family{Name: Namespace + "_requests_total", Help: "Issue and verify calls that reached the engine."}
	outcomesFamily = Family{Name: Namespace + "_outcomes_total", Help: "Issue and verify results by outcome."}
	unknownFamily  = Family{Name: Namespace + "_unknown_action_total", Help: "Dispatches with an unrecognized action."}
)

// Families lists counter families in output order.
var Families = []Family{requestsFamily, outcomesFamily, unknownFamily}

// CounterDefs lists every exported counter series, grouped by family.
var CounterDefs = []CounterDef{
	{ID: magiccode.MetricIssueRequest, Family: requestsFamily.Name, Labels: op(OperationIssue)},
	{ID: magiccode.MetricVerifyRequest, Family: requestsFamily.Name, Labels: op(OperationVerify)},

	{ID: magiccode.MetricIssueSuccess, Family: outcomesFamily.Name, Labels: opOutcome(OperationIssue, "success")},
	{ID: magiccode.MetricDeliveryFailure, Family: outcomesFamily.Name, Labels: opOutcome(OperationIssue, "delivery_failed")},
	{ID: magiccode.MetricIssueMissingField, Family: outcomesFamily.Name, Labels: opOutcome(OperationIssue, "missing_field")},
	{ID: magiccode.MetricIssueStorageFailure, Family: outcomesFamily.Name, Labels: opOutcome(OperationIssue, "storage_unavailable")},
	{ID: magiccode.MetricVerifySuccess, Family: outcomesFamily.Name, Labels: opOutcome(OperationVerify, "success")},
	{ID: magiccode.MetricVerifyFailure, Family: outcomesFamily.Name, Labels: opOutcome(OperationVerify, "rejected")},
	{ID: magiccode.MetricVerifyMissingField, Family: outcomesFamily.Name, Labels: opOutcome(OperationVerify, "missing_field")},
	{ID: magiccode.MetricVerifyStorageFailure, Family: outcomesFamily.Name, Labels: opOutcome(OperationVerify, "storage_unavailable")},

	{ID: magiccode.MetricUnknownAction, Family: unknownFamily.Name},
}

// LatencyName is the histogram family for operation latency.
const LatencyName = Namespace + "_operation_latency_seconds"

// LatencyHelp describes LatencyName.
const LatencyHelp = "Issue and verify latency, including hook time."

// HistogramDefs lists every exported histogram series.
var HistogramDefs = []HistogramDef{
	{ID: magiccode.MetricIssueLatency, Operation: OperationIssue},
	{ID: magiccode.MetricVerifyLatency, Operation: OperationVerify},
}

// AuditDroppedName is the counter for audit events dropped under backpressure.
const AuditDroppedName = Namespace + "_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramBounds are the upper bounds of the engine's eight latency buckets, in seconds.
var HistogramBounds = [8]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// SeriesFor returns the counter series of family in output order.
func SeriesFor(family string) []CounterDef {
	out := make([]CounterDef, 0, 8)
	for _, def := range CounterDefs {
		if def.Family == family {
			out = append(out, def)
		}
	}
	return out
}

// NormalizeBuckets copies raw into a fixed eight bucket array, zero filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets converts per-bucket counts into cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}

func op(operation string) []Label {
	return []Label{{Key: LabelOperation, Value: operation}}
}

func opOutcome(operation, outcome string) []Label {
	return []Label{{Key: LabelOperation, Value: operation}, {Key: LabelOutcome, Value: outcome}}
}
