package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/magiccode"
	"github.com/MrEthical07/magiccode/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() magiccode.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders engine metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates a Prometheus exporter that reads from the given [magiccode.Engine].
func NewPrometheusExporter(engine *magiccode.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource creates an exporter from any snapshot source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves the current metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics as exposition text. It returns "" when the
// engine records nothing.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, family := range internaldefs.Families {
		writeHeader(&b, family.Name, family.Help, "counter")
		for _, def := range internaldefs.SeriesFor(family.Name) {
			writeSample(&b, family.Name, def.Labels, snapshot.Counters[def.ID])
		}
	}

	if len(snapshot.Histograms) > 0 {
		writeHeader(&b, internaldefs.LatencyName, internaldefs.LatencyHelp, "histogram")
		for _, def := range internaldefs.HistogramDefs {
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
			writeHistogram(&b, def.Operation, cumulative)
		}
	}

	writeHeader(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	writeSample(&b, internaldefs.AuditDroppedName, nil, dropped)

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSample(b *strings.Builder, name string, labels []internaldefs.Label, value uint64) {
	b.WriteString(name)
	if len(labels) > 0 {
		b.WriteByte('{')
		for i, l := range labels {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(l.Key)
			b.WriteString(`="`)
			b.WriteString(escapeLabel(l.Value))
			b.WriteByte('"')
		}
		b.WriteByte('}')
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, operation string, cumulative [8]uint64) {
	opLabel := internaldefs.Label{Key: internaldefs.LabelOperation, Value: operation}
	for i, le := range internaldefs.HistogramBounds {
		writeSample(b, internaldefs.LatencyName+"_bucket", []internaldefs.Label{opLabel, {Key: "le", Value: le}}, cumulative[i])
	}
	writeSample(b, internaldefs.LatencyName+"_count", []internaldefs.Label{opLabel}, cumulative[len(cumulative)-1])
	// Snapshots carry bucket counts only.
	writeSample(b, internaldefs.LatencyName+"_sum", []internaldefs.Label{opLabel}, 0)
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	return strings.ReplaceAll(help, "\n", "\\n")
}

func escapeLabel(v string) string {
	v = escapeHelp(v)
	return strings.ReplaceAll(v, `"`, `\"`)
}
